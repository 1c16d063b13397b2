package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"relawan/internal/registration/models"
)

func TestCheckAttachment(t *testing.T) {
	tests := []struct {
		name      string
		file      *models.Attachment
		mandatory bool
		want      string
	}{
		{name: "absent and optional", file: nil, mandatory: false, want: ""},
		{name: "absent and mandatory", file: nil, mandatory: true, want: MsgAttachmentRequired},
		{name: "small png", file: &models.Attachment{ContentType: "image/png", Size: 10}, want: ""},
		{name: "jpeg at the limit", file: &models.Attachment{ContentType: "image/jpeg", Size: MaxAttachmentSize}, want: ""},
		{name: "declared type with parameters", file: &models.Attachment{ContentType: "Image/JPEG; q=1", Size: 10}, want: ""},
		{name: "one byte over", file: &models.Attachment{ContentType: "image/png", Size: MaxAttachmentSize + 1}, want: MsgFileTooLarge},
		{name: "3 MiB jpeg", file: &models.Attachment{ContentType: "image/jpeg", Size: 3 << 20}, mandatory: true, want: MsgFileTooLarge},
		{name: "gif", file: &models.Attachment{ContentType: "image/gif", Size: 10}, want: MsgUnsupportedFormat},
		{name: "format is checked before size", file: &models.Attachment{ContentType: "application/pdf", Size: 5 << 20}, want: MsgUnsupportedFormat},
		{name: "missing content type", file: &models.Attachment{Size: 10}, want: MsgUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckAttachment(tt.file, tt.mandatory))
		})
	}
}
