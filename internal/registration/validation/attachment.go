package validation

import (
	"mime"
	"strings"

	"relawan/internal/registration/models"
)

// MaxAttachmentSize is the largest accepted profile photo, in bytes.
const MaxAttachmentSize int64 = 2 << 20

const (
	MsgAttachmentRequired = "attachment required"
	MsgUnsupportedFormat  = "unsupported format"
	MsgFileTooLarge       = "file too large"
)

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// CheckAttachment applies the file constraints in order and returns the first
// failure, or "" when the candidate is acceptable. A nil candidate only fails
// when mandatory is set.
func CheckAttachment(a *models.Attachment, mandatory bool) string {
	if a == nil {
		if mandatory {
			return MsgAttachmentRequired
		}
		return ""
	}
	if !allowedContentTypes[NormalizeContentType(a.ContentType)] {
		return MsgUnsupportedFormat
	}
	if a.Size > MaxAttachmentSize {
		return MsgFileTooLarge
	}
	return ""
}

// NormalizeContentType lower-cases a declared MIME type and drops parameters.
func NormalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
