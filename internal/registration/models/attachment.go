package models

import "encoding/base64"

// Attachment is a candidate profile photo. Size is the declared byte size;
// Data may be empty when the upload was too large to be worth reading.
type Attachment struct {
	FileName    string
	ContentType string
	Size        int64
	Data        []byte
}

// NewAttachment builds an attachment whose size is taken from data.
func NewAttachment(fileName, contentType string, data []byte) *Attachment {
	return &Attachment{
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}
}

// PreviewURL derives the data URL shown next to the upload control.
func (a *Attachment) PreviewURL() string {
	if a == nil || len(a.Data) == 0 {
		return ""
	}
	return "data:" + a.ContentType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}
