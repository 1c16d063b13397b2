package models

import (
	"maps"
	"slices"

	dErrors "relawan/pkg/domain-errors"
)

// Field names a draft attribute. The string value is the wire key used in
// form submissions and in error maps returned to the browser.
type Field string

const (
	FieldFullName    Field = "namaLengkap"
	FieldGender      Field = "jenisKelamin"
	FieldBirthPlace  Field = "tempatLahir"
	FieldBirthDate   Field = "tanggalLahir"
	FieldAddress     Field = "alamatDomisili"
	FieldCitizenship Field = "kewarganegaraan"
	FieldPhone       Field = "nomorTelepon"
	FieldEmail       Field = "email"
	FieldRegion      Field = "wilayahId"
	FieldAttachment  Field = "profile_picture"
)

// Fields lists every known field in form order.
var Fields = []Field{
	FieldFullName,
	FieldGender,
	FieldBirthPlace,
	FieldBirthDate,
	FieldAddress,
	FieldCitizenship,
	FieldPhone,
	FieldEmail,
	FieldRegion,
	FieldAttachment,
}

// IsValid reports whether f is one of the known fields.
func (f Field) IsValid() bool {
	return slices.Contains(Fields, f)
}

func (f Field) String() string {
	return string(f)
}

// ParseField maps a wire key to a Field, rejecting unknown names.
func ParseField(s string) (Field, error) {
	f := Field(s)
	if !f.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown field: "+s)
	}
	return f, nil
}

// FieldErrors maps each currently invalid field to a human-readable message.
// A field is valid exactly when its key is absent.
type FieldErrors map[Field]string

// Empty reports whether no field is invalid.
func (e FieldErrors) Empty() bool {
	return len(e) == 0
}

// Add records msg for f, keeping the first message when f already failed.
func (e FieldErrors) Add(f Field, msg string) {
	if _, exists := e[f]; !exists {
		e[f] = msg
	}
}

// Clone returns an independent copy.
func (e FieldErrors) Clone() FieldErrors {
	out := make(FieldErrors, len(e))
	maps.Copy(out, e)
	return out
}

// Union returns a new map holding e's entries plus those of other that e lacks.
func (e FieldErrors) Union(other FieldErrors) FieldErrors {
	out := e.Clone()
	for f, msg := range other {
		out.Add(f, msg)
	}
	return out
}

// Merge overlays server-reported errors: returned keys overwrite, all other
// keys are left untouched.
func (e FieldErrors) Merge(server FieldErrors) FieldErrors {
	out := e.Clone()
	maps.Copy(out, server)
	return out
}

// Wire converts the map for JSON responses.
func (e FieldErrors) Wire() map[string]string {
	out := make(map[string]string, len(e))
	for f, msg := range e {
		out[string(f)] = msg
	}
	return out
}
