package models

import (
	"strings"
	"time"

	dErrors "relawan/pkg/domain-errors"
)

// DateLayout is the wire format of the birth date.
const DateLayout = "2006-01-02"

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

func ParseGender(s string) (Gender, error) {
	switch g := Gender(strings.ToUpper(strings.TrimSpace(s))); g {
	case GenderMale, GenderFemale:
		return g, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "gender must be MALE or FEMALE")
	}
}

// Citizenship is WNI for domestic citizens and WNA for foreign nationals.
type Citizenship string

const (
	CitizenshipDomestic Citizenship = "WNI"
	CitizenshipForeign  Citizenship = "WNA"
)

func ParseCitizenship(s string) (Citizenship, error) {
	switch c := Citizenship(strings.ToUpper(strings.TrimSpace(s))); c {
	case CitizenshipDomestic, CitizenshipForeign:
		return c, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "citizenship must be WNI or WNA")
	}
}

// Draft is the in-progress volunteer registration.
//
// Invariants:
//   - Gender always holds exactly one of MALE or FEMALE (MALE by default)
//   - an update replaces exactly one attribute and leaves the rest untouched
//   - RegionID, once set, references the last-fetched region directory
//     (enforced by the draft store, which owns the directory snapshot)
type Draft struct {
	FullName    string
	Gender      Gender
	BirthPlace  string
	BirthDate   time.Time // zero when absent
	Address     string
	Citizenship Citizenship
	Phone       string
	Email       string
	RegionID    string
	Attachment  *Attachment
}

// NewDraft returns the draft a freshly mounted wizard starts from.
func NewDraft() Draft {
	return Draft{
		Gender:      GenderMale,
		Citizenship: CitizenshipDomestic,
	}
}

// With returns a copy of d with the text attribute f replaced by value.
// The attachment is not a text attribute and is rejected here.
func (d Draft) With(f Field, value string) (Draft, error) {
	switch f {
	case FieldFullName:
		d.FullName = value
	case FieldGender:
		g, err := ParseGender(value)
		if err != nil {
			return d, err
		}
		d.Gender = g
	case FieldBirthPlace:
		d.BirthPlace = value
	case FieldBirthDate:
		value = strings.TrimSpace(value)
		if value == "" {
			d.BirthDate = time.Time{}
			break
		}
		t, err := time.Parse(DateLayout, value)
		if err != nil {
			return d, dErrors.New(dErrors.CodeValidation, "birth date must be formatted as YYYY-MM-DD")
		}
		d.BirthDate = t
	case FieldAddress:
		d.Address = value
	case FieldCitizenship:
		c, err := ParseCitizenship(value)
		if err != nil {
			return d, err
		}
		d.Citizenship = c
	case FieldPhone:
		d.Phone = value
	case FieldEmail:
		d.Email = value
	case FieldRegion:
		d.RegionID = strings.TrimSpace(value)
	default:
		return d, dErrors.New(dErrors.CodeValidation, "field is not a text attribute: "+string(f))
	}
	return d, nil
}

// HasBirthDate reports whether a birth date was entered.
func (d Draft) HasBirthDate() bool {
	return !d.BirthDate.IsZero()
}

// FormValues returns the text attributes keyed by field, as submitted to the
// registry. Optional empty values are omitted.
func (d Draft) FormValues() map[Field]string {
	values := map[Field]string{
		FieldFullName:    strings.TrimSpace(d.FullName),
		FieldGender:      string(d.Gender),
		FieldBirthPlace:  strings.TrimSpace(d.BirthPlace),
		FieldAddress:     strings.TrimSpace(d.Address),
		FieldCitizenship: string(d.Citizenship),
		FieldPhone:       strings.TrimSpace(d.Phone),
		FieldRegion:      d.RegionID,
	}
	if d.HasBirthDate() {
		values[FieldBirthDate] = d.BirthDate.Format(DateLayout)
	}
	if email := strings.TrimSpace(d.Email); email != "" {
		values[FieldEmail] = email
	}
	return values
}

// AgeAt returns the age in completed years of someone born on birth at now.
func AgeAt(birth, now time.Time) int {
	if birth.IsZero() {
		return 0
	}
	by, bm, bd := birth.Date()
	ny, nm, nd := now.Date()
	age := ny - by
	if nm < bm || (nm == bm && nd < bd) {
		age--
	}
	return age
}
