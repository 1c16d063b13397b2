// Package validation holds the pure rule sets that gate wizard transitions.
//
// Every function here is stateless: it reads the draft it is given, never
// mutates it, and returns a freshly built FieldErrors map (empty means valid).
// Calling a rule set twice on the same inputs yields equal maps.
package validation

import (
	"regexp"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"

	"relawan/internal/registration/models"
)

// MinimumAge is the youngest a volunteer may be on the day they register.
const MinimumAge = 17

const (
	MsgRequired      = "required"
	MsgMinimumAge    = "minimum age is 17"
	MsgInvalidPhone  = "invalid phone number"
	MsgInvalidEmail  = "invalid email address"
	MsgUnknownRegion = "unknown region"
)

var phonePattern = regexp.MustCompile(`^[0-9+\-\s]+$`)

// RegionLookup answers whether a region id is part of the fetched directory.
type RegionLookup interface {
	Contains(id string) bool
}

// Step1 checks the personal information step.
func Step1(d models.Draft, now time.Time) models.FieldErrors {
	errs := models.FieldErrors{}
	if strings.TrimSpace(d.FullName) == "" {
		errs.Add(models.FieldFullName, MsgRequired)
	}
	if strings.TrimSpace(d.BirthPlace) == "" {
		errs.Add(models.FieldBirthPlace, MsgRequired)
	}
	if !d.HasBirthDate() {
		errs.Add(models.FieldBirthDate, MsgRequired)
	} else if models.AgeAt(d.BirthDate, now) < MinimumAge {
		errs.Add(models.FieldBirthDate, MsgMinimumAge)
	}
	if strings.TrimSpace(d.Address) == "" {
		errs.Add(models.FieldAddress, MsgRequired)
	}
	return errs
}

// Step2 checks the contact information step. A nil lookup behaves as an
// empty directory, so no region can be valid.
func Step2(d models.Draft, regions RegionLookup) models.FieldErrors {
	errs := models.FieldErrors{}

	phone := strings.TrimSpace(d.Phone)
	switch {
	case phone == "":
		errs.Add(models.FieldPhone, MsgRequired)
	case !phonePattern.MatchString(d.Phone):
		errs.Add(models.FieldPhone, MsgInvalidPhone)
	}

	if email := strings.TrimSpace(d.Email); email != "" && !IsEmail(email) {
		errs.Add(models.FieldEmail, MsgInvalidEmail)
	}

	switch {
	case d.RegionID == "":
		errs.Add(models.FieldRegion, MsgRequired)
	case regions == nil || !regions.Contains(d.RegionID):
		errs.Add(models.FieldRegion, MsgUnknownRegion)
	}
	return errs
}

// Submission re-checks steps 1 and 2 and requires an acceptable attachment.
func Submission(d models.Draft, now time.Time, regions RegionLookup) models.FieldErrors {
	errs := Step1(d, now).Union(Step2(d, regions))
	if msg := CheckAttachment(d.Attachment, true); msg != "" {
		errs.Add(models.FieldAttachment, msg)
	}
	return errs
}

// ForState returns the rule set guarding the forward transition out of state.
// States without a forward transition validate to an empty map.
func ForState(state models.State, d models.Draft, now time.Time, regions RegionLookup) models.FieldErrors {
	switch state {
	case models.StateStep1:
		return Step1(d, now)
	case models.StateStep2:
		return Step2(d, regions)
	case models.StateStep3:
		return Submission(d, now, regions)
	default:
		return models.FieldErrors{}
	}
}

// IsEmail accepts local@domain.tld shaped addresses.
func IsEmail(s string) bool {
	if !govalidator.IsEmail(s) {
		return false
	}
	domain := s[strings.LastIndexByte(s, '@')+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}
