package handler

import (
	dErrors "relawan/pkg/domain-errors"
)

const maxFieldValueLength = 500

// UpdateFieldRequest is the body of PUT /wizards/{wizardID}/fields/{field}.
type UpdateFieldRequest struct {
	Value string `json:"value"`
}

// Validate implements httputil.Validatable.
func (r *UpdateFieldRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Value) > maxFieldValueLength {
		return dErrors.New(dErrors.CodeValidation, "value must be at most 500 characters")
	}
	return nil
}
