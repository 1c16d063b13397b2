package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, clients and the wizard
// controller return these (optionally wrapped) so services can translate them
// into domain errors.
//
//   - ErrNotFound: wizard, handoff entry or registration does not exist
//   - ErrInvalidState: event not defined for the wizard's current state
//   - ErrUnavailable: registry or storage temporarily unavailable
//
// For field validation failures use the registration FieldErrors map instead.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
