// Package draft holds the in-progress registration and its current
// field-error map for one wizard instance.
package draft

import (
	"log/slog"
	"sync"

	"relawan/internal/registration/models"
	"relawan/internal/registration/validation"
	dErrors "relawan/pkg/domain-errors"
	"relawan/pkg/platform/sentinel"
)

// Store is the single owner of a wizard's draft. Mutations are rejected while
// the store is frozen (during submission and after success).
type Store struct {
	mu      sync.Mutex
	draft   models.Draft
	errors  models.FieldErrors
	preview string
	// attachGen changes on every attachment mutation so a late preview
	// derivation for a replaced file is dropped.
	attachGen uint64
	frozen    bool

	regions validation.RegionLookup
	logger  *slog.Logger
	derive  func(*models.Attachment) string
}

func errFrozen() error {
	return dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeConflict, "registration can no longer be edited")
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithPreviewDeriver replaces the function turning an accepted attachment
// into its preview URL.
func WithPreviewDeriver(derive func(*models.Attachment) string) Option {
	return func(s *Store) {
		s.derive = derive
	}
}

// New creates a store holding a fresh draft. regions resolves region ids.
func New(regions validation.RegionLookup, opts ...Option) *Store {
	s := &Store{
		draft:   models.NewDraft(),
		errors:  models.FieldErrors{},
		regions: regions,
		logger:  slog.Default(),
		derive:  (*models.Attachment).PreviewURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Draft returns a copy of the current draft.
func (s *Store) Draft() models.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Errors returns a copy of the current field-error map.
func (s *Store) Errors() models.FieldErrors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors.Clone()
}

// SetErrors replaces the error map wholesale with the result of a validation pass.
func (s *Store) SetErrors(errs models.FieldErrors) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = errs.Clone()
}

// MergeErrors overlays server-reported errors on the current map.
func (s *Store) MergeErrors(server models.FieldErrors) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = s.errors.Merge(server)
}

// Update replaces one text attribute. A region id must resolve in the
// directory; an empty value clears the selection.
func (s *Store) Update(f models.Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return errFrozen()
	}
	next, err := s.draft.With(f, value)
	if err != nil {
		return err
	}
	if f == models.FieldRegion && next.RegionID != "" && (s.regions == nil || !s.regions.Contains(next.RegionID)) {
		return dErrors.New(dErrors.CodeValidation, validation.MsgUnknownRegion)
	}
	s.draft = next
	return nil
}

// Attach records a as the attachment candidate and runs the file constraints
// on it. The returned message is empty when the file was accepted; only an
// accepted file gets a preview, derived in the background.
func (s *Store) Attach(a *models.Attachment) (string, error) {
	if a == nil {
		return "", s.ClearAttachment()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return "", errFrozen()
	}

	s.attachGen++
	s.draft.Attachment = a
	s.preview = ""

	msg := validation.CheckAttachment(a, false)
	if msg != "" {
		s.errors[models.FieldAttachment] = msg
		return msg, nil
	}
	delete(s.errors, models.FieldAttachment)

	go s.derivePreview(s.attachGen, a)
	return "", nil
}

// ClearAttachment removes the candidate, its preview and its error.
func (s *Store) ClearAttachment() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return errFrozen()
	}
	s.attachGen++
	s.draft.Attachment = nil
	s.preview = ""
	delete(s.errors, models.FieldAttachment)
	return nil
}

func (s *Store) derivePreview(gen uint64, a *models.Attachment) {
	url := s.derive(a)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.attachGen {
		s.logger.Debug("dropping stale attachment preview", "file_name", a.FileName)
		return
	}
	s.preview = url
}

// Preview returns the derived preview URL, empty until derivation finishes.
func (s *Store) Preview() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

// Freeze rejects further mutations until Unfreeze.
func (s *Store) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}

// Seal freezes the store and returns the draft as frozen. No Update can land
// between the two.
func (s *Store) Seal() models.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
	return s.draft
}

func (s *Store) Unfreeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = false
}

func (s *Store) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}
