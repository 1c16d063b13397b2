// Package sandbox is an in-memory stand-in for the volunteer registry, used
// for local runs and end-to-end tests. It speaks the same wire format as the
// real service.
package sandbox

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"relawan/internal/registration/models"
	"relawan/internal/registration/validation"
	"relawan/pkg/platform/httputil"
)

const maxUploadMemory = 8 << 20

// MsgEmailTaken is returned when a registration reuses an email address.
const MsgEmailTaken = "email already registered"

// DefaultRegions seeds a sandbox started without an explicit region list.
var DefaultRegions = []models.RegionOption{
	{ID: "jkt", Name: "DKI Jakarta"},
	{ID: "jbr", Name: "Jawa Barat"},
	{ID: "jtg", Name: "Jawa Tengah"},
	{ID: "jtm", Name: "Jawa Timur"},
	{ID: "bali", Name: "Bali"},
}

// Server holds registrations in memory.
type Server struct {
	mu            sync.RWMutex
	regions       []models.RegionOption
	registrations map[string]models.Registration
	emails        map[string]string

	apiKey string
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Server)

// WithAPIKey requires requests to carry the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a sandbox serving regions. A nil slice uses DefaultRegions.
func New(regions []models.RegionOption, opts ...Option) *Server {
	if regions == nil {
		regions = DefaultRegions
	}
	s := &Server{
		regions:       regions,
		registrations: make(map[string]models.Registration),
		emails:        make(map[string]string),
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register wires the registry routes onto r.
func (s *Server) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/regions", s.handleListRegions)
		r.Post("/volunteers", s.handleCreate)
		r.Get("/volunteers/{id}", s.handleGet)
	})
}

// Handler returns a standalone router serving the registry.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Register(r)
	return r
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+s.apiKey {
			writeFailure(w, http.StatusUnauthorized, "invalid api key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListRegions(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": s.regions})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.RLock()
	reg, ok := s.registrations[id]
	s.mu.RUnlock()
	if !ok {
		writeFailure(w, http.StatusNotFound, "registration not found", nil)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": reg})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeFailure(w, http.StatusBadRequest, "expected multipart form", nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	value := func(f models.Field) string {
		return strings.TrimSpace(r.FormValue(string(f)))
	}

	fieldErrs := map[string]any{}
	for _, f := range []models.Field{
		models.FieldFullName, models.FieldGender, models.FieldBirthPlace, models.FieldBirthDate,
		models.FieldAddress, models.FieldCitizenship, models.FieldPhone, models.FieldRegion,
	} {
		if value(f) == "" {
			fieldErrs[string(f)] = []string{validation.MsgRequired}
		}
	}
	if id := value(models.FieldRegion); id != "" && !s.knownRegion(id) {
		fieldErrs[string(models.FieldRegion)] = validation.MsgUnknownRegion
	}
	email := strings.ToLower(value(models.FieldEmail))
	if email != "" && !validation.IsEmail(email) {
		fieldErrs[string(models.FieldEmail)] = validation.MsgInvalidEmail
	}

	attachment, err := readAttachment(r)
	if err != nil {
		fieldErrs[string(models.FieldAttachment)] = validation.MsgAttachmentRequired
	} else if msg := validation.CheckAttachment(attachment, true); msg != "" {
		fieldErrs[string(models.FieldAttachment)] = msg
	}

	if len(fieldErrs) > 0 {
		writeFailure(w, http.StatusUnprocessableEntity, "the given data was invalid", fieldErrs)
		return
	}

	reg := models.Registration{
		ID:             uuid.NewString(),
		Status:         models.StatusPending,
		FullName:       value(models.FieldFullName),
		Gender:         value(models.FieldGender),
		BirthPlace:     value(models.FieldBirthPlace),
		BirthDate:      value(models.FieldBirthDate),
		Address:        value(models.FieldAddress),
		Citizenship:    value(models.FieldCitizenship),
		Phone:          value(models.FieldPhone),
		Email:          email,
		RegionID:       value(models.FieldRegion),
		ProfilePicture: attachment.FileName,
		CreatedAt:      s.now().UTC(),
	}

	s.mu.Lock()
	if email != "" {
		if _, taken := s.emails[email]; taken {
			s.mu.Unlock()
			writeFailure(w, http.StatusUnprocessableEntity, "the given data was invalid", map[string]any{
				string(models.FieldEmail): []string{MsgEmailTaken},
			})
			return
		}
		s.emails[email] = reg.ID
	}
	s.registrations[reg.ID] = reg
	s.mu.Unlock()

	s.logger.InfoContext(r.Context(), "sandbox registration created",
		"registration_id", reg.ID,
		"region", reg.RegionID,
	)
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"data": reg})
}

// Registration returns a stored registration by id.
// Len returns the number of stored registrations.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.registrations)
}

func (s *Server) Registration(id string) (models.Registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.registrations[id]
	return reg, ok
}

func (s *Server) knownRegion(id string) bool {
	for _, r := range s.regions {
		if r.ID == id {
			return true
		}
	}
	return false
}

var errNoFile = errors.New("no profile picture")

func readAttachment(r *http.Request) (*models.Attachment, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[string(models.FieldAttachment)]) == 0 {
		return nil, errNoFile
	}
	fh := r.MultipartForm.File[string(models.FieldAttachment)][0]
	return &models.Attachment{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
	}, nil
}

func writeFailure(w http.ResponseWriter, status int, message string, fields map[string]any) {
	body := map[string]any{"message": message}
	if len(fields) > 0 {
		body["errors"] = fields
	}
	httputil.WriteJSON(w, status, body)
}
