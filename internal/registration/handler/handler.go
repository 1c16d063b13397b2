// Package handler exposes registration wizards over HTTP. The browser owns
// rendering; every endpoint returns the wizard's current view.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"relawan/internal/registration/models"
	"relawan/internal/registration/service"
	"relawan/internal/registration/validation"
	dErrors "relawan/pkg/domain-errors"
	"relawan/pkg/platform/httputil"
	"relawan/pkg/requestcontext"
)

const (
	// maxUploadBody caps the whole attachment request.
	maxUploadBody = 16 << 20
	// maxUploadMemory is how much of a multipart form is kept in memory.
	maxUploadMemory = 4 << 20
	// sniffLength is how many bytes content sniffing looks at.
	sniffLength = 512
)

// Service defines the interface for wizard operations.
type Service interface {
	Mount(ctx context.Context, browserSession string) (service.View, error)
	Get(ctx context.Context, browserSession, wizardID string) (service.View, error)
	UpdateField(ctx context.Context, browserSession, wizardID, field, value string) (service.View, error)
	Attach(ctx context.Context, browserSession, wizardID string, a *models.Attachment) (service.View, error)
	ClearAttachment(ctx context.Context, browserSession, wizardID string) (service.View, error)
	Advance(ctx context.Context, browserSession, wizardID string) (service.View, error)
	Back(ctx context.Context, browserSession, wizardID string) (service.View, error)
	Submit(ctx context.Context, browserSession, wizardID string) (service.SubmitView, error)
	Unmount(ctx context.Context, browserSession, wizardID string) error
	Confirmation(ctx context.Context, browserSession string) (service.Confirmation, error)
}

// Handler wires wizard endpoints to the registration service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a registration handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the wizard endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/wizards", func(r chi.Router) {
		r.Post("/", h.handleMount)
		r.Route("/{wizardID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleUnmount)
			r.Put("/fields/{field}", h.handleUpdateField)
			r.Put("/attachment", h.handleAttach)
			r.Delete("/attachment", h.handleClearAttachment)
			r.Post("/advance", h.handleAdvance)
			r.Post("/back", h.handleBack)
			r.Post("/submit", h.handleSubmit)
		})
	})
	r.Get("/registration/confirmation", h.handleConfirmation)
}

func (h *Handler) handleMount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.Mount(ctx, requestcontext.BrowserSession(ctx))
	if err != nil {
		h.fail(w, r, "mount wizard", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.Get(ctx, requestcontext.BrowserSession(ctx), chi.URLParam(r, "wizardID"))
	h.respond(w, r, "get wizard", view, err)
}

func (h *Handler) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[UpdateFieldRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	view, err := h.service.UpdateField(ctx, requestcontext.BrowserSession(ctx),
		chi.URLParam(r, "wizardID"), chi.URLParam(r, "field"), req.Value)
	h.respond(w, r, "update field", view, err)
}

func (h *Handler) handleAttach(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)

	attachment, err := readAttachment(r)
	if err != nil {
		h.fail(w, r, "read attachment", err)
		return
	}
	view, err := h.service.Attach(ctx, requestcontext.BrowserSession(ctx), chi.URLParam(r, "wizardID"), attachment)
	h.respond(w, r, "attach file", view, err)
}

func (h *Handler) handleClearAttachment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.ClearAttachment(ctx, requestcontext.BrowserSession(ctx), chi.URLParam(r, "wizardID"))
	h.respond(w, r, "clear attachment", view, err)
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.Advance(ctx, requestcontext.BrowserSession(ctx), chi.URLParam(r, "wizardID"))
	h.respond(w, r, "advance wizard", view, err)
}

func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.Back(ctx, requestcontext.BrowserSession(ctx), chi.URLParam(r, "wizardID"))
	h.respond(w, r, "step back", view, err)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	wizardID := chi.URLParam(r, "wizardID")

	view, err := h.service.Submit(ctx, requestcontext.BrowserSession(ctx), wizardID)
	if err != nil {
		h.fail(w, r, "submit registration", err)
		return
	}

	h.logger.InfoContext(ctx, "registration submit handled",
		"request_id", requestcontext.RequestID(ctx),
		"wizard_id", wizardID,
		"outcome", view.Outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleUnmount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Unmount(ctx, requestcontext.BrowserSession(ctx), chi.URLParam(r, "wizardID")); err != nil {
		h.fail(w, r, "unmount wizard", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conf, err := h.service.Confirmation(ctx, requestcontext.BrowserSession(ctx))
	if err != nil {
		h.fail(w, r, "render confirmation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, conf)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, action string, view service.View, err error) {
	if err != nil {
		h.fail(w, r, action, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, action+" failed",
		"request_id", requestcontext.RequestID(ctx),
		"wizard_id", chi.URLParam(r, "wizardID"),
		"error", err,
	)
	httputil.WriteError(w, err)
}

// readAttachment pulls the profile_picture part out of a multipart upload.
// Files over the size limit are not read: only their declared size is kept,
// which is all the constraint check needs.
func readAttachment(r *http.Request) (*models.Attachment, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, dErrors.New(dErrors.CodeBadRequest, "upload exceeds the request size limit")
		}
		return nil, dErrors.New(dErrors.CodeBadRequest, "expected a multipart form")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(string(models.FieldAttachment))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "missing profile_picture file")
	}
	defer file.Close()

	a := &models.Attachment{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	if a.Size > validation.MaxAttachmentSize {
		return a, nil
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "could not read upload")
	}
	a.Data = data
	if a.ContentType == "" || a.ContentType == "application/octet-stream" {
		a.ContentType = sniff(data)
	}
	return a, nil
}

func sniff(data []byte) string {
	if len(data) > sniffLength {
		data = data[:sniffLength]
	}
	return http.DetectContentType(data)
}
