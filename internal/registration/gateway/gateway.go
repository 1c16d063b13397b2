// Package gateway sends a completed draft to the volunteer registry and
// normalizes every outcome into a registration or a Failure.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relawan/internal/platform/metrics"
	"relawan/internal/registration/models"
	"relawan/internal/registration/ports"
	"relawan/internal/registry"
)

// Kind classifies a failed submission.
type Kind string

const (
	// KindValidation means the registry rejected specific fields.
	KindValidation Kind = "validation"
	// KindTransport covers network errors, malformed responses, non-2xx
	// responses without field errors, and panics in the transport.
	KindTransport Kind = "transport"
)

const (
	// MsgTransport is the only text shown for transport failures.
	MsgTransport = "registration could not be submitted, please try again"
	// MsgFixForm is the notice raised alongside field errors.
	MsgFixForm = "please fix the form"
)

// Failure is the error returned by Submit.
type Failure struct {
	Kind    Kind
	Fields  models.FieldErrors
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("submission failed [%s]: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("submission failed [%s]: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Transport builds the generic transport failure around err.
func Transport(err error) *Failure {
	return &Failure{Kind: KindTransport, Message: MsgTransport, Err: err}
}

type Gateway struct {
	registry ports.RegistryPort
	timeout  time.Duration
	tracer   trace.Tracer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Gateway)

// WithTimeout bounds each registry call. Zero leaves the caller's deadline alone.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func New(reg ports.RegistryPort, opts ...Option) *Gateway {
	g := &Gateway{
		registry: reg,
		tracer:   otel.Tracer("relawan/registration"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit sends d as a multipart registration form. On failure the returned
// error is always a *Failure. Submit never retries.
func (g *Gateway) Submit(ctx context.Context, d models.Draft) (reg *models.Registration, err error) {
	ctx, span := g.tracer.Start(ctx, "gateway.Submit")
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			reg, err = nil, Transport(fmt.Errorf("registry transport panicked: %v", r))
		}
		g.metrics.ObserveSubmission(start)
		g.record(ctx, span, err)
	}()

	created, callErr := g.registry.CreateRegistration(ctx, buildForm(d))
	if callErr != nil {
		return nil, classify(callErr)
	}
	if created == nil || created.ID == "" {
		return nil, Transport(errors.New("registry returned no registration id"))
	}
	span.SetAttributes(attribute.String("registration.id", created.ID))
	return created, nil
}

func (g *Gateway) record(ctx context.Context, span trace.Span, err error) {
	if err == nil {
		g.metrics.IncrementSubmission("success")
		span.SetStatus(codes.Ok, "")
		return
	}
	f := err.(*Failure)
	g.metrics.IncrementSubmission(string(f.Kind))
	span.RecordError(err)
	span.SetStatus(codes.Error, string(f.Kind))
	g.logger.WarnContext(ctx, "registration submission failed",
		"kind", f.Kind,
		"fields", len(f.Fields),
		"error", f.Err,
	)
}

func buildForm(d models.Draft) registry.CreateRequest {
	values := d.FormValues()
	form := registry.CreateRequest{Fields: make(map[string]string, len(values))}
	for f, v := range values {
		form.Fields[string(f)] = v
	}
	if a := d.Attachment; a != nil {
		form.File = &registry.Upload{
			FieldName:   string(models.FieldAttachment),
			FileName:    a.FileName,
			ContentType: a.ContentType,
			Data:        a.Data,
		}
	}
	return form
}

// classify maps a registry error onto the failure taxonomy. Server keys that
// are not known fields are folded into the message.
func classify(err error) *Failure {
	serverFields := registry.FieldErrorsOf(err)
	if len(serverFields) == 0 {
		return Transport(err)
	}

	fields := models.FieldErrors{}
	var unknown []string
	for key, msg := range serverFields {
		f, parseErr := models.ParseField(key)
		if parseErr != nil {
			unknown = append(unknown, key+": "+msg)
			continue
		}
		fields[f] = msg
	}

	message := MsgFixForm
	if len(unknown) > 0 {
		sort.Strings(unknown)
		message += " (" + strings.Join(unknown, "; ") + ")"
	}
	return &Failure{Kind: KindValidation, Fields: fields, Message: message, Err: err}
}
