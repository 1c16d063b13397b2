// Package registry is the HTTP client for the external volunteer registry:
// region directory, registration creation and read-by-id.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relawan/internal/registration/models"
)

const (
	opListRegions        = "list_regions"
	opCreateRegistration = "create_registration"
	opGetRegistration    = "get_registration"

	// maxResponseBody caps how much of a registry response is read.
	maxResponseBody = 1 << 20
)

// Upload is the binary part of a registration form.
type Upload struct {
	FieldName   string
	FileName    string
	ContentType string
	Data        []byte
}

// CreateRequest is a registration form: text fields keyed by wire name plus
// an optional file part.
type CreateRequest struct {
	Fields map[string]string
	File   *Upload
}

// Client talks to the registry over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends the key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a registry client rooted at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tracer:     otel.Tracer("relawan/registry"),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListRegions fetches the region directory.
func (c *Client) ListRegions(ctx context.Context) ([]models.RegionOption, error) {
	ctx, span := c.tracer.Start(ctx, "registry.ListRegions")
	defer span.End()

	req, err := c.newRequest(ctx, http.MethodGet, "/regions", nil)
	if err != nil {
		return nil, c.fail(span, NewError(ErrorInternal, opListRegions, "build request", err))
	}

	var regions []models.RegionOption
	if err := c.do(req, opListRegions, &regions); err != nil {
		return nil, c.fail(span, err)
	}
	span.SetAttributes(attribute.Int("registry.regions", len(regions)))
	return regions, nil
}

// CreateRegistration submits a registration form as multipart/form-data.
func (c *Client) CreateRegistration(ctx context.Context, form CreateRequest) (*models.Registration, error) {
	ctx, span := c.tracer.Start(ctx, "registry.CreateRegistration")
	defer span.End()

	body, contentType, err := encodeMultipart(form)
	if err != nil {
		return nil, c.fail(span, NewError(ErrorInternal, opCreateRegistration, "encode form", err))
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/volunteers", body)
	if err != nil {
		return nil, c.fail(span, NewError(ErrorInternal, opCreateRegistration, "build request", err))
	}
	req.Header.Set("Content-Type", contentType)

	var reg models.Registration
	if err := c.do(req, opCreateRegistration, &reg); err != nil {
		return nil, c.fail(span, err)
	}
	if reg.ID == "" {
		return nil, c.fail(span, NewError(ErrorBadData, opCreateRegistration, "response carries no registration id", nil))
	}
	span.SetAttributes(attribute.String("registry.registration_id", reg.ID))
	return &reg, nil
}

// GetRegistration reads one registration by id.
func (c *Client) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	ctx, span := c.tracer.Start(ctx, "registry.GetRegistration", trace.WithAttributes(
		attribute.String("registry.registration_id", id),
	))
	defer span.End()

	req, err := c.newRequest(ctx, http.MethodGet, "/volunteers/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, c.fail(span, NewError(ErrorInternal, opGetRegistration, "build request", err))
	}

	var reg models.Registration
	if err := c.do(req, opGetRegistration, &reg); err != nil {
		return nil, c.fail(span, err)
	}
	return &reg, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// do executes req and decodes the {"data": ...} envelope into out.
func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return classifyTransportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFailure(op, resp.StatusCode, raw)
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return NewError(ErrorBadData, op, "decode response", err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return NewError(ErrorBadData, op, "response has no data", nil)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return NewError(ErrorBadData, op, "decode response data", err)
	}
	return nil
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(CategoryOf(err)))
	c.logger.Warn("registry call failed", "error", err, "category", CategoryOf(err))
	return err
}

func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTimeout, op, "request timed out", err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(ErrorTimeout, op, "request timed out", err)
	}
	return NewError(ErrorUnavailable, op, "request failed", err)
}

// errorBody is the registry's failure envelope. Each errors entry is either
// a single message or a list of messages.
type errorBody struct {
	Message string                     `json:"message"`
	Errors  map[string]json.RawMessage `json:"errors"`
}

func decodeFailure(op string, status int, raw []byte) *Error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	category := ErrorUnavailable
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		category = ErrorAuthentication
	case status == http.StatusNotFound:
		category = ErrorNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		category = ErrorUnavailable
	case status >= 400:
		category = ErrorRejected
	}

	e := &Error{
		Category:   category,
		Op:         op,
		StatusCode: status,
		Message:    body.Message,
	}
	if category == ErrorRejected {
		e.Fields = flattenFieldErrors(body.Errors)
	}
	return e
}

func flattenFieldErrors(in map[string]json.RawMessage) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for field, raw := range in {
		var single string
		if err := json.Unmarshal(raw, &single); err == nil {
			if single != "" {
				out[field] = single
			}
			continue
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			out[field] = list[0]
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func encodeMultipart(form CreateRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(form.Fields))
	for k := range form.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, form.Fields[k]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}

	if f := form.File; f != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.FieldName, f.FileName))
		h.Set("Content-Type", f.ContentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write file part: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
