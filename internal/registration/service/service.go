// Package service hosts registration wizards for browser sessions: it mounts
// and unmounts them, routes events to their controllers, and serves the
// confirmation view from the handoff marker.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"relawan/internal/platform/metrics"
	"relawan/internal/registration/draft"
	"relawan/internal/registration/events"
	"relawan/internal/registration/gateway"
	"relawan/internal/registration/handoff"
	"relawan/internal/registration/models"
	"relawan/internal/registration/ports"
	"relawan/internal/registration/wizard"
	"relawan/internal/registry"
	dErrors "relawan/pkg/domain-errors"
	"relawan/pkg/platform/sentinel"
	"relawan/pkg/requestcontext"
)

const (
	defaultSessionTTL   = 30 * time.Minute
	defaultFetchTimeout = 10 * time.Second

	// defaultPublishTimeout bounds event publication inside a submit request.
	defaultPublishTimeout = 5 * time.Second
)

// session is one mounted wizard.
type session struct {
	id          string
	owner       string
	controller  *wizard.Controller
	directory   *registry.Directory
	cancelFetch context.CancelFunc
}

// Service is the registration application service.
type Service struct {
	registry  ports.RegistryPort
	submitter wizard.Submitter
	handoff   handoff.Store
	events    events.Publisher
	wizards   *cache.Cache

	sessionTTL     time.Duration
	fetchTimeout   time.Duration
	submitTimeout  time.Duration
	publishTimeout time.Duration
	now            func() time.Time
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithEvents(p events.Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithSessionTTL sets how long an idle wizard stays mounted.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithRegistryTimeout bounds region fetches and submissions.
func WithRegistryTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
			s.submitTimeout = d
		}
	}
}

// WithPublishTimeout bounds how long a successful submit waits for its event
// to be published.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// WithSubmitter replaces the registry gateway used by wizards.
func WithSubmitter(sub wizard.Submitter) Option {
	return func(s *Service) {
		s.submitter = sub
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates the service. Unless WithSubmitter is given, submissions go
// through a gateway over reg.
func New(reg ports.RegistryPort, store handoff.Store, opts ...Option) *Service {
	s := &Service{
		registry:       reg,
		handoff:        store,
		events:         events.NopPublisher{},
		sessionTTL:     defaultSessionTTL,
		fetchTimeout:   defaultFetchTimeout,
		submitTimeout:  defaultFetchTimeout,
		publishTimeout: defaultPublishTimeout,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.submitter == nil {
		s.submitter = gateway.New(reg,
			gateway.WithTimeout(s.submitTimeout),
			gateway.WithMetrics(s.metrics),
			gateway.WithLogger(s.logger),
		)
	}

	s.wizards = cache.New(s.sessionTTL, s.sessionTTL/2)
	s.wizards.OnEvicted(func(id string, v any) {
		sess, ok := v.(*session)
		if !ok {
			return
		}
		sess.cancelFetch()
		sess.controller.Detach()
		s.logger.Debug("wizard unmounted", "wizard_id", id)
	})
	return s
}

// Mount creates a wizard for the browsing session and starts the region
// fetch in the background.
func (s *Service) Mount(ctx context.Context, browserSession string) (View, error) {
	if browserSession == "" {
		return View{}, dErrors.New(dErrors.CodeBadRequest, "missing browsing session")
	}

	id := uuid.NewString()
	dir := registry.NewDirectory()
	store := draft.New(dir, draft.WithLogger(s.logger))
	writer := handoff.NewWriter(s.handoff, browserSession, s.metrics)
	controller := wizard.New(store, dir, s.submitter, writer,
		wizard.WithClock(s.now),
		wizard.WithMetrics(s.metrics),
		wizard.WithLogger(s.logger.With("wizard_id", id)),
	)

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
	sess := &session{
		id:          id,
		owner:       browserSession,
		controller:  controller,
		directory:   dir,
		cancelFetch: cancel,
	}
	go s.loadRegions(fetchCtx, cancel, sess)

	s.wizards.SetDefault(id, sess)
	s.metrics.IncrementWizardsMounted()
	s.logger.InfoContext(ctx, "wizard mounted",
		"wizard_id", id,
		"request_id", requestcontext.RequestID(ctx),
	)
	return buildView(id, controller, dir), nil
}

func (s *Service) loadRegions(ctx context.Context, cancel context.CancelFunc, sess *session) {
	defer cancel()
	if err := sess.directory.Load(ctx, s.registry); err != nil {
		s.metrics.IncrementRegionFetch("error")
		s.logger.WarnContext(ctx, "region fetch failed",
			"wizard_id", sess.id,
			"error", err,
		)
		return
	}
	s.metrics.IncrementRegionFetch("ok")
}

// Get returns the current view of a wizard.
func (s *Service) Get(ctx context.Context, browserSession, wizardID string) (View, error) {
	sess, err := s.lookup(browserSession, wizardID)
	if err != nil {
		return View{}, err
	}
	return s.view(sess), nil
}

// UpdateField replaces one text attribute of the draft.
func (s *Service) UpdateField(ctx context.Context, browserSession, wizardID, field, value string) (View, error) {
	sess, err := s.lookup(browserSession, wizardID)
	if err != nil {
		return View{}, err
	}
	f, err := models.ParseField(field)
	if err != nil {
		return View{}, err
	}
	if f == models.FieldAttachment {
		return View{}, dErrors.New(dErrors.CodeBadRequest, "the attachment is uploaded separately")
	}
	if err := sess.controller.Store().Update(f, value); err != nil {
		return View{}, err
	}
	return s.view(sess), nil
}

// Attach records an attachment candidate. Constraint failures are reported
// in the view's errors, not as an error.
func (s *Service) Attach(ctx context.Context, browserSession, wizardID string, a *models.Attachment) (View, error) {
	sess, err := s.lookup(browserSession, wizardID)
	if err != nil {
		return View{}, err
	}
	if _, err := sess.controller.Store().Attach(a); err != nil {
		return View{}, err
	}
	return s.view(sess), nil
}

func (s *Service) ClearAttachment(ctx context.Context, browserSession, wizardID string) (View, error) {
	sess, err := s.lookup(browserSession, wizardID)
	if err != nil {
		return View{}, err
	}
	if err := sess.controller.Store().ClearAttachment(); err != nil {
		return View{}, err
	}
	return s.view(sess), nil
}

// Advance attempts the forward transition out of the current step.
func (s *Service) Advance(ctx context.Context, browserSession, wizardID string) (View, error) {
	sess, err := s.lookup(browserSession, wizardID)
	if err != nil {
		return View{}, err
	}
	if _, err := sess.controller.Advance(ctx); err != nil {
		return View{}, err
	}
	return s.view(sess), nil
}

func (s *Service) Back(ctx context.Context, browserSession, wizardID string) (View, error) {
	sess, err := s.lookup(browserSession, wizardID)
	if err != nil {
		return View{}, err
	}
	if err := sess.controller.Back(ctx); err != nil {
		return View{}, err
	}
	return s.view(sess), nil
}

// Submit sends the draft to the registry. On success a registration event
// is published; publication failures are logged only.
func (s *Service) Submit(ctx context.Context, browserSession, wizardID string) (SubmitView, error) {
	sess, err := s.lookup(browserSession, wizardID)
	if err != nil {
		return SubmitView{}, err
	}

	res, err := sess.controller.Submit(ctx)
	if err != nil {
		return SubmitView{}, err
	}
	if res.Outcome == wizard.SubmitSucceeded {
		s.publish(ctx, sess, res.Registration)
	}
	return SubmitView{View: s.view(sess), Outcome: res.Outcome}, nil
}

func (s *Service) publish(ctx context.Context, sess *session, reg *models.Registration) {
	d := sess.controller.Store().Draft()
	event := events.RegistrationCompleted{
		EventID:        uuid.New(),
		RegistrationID: reg.ID,
		Status:         reg.Status,
		RegionID:       d.RegionID,
		Citizenship:    string(d.Citizenship),
		RequestID:      requestcontext.RequestID(ctx),
		OccurredAt:     s.now().UTC(),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.events.Publish(pubCtx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish registration event",
			"registration_id", reg.ID,
			"error", err,
		)
	}
}

// Unmount discards a wizard. An in-flight submission still settles but no
// longer affects the wizard or the handoff marker.
func (s *Service) Unmount(ctx context.Context, browserSession, wizardID string) error {
	if _, err := s.lookup(browserSession, wizardID); err != nil {
		return err
	}
	s.wizards.Delete(wizardID)
	s.logger.InfoContext(ctx, "wizard unmount requested", "wizard_id", wizardID)
	return nil
}

// Confirmation reads and clears the browsing session's handoff marker. When
// a registration id was handed off the full record is fetched; a failed fetch
// still renders the id.
func (s *Service) Confirmation(ctx context.Context, browserSession string) (Confirmation, error) {
	if browserSession == "" {
		return Confirmation{}, nil
	}

	var out Confirmation
	err := handoff.Scope(ctx, s.handoff, browserSession, s.metrics, func(m handoff.Marker) error {
		out.Completed = m.Completed
		out.RegistrationID = m.RegistrationID
		if m.RegistrationID == "" {
			return nil
		}
		reg, err := s.registry.GetRegistration(ctx, m.RegistrationID)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to load confirmed registration",
				"registration_id", m.RegistrationID,
				"error", err,
			)
			return nil
		}
		out.Registration = reg
		return nil
	})
	if err != nil {
		return Confirmation{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "confirmation is temporarily unavailable")
	}
	return out, nil
}

// Mounted returns the number of live wizards.
func (s *Service) Mounted() int {
	return s.wizards.ItemCount()
}

// Close unmounts every wizard.
func (s *Service) Close() {
	for id := range s.wizards.Items() {
		s.wizards.Delete(id)
	}
}

func (s *Service) lookup(browserSession, wizardID string) (*session, error) {
	v, ok := s.wizards.Get(wizardID)
	if !ok {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "wizard not found")
	}
	sess := v.(*session)
	if sess.owner != browserSession {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "wizard not found")
	}
	// Any event counts as activity.
	s.wizards.SetDefault(wizardID, sess)
	return sess, nil
}

func (s *Service) view(sess *session) View {
	return buildView(sess.id, sess.controller, sess.directory)
}
