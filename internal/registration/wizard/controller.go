// Package wizard implements the three-step registration state machine.
//
//	Step1 --advance[step 1 valid]--> Step2 --advance[step 2 valid]--> Step3
//	Step2 --back--> Step1, Step3 --back--> Step2
//	Step3 --submit[all valid]--> Submitting --ok--> Success
//	                                         --fail--> Step3 (errors merged, notice raised)
//
// Success is terminal. The controller is independent of any transport so it
// can be driven directly in tests.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"relawan/internal/platform/metrics"
	"relawan/internal/registration/draft"
	"relawan/internal/registration/gateway"
	"relawan/internal/registration/models"
	"relawan/internal/registration/validation"
	dErrors "relawan/pkg/domain-errors"
	"relawan/pkg/platform/sentinel"
)

// Submitter sends a validated draft to the registry.
type Submitter interface {
	Submit(ctx context.Context, d models.Draft) (*models.Registration, error)
}

// CompletionWriter publishes a successful registration to the confirmation view.
type CompletionWriter interface {
	Complete(ctx context.Context, registrationID string) error
}

// SubmitOutcome tells the caller what a Submit call did.
type SubmitOutcome string

const (
	// SubmitSucceeded: the registry accepted the draft, state is Success.
	SubmitSucceeded SubmitOutcome = "success"
	// SubmitFailed: the registry call failed, state is back at Step3.
	SubmitFailed SubmitOutcome = "failed"
	// SubmitRejected: local validation failed, the registry was not called.
	SubmitRejected SubmitOutcome = "rejected"
	// SubmitIgnored: a submission was already in flight.
	SubmitIgnored SubmitOutcome = "ignored"
	// SubmitDetached: the wizard was unmounted while the call was in flight.
	SubmitDetached SubmitOutcome = "detached"
)

// SubmitResult is returned by Submit.
type SubmitResult struct {
	Outcome      SubmitOutcome
	State        models.State
	Registration *models.Registration
	Failure      *gateway.Failure
}

// Controller owns one wizard instance. All events are serialized by mu; the
// registry call itself runs unlocked with the Submitting state guarding it.
type Controller struct {
	mu           sync.Mutex
	state        models.State
	notice       string
	registration *models.Registration
	detached     bool

	store     *draft.Store
	regions   validation.RegionLookup
	submitter Submitter
	handoff   CompletionWriter

	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// New creates a controller at Step1 over store.
func New(store *draft.Store, regions validation.RegionLookup, submitter Submitter, handoff CompletionWriter, opts ...Option) *Controller {
	c := &Controller{
		state:     models.StateStep1,
		store:     store,
		regions:   regions,
		submitter: submitter,
		handoff:   handoff,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() models.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Notice returns the global notice raised by the last failed submission, if any.
func (c *Controller) Notice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

// Registration returns the created registration once the wizard succeeded.
func (c *Controller) Registration() *models.Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registration
}

func (c *Controller) Store() *draft.Store {
	return c.store
}

// Advance moves forward one step when the current step validates. It reports
// whether the transition happened; on rejection the step's errors are
// published to the draft store and the state is unchanged.
func (c *Controller) Advance(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkAttached(); err != nil {
		return false, err
	}

	var next models.State
	switch c.state {
	case models.StateStep1:
		next = models.StateStep2
	case models.StateStep2:
		next = models.StateStep3
	default:
		return false, c.invalid("advance")
	}

	d := c.store.Draft()
	errs := validation.ForState(c.state, d, c.now(), c.regions)
	c.store.SetErrors(withHeldAttachment(errs, d))
	if !errs.Empty() {
		c.metrics.IncrementRejected(c.state.String())
		c.logger.DebugContext(ctx, "advance rejected", "state", c.state, "fields", len(errs))
		return false, nil
	}

	c.transition(next)
	return true, nil
}

// Back moves to the previous step unconditionally.
func (c *Controller) Back(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkAttached(); err != nil {
		return err
	}

	switch c.state {
	case models.StateStep2:
		c.transition(models.StateStep1)
	case models.StateStep3:
		c.transition(models.StateStep2)
	default:
		return c.invalid("back")
	}
	return nil
}

// Submit validates the whole draft and, when it passes, sends it to the
// registry. A Submit arriving while another is in flight is ignored. The
// registry call does not inherit ctx's cancellation.
func (c *Controller) Submit(ctx context.Context) (SubmitResult, error) {
	snapshot, early, err := c.beginSubmit(ctx)
	if err != nil {
		return SubmitResult{}, err
	}
	if early != nil {
		return *early, nil
	}

	start := time.Now()
	reg, callErr := c.call(context.WithoutCancel(ctx), snapshot)
	return c.settle(ctx, reg, callErr, start), nil
}

// beginSubmit runs the local checks and enters Submitting. It returns a
// non-nil result when Submit must stop without calling the registry.
func (c *Controller) beginSubmit(ctx context.Context) (models.Draft, *SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkAttached(); err != nil {
		return models.Draft{}, nil, err
	}

	switch c.state {
	case models.StateSubmitting:
		c.metrics.IncrementSubmission(string(SubmitIgnored))
		return models.Draft{}, &SubmitResult{Outcome: SubmitIgnored, State: c.state}, nil
	case models.StateStep3:
	default:
		return models.Draft{}, nil, c.invalid("submit")
	}

	d := c.store.Seal()
	errs := validation.Submission(d, c.now(), c.regions)
	c.store.SetErrors(errs)
	if !errs.Empty() {
		c.store.Unfreeze()
		c.notice = gateway.MsgFixForm
		c.metrics.IncrementSubmission(string(SubmitRejected))
		c.logger.InfoContext(ctx, "submission rejected locally", "fields", len(errs))
		return models.Draft{}, &SubmitResult{Outcome: SubmitRejected, State: c.state}, nil
	}

	c.notice = ""
	c.transition(models.StateSubmitting)
	return d, nil, nil
}

// call invokes the submitter, turning a panic into a transport failure.
func (c *Controller) call(ctx context.Context, d models.Draft) (reg *models.Registration, err error) {
	defer func() {
		if r := recover(); r != nil {
			reg, err = nil, gateway.Transport(fmt.Errorf("submitter panicked: %v", r))
		}
	}()
	return c.submitter.Submit(ctx, d)
}

func (c *Controller) settle(ctx context.Context, reg *models.Registration, callErr error, start time.Time) SubmitResult {
	c.mu.Lock()

	if c.detached {
		c.mu.Unlock()
		c.metrics.IncrementSubmission(string(SubmitDetached))
		c.logger.WarnContext(ctx, "submission settled after wizard was unmounted",
			"succeeded", callErr == nil,
			"duration", time.Since(start),
			"error", callErr,
		)
		return SubmitResult{Outcome: SubmitDetached, State: models.StateSubmitting, Registration: reg}
	}

	if callErr == nil && reg == nil {
		callErr = gateway.Transport(errors.New("registry returned no registration"))
	}
	if callErr != nil {
		failure := asFailure(callErr)
		if failure.Kind == gateway.KindValidation {
			c.store.MergeErrors(failure.Fields)
		}
		c.notice = failure.Message
		c.store.Unfreeze()
		c.logger.InfoContext(ctx, "submission failed", "kind", failure.Kind, "duration", time.Since(start))
		c.transitionVia(models.StateFailed, models.StateStep3)
		c.mu.Unlock()
		return SubmitResult{Outcome: SubmitFailed, State: models.StateStep3, Failure: failure}
	}

	c.registration = reg
	c.transition(models.StateSuccess)
	c.mu.Unlock()

	// Success is terminal, so this runs once per wizard.
	if err := c.handoff.Complete(context.WithoutCancel(ctx), reg.ID); err != nil {
		c.logger.ErrorContext(ctx, "failed to write registration handoff",
			"registration_id", reg.ID,
			"error", err,
		)
	}
	c.logger.InfoContext(ctx, "registration submitted",
		"registration_id", reg.ID,
		"duration", time.Since(start),
	)
	return SubmitResult{Outcome: SubmitSucceeded, State: models.StateSuccess, Registration: reg}
}

// Detach marks the wizard as unmounted. Later events fail, and an in-flight
// submission settles without touching state or the handoff marker.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
}

func (c *Controller) Detached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detached
}

func (c *Controller) transition(to models.State) {
	c.metrics.IncrementTransition(c.state.String(), to.String())
	c.state = to
}

// transitionVia records a pass through an intermediate state that the
// wizard never rests in.
func (c *Controller) transitionVia(via, to models.State) {
	c.metrics.IncrementTransition(c.state.String(), via.String())
	c.metrics.IncrementTransition(via.String(), to.String())
	c.state = to
}

func (c *Controller) checkAttached() error {
	if c.detached {
		return dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeConflict, "wizard is no longer mounted")
	}
	return nil
}

func (c *Controller) invalid(event string) error {
	return dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeConflict,
		fmt.Sprintf("%s is not allowed in state %s", event, c.state))
}

// withHeldAttachment keeps the error of an attachment candidate that is still
// held but invalid, so rebuilding the map for a step does not hide it.
func withHeldAttachment(errs models.FieldErrors, d models.Draft) models.FieldErrors {
	msg := validation.CheckAttachment(d.Attachment, false)
	if msg == "" {
		return errs
	}
	out := errs.Clone()
	out.Add(models.FieldAttachment, msg)
	return out
}

func asFailure(err error) *gateway.Failure {
	var f *gateway.Failure
	if errors.As(err, &f) {
		return f
	}
	return gateway.Transport(err)
}
