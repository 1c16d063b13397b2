package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"relawan/internal/platform/metrics"
	"relawan/internal/registration/draft"
	"relawan/internal/registration/gateway"
	"relawan/internal/registration/models"
	"relawan/internal/registration/validation"
	dErrors "relawan/pkg/domain-errors"
	"relawan/pkg/platform/sentinel"
	bdd "relawan/pkg/testutil"
)

var today = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type regionSet map[string]bool

func (r regionSet) Contains(id string) bool { return r[id] }

type submitFunc func(ctx context.Context, d models.Draft) (*models.Registration, error)

func (f submitFunc) Submit(ctx context.Context, d models.Draft) (*models.Registration, error) {
	return f(ctx, d)
}

// recordingHandoff stands in for the handoff writer.
type recordingHandoff struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (h *recordingHandoff) Complete(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids = append(h.ids, id)
	return h.err
}

func (h *recordingHandoff) written() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ids...)
}

type fixture struct {
	store      *draft.Store
	handoff    *recordingHandoff
	metrics    *metrics.Metrics
	controller *Controller
	calls      int
	mu         sync.Mutex
}

func newFixture(submit submitFunc) *fixture {
	regions := regionSet{"r-1": true}
	f := &fixture{
		store:   draft.New(regions),
		handoff: &recordingHandoff{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	counted := submitFunc(func(ctx context.Context, d models.Draft) (*models.Registration, error) {
		f.mu.Lock()
		f.calls++
		f.mu.Unlock()
		return submit(ctx, d)
	})
	f.controller = New(f.store, regions, counted, f.handoff,
		WithClock(func() time.Time { return today }),
		WithMetrics(f.metrics),
	)
	return f
}

func (f *fixture) submitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func succeed(id string) submitFunc {
	return func(context.Context, models.Draft) (*models.Registration, error) {
		return &models.Registration{ID: id, Status: models.StatusPending}, nil
	}
}

func fillStep1(t require.TestingT, s *draft.Store) {
	require.NoError(t, s.Update(models.FieldFullName, "Budi Santoso"))
	require.NoError(t, s.Update(models.FieldBirthPlace, "Surabaya"))
	require.NoError(t, s.Update(models.FieldBirthDate, "1995-03-04"))
	require.NoError(t, s.Update(models.FieldAddress, "Jl. Pahlawan 10"))
}

func fillStep2(t require.TestingT, s *draft.Store) {
	require.NoError(t, s.Update(models.FieldPhone, "+62 812-3456"))
	require.NoError(t, s.Update(models.FieldRegion, "r-1"))
}

// toStep3 fills both steps and advances twice.
func toStep3(t require.TestingT, f *fixture) {
	fillStep1(t, f.store)
	fillStep2(t, f.store)
	for range 2 {
		ok, err := f.controller.Advance(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, models.StateStep3, f.controller.State())
}

type ControllerSuite struct {
	suite.Suite
	ctx context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *ControllerSuite) TestAdvanceBlockedByEmptyFullName() {
	f := newFixture(succeed("x"))
	fillStep1(s.T(), f.store)
	s.Require().NoError(f.store.Update(models.FieldFullName, ""))

	ok, err := f.controller.Advance(s.ctx)

	s.Require().NoError(err)
	s.False(ok)
	s.Equal(models.StateStep1, f.controller.State())
	s.Equal(models.FieldErrors{models.FieldFullName: validation.MsgRequired}, f.store.Errors())
	s.Equal(1.0, testutil.ToFloat64(f.metrics.RejectedAdvances.WithLabelValues("step1")))
}

func (s *ControllerSuite) TestAdvanceAndBack() {
	f := newFixture(succeed("x"))
	toStep3(s.T(), f)

	s.Require().NoError(f.controller.Back(s.ctx))
	s.Equal(models.StateStep2, f.controller.State())
	s.Require().NoError(f.controller.Back(s.ctx))
	s.Equal(models.StateStep1, f.controller.State())

	err := f.controller.Back(s.ctx)
	s.ErrorIs(err, sentinel.ErrInvalidState)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ControllerSuite) TestBackIsUnconditional() {
	f := newFixture(succeed("x"))
	toStep3(s.T(), f)
	s.Require().NoError(f.store.Update(models.FieldPhone, ""))

	s.Require().NoError(f.controller.Back(s.ctx))
	s.Equal(models.StateStep2, f.controller.State())

	ok, err := f.controller.Advance(s.ctx)
	s.Require().NoError(err)
	s.False(ok)
	s.Equal(models.FieldErrors{models.FieldPhone: validation.MsgRequired}, f.store.Errors())
}

func (s *ControllerSuite) TestAdvanceFromStep3IsInvalid() {
	f := newFixture(succeed("x"))
	toStep3(s.T(), f)

	_, err := f.controller.Advance(s.ctx)
	s.ErrorIs(err, sentinel.ErrInvalidState)
	s.Equal(models.StateStep3, f.controller.State())
}

func (s *ControllerSuite) TestSubmitOutsideStep3IsInvalid() {
	f := newFixture(succeed("x"))
	_, err := f.controller.Submit(s.ctx)
	s.ErrorIs(err, sentinel.ErrInvalidState)
	s.Zero(f.submitCalls())
}

func (s *ControllerSuite) TestOversizedAttachmentIsRejectedLocally() {
	f := newFixture(succeed("x"))
	toStep3(s.T(), f)
	_, err := f.store.Attach(&models.Attachment{FileName: "big.jpg", ContentType: "image/jpeg", Size: 3 << 20})
	s.Require().NoError(err)

	res, err := f.controller.Submit(s.ctx)

	s.Require().NoError(err)
	s.Equal(SubmitRejected, res.Outcome)
	s.Equal(models.StateStep3, f.controller.State())
	s.Equal(models.FieldErrors{models.FieldAttachment: validation.MsgFileTooLarge}, f.store.Errors())
	s.Equal(gateway.MsgFixForm, f.controller.Notice())
	s.Zero(f.submitCalls())
	s.Empty(f.handoff.written())
}

func (s *ControllerSuite) TestMissingAttachmentIsRejectedLocally() {
	f := newFixture(succeed("x"))
	toStep3(s.T(), f)

	res, err := f.controller.Submit(s.ctx)
	s.Require().NoError(err)
	s.Equal(SubmitRejected, res.Outcome)
	s.Equal(validation.MsgAttachmentRequired, f.store.Errors()[models.FieldAttachment])
	s.Zero(f.submitCalls())
}

func (s *ControllerSuite) TestSuccessfulSubmission() {
	f := newFixture(succeed("abc123"))
	toStep3(s.T(), f)
	_, err := f.store.Attach(models.NewAttachment("me.png", "image/png", make([]byte, 1<<20)))
	s.Require().NoError(err)

	res, err := f.controller.Submit(s.ctx)

	s.Require().NoError(err)
	s.Equal(SubmitSucceeded, res.Outcome)
	s.Equal(models.StateSuccess, f.controller.State())
	s.Equal("abc123", f.controller.Registration().ID)
	s.Equal([]string{"abc123"}, f.handoff.written())
	s.True(f.store.Frozen())

	s.Run("success is terminal", func() {
		_, err := f.controller.Submit(s.ctx)
		s.ErrorIs(err, sentinel.ErrInvalidState)
		err = f.controller.Back(s.ctx)
		s.ErrorIs(err, sentinel.ErrInvalidState)
		s.ErrorIs(f.store.Update(models.FieldFullName, "x"), sentinel.ErrInvalidState)
		s.Equal([]string{"abc123"}, f.handoff.written())
	})
}

func (s *ControllerSuite) TestHandoffWriteFailureKeepsSuccess() {
	f := newFixture(succeed("abc123"))
	f.handoff.err = errors.New("redis down")
	toStep3(s.T(), f)
	_, err := f.store.Attach(models.NewAttachment("me.png", "image/png", []byte{1}))
	s.Require().NoError(err)

	res, err := f.controller.Submit(s.ctx)
	s.Require().NoError(err)
	s.Equal(SubmitSucceeded, res.Outcome)
	s.Equal(models.StateSuccess, f.controller.State())
}

func (s *ControllerSuite) TestTransportFailure() {
	f := newFixture(func(context.Context, models.Draft) (*models.Registration, error) {
		return nil, gateway.Transport(errors.New("dial tcp: connection refused"))
	})
	toStep3(s.T(), f)
	_, err := f.store.Attach(models.NewAttachment("me.png", "image/png", make([]byte, 1<<20)))
	s.Require().NoError(err)
	draftBefore := f.store.Draft()
	errsBefore := f.store.Errors()

	res, err := f.controller.Submit(s.ctx)

	s.Require().NoError(err)
	s.Equal(SubmitFailed, res.Outcome)
	s.Equal(models.StateStep3, f.controller.State())
	s.Equal(gateway.MsgTransport, f.controller.Notice())
	s.Equal(errsBefore, f.store.Errors())
	s.Equal(draftBefore, f.store.Draft())
	s.Empty(f.handoff.written())
	s.False(f.store.Frozen())
	s.Equal(1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("submitting", "failed")))
}

func (s *ControllerSuite) TestServerFieldErrorsMerge() {
	f := newFixture(func(context.Context, models.Draft) (*models.Registration, error) {
		return nil, &gateway.Failure{
			Kind:    gateway.KindValidation,
			Fields:  models.FieldErrors{models.FieldEmail: "email already registered"},
			Message: gateway.MsgFixForm,
		}
	})
	toStep3(s.T(), f)
	_, err := f.store.Attach(models.NewAttachment("me.png", "image/png", []byte{1}))
	s.Require().NoError(err)

	res, err := f.controller.Submit(s.ctx)
	s.Require().NoError(err)
	s.Equal(SubmitFailed, res.Outcome)
	s.Equal(models.FieldErrors{models.FieldEmail: "email already registered"}, f.store.Errors())
	s.Equal(gateway.MsgFixForm, f.controller.Notice())

	s.Run("wizard can be corrected and resubmitted", func() {
		s.Require().NoError(f.store.Update(models.FieldEmail, "other@example.org"))
		_, err := f.controller.Submit(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, f.submitCalls())
	})
}

func (s *ControllerSuite) TestPlainErrorIsTransportFailure() {
	f := newFixture(func(context.Context, models.Draft) (*models.Registration, error) {
		return nil, errors.New("unexpected")
	})
	toStep3(s.T(), f)
	_, err := f.store.Attach(models.NewAttachment("me.png", "image/png", []byte{1}))
	s.Require().NoError(err)

	res, err := f.controller.Submit(s.ctx)
	s.Require().NoError(err)
	s.Equal(gateway.KindTransport, res.Failure.Kind)
	s.Equal(gateway.MsgTransport, f.controller.Notice())
}

func (s *ControllerSuite) TestPanickingSubmitterSettles() {
	f := newFixture(func(context.Context, models.Draft) (*models.Registration, error) {
		panic("nil map")
	})
	toStep3(s.T(), f)
	_, err := f.store.Attach(models.NewAttachment("me.png", "image/png", []byte{1}))
	s.Require().NoError(err)

	res, err := f.controller.Submit(s.ctx)
	s.Require().NoError(err)
	s.Equal(SubmitFailed, res.Outcome)
	s.Equal(models.StateStep3, f.controller.State())
	s.Equal(gateway.MsgTransport, f.controller.Notice())
}

func (s *ControllerSuite) TestEmptyRegistrationIsTransportFailure() {
	f := newFixture(func(context.Context, models.Draft) (*models.Registration, error) {
		return nil, nil
	})
	toStep3(s.T(), f)
	_, err := f.store.Attach(models.NewAttachment("me.png", "image/png", []byte{1}))
	s.Require().NoError(err)

	var res SubmitResult
	s.Require().NotPanics(func() {
		res, err = f.controller.Submit(s.ctx)
	})
	s.Require().NoError(err)
	s.Equal(SubmitFailed, res.Outcome)
	s.Require().NotNil(res.Failure)
	s.Equal(gateway.KindTransport, res.Failure.Kind)
	s.Equal(models.StateStep3, f.controller.State())
	s.Nil(f.controller.Registration())
	s.Empty(f.handoff.written())
	s.False(f.store.Frozen())
}

func (s *ControllerSuite) TestHeldAttachmentErrorSurvivesStepChanges() {
	f := newFixture(succeed("x"))
	toStep3(s.T(), f)
	_, err := f.store.Attach(&models.Attachment{FileName: "big.jpg", ContentType: "image/jpeg", Size: 3 << 20})
	s.Require().NoError(err)

	s.Require().NoError(f.controller.Back(s.ctx))
	ok, err := f.controller.Advance(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok, "an invalid attachment does not gate step 2")

	s.Equal(models.StateStep3, f.controller.State())
	s.NotNil(f.store.Draft().Attachment)
	s.Equal(models.FieldErrors{models.FieldAttachment: validation.MsgFileTooLarge}, f.store.Errors())
}

func (s *ControllerSuite) TestRejectedSubmissionLeavesStoreEditable() {
	f := newFixture(succeed("x"))
	toStep3(s.T(), f)

	res, err := f.controller.Submit(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal(SubmitRejected, res.Outcome)
	s.False(f.store.Frozen())
	s.NoError(f.store.Update(models.FieldEmail, "budi@example.org"))
}

func TestSubmittedDraftMatchesStoredDraft(t *testing.T) {
	entered := make(chan models.Draft, 1)
	release := make(chan struct{})
	f := newFixture(func(_ context.Context, d models.Draft) (*models.Registration, error) {
		entered <- d
		<-release
		return &models.Registration{ID: "r", Status: models.StatusPending}, nil
	})
	toStep3(t, f)
	_, err := f.store.Attach(models.NewAttachment("me.png", "image/png", []byte{1}))
	require.NoError(t, err)

	done := make(chan SubmitResult, 1)
	go func() {
		res, _ := f.controller.Submit(context.Background())
		done <- res
	}()
	sent := <-entered

	err = f.store.Update(models.FieldRegion, "")
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	assert.Equal(t, sent, f.store.Draft())

	close(release)
	res := <-done
	assert.Equal(t, SubmitSucceeded, res.Outcome)
	assert.Equal(t, "r-1", f.store.Draft().RegionID)
}

func (s *ControllerSuite) TestCancelledRequestDoesNotCancelSubmission() {
	f := newFixture(func(ctx context.Context, _ models.Draft) (*models.Registration, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &models.Registration{ID: "abc123"}, nil
	})
	toStep3(s.T(), f)
	_, err := f.store.Attach(models.NewAttachment("me.png", "image/png", []byte{1}))
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	res, err := f.controller.Submit(ctx)
	s.Require().NoError(err)
	s.Equal(SubmitSucceeded, res.Outcome)
}

// blockingSubmitter parks the first call until released.
type blockingSubmitter struct {
	entered chan struct{}
	release chan struct{}
	result  *models.Registration
	err     error
}

func newBlockingSubmitter(result *models.Registration, err error) *blockingSubmitter {
	return &blockingSubmitter{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		result:  result,
		err:     err,
	}
}

func (b *blockingSubmitter) submit(context.Context, models.Draft) (*models.Registration, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.result, b.err
}

func TestSubmitWhileSubmitting(t *testing.T) {
	ctx := context.Background()

	bdd.Given(t, "a submission blocked in the registry", func(t *testing.T) {
		blocker := newBlockingSubmitter(&models.Registration{ID: "abc123"}, nil)
		f := newFixture(blocker.submit)
		toStep3(t, f)
		_, err := f.store.Attach(models.NewAttachment("me.png", "image/png", []byte{1}))
		require.NoError(t, err)

		first := make(chan SubmitResult, 1)
		go func() {
			res, _ := f.controller.Submit(ctx)
			first <- res
		}()
		<-blocker.entered

		bdd.When(t, "submit is triggered again", func(t *testing.T) {
			res, err := f.controller.Submit(ctx)
			require.NoError(t, err)

			bdd.Then(t, "the second submit is ignored", func(t *testing.T) {
				assert.Equal(t, SubmitIgnored, res.Outcome)
				assert.Equal(t, models.StateSubmitting, f.controller.State())
				assert.Equal(t, 1, f.submitCalls())
			})

			bdd.Then(t, "the draft cannot be edited", func(t *testing.T) {
				assert.ErrorIs(t, f.store.Update(models.FieldFullName, "x"), sentinel.ErrInvalidState)
				_, err := f.controller.Advance(ctx)
				assert.ErrorIs(t, err, sentinel.ErrInvalidState)
			})
		})

		close(blocker.release)
		res := <-first

		bdd.Then(t, "the first submission settles exactly once", func(t *testing.T) {
			assert.Equal(t, SubmitSucceeded, res.Outcome)
			assert.Equal(t, models.StateSuccess, f.controller.State())
			assert.Equal(t, []string{"abc123"}, f.handoff.written())
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Submissions.WithLabelValues("ignored")))
		})
	})
}

func TestDetachDuringSubmission(t *testing.T) {
	ctx := context.Background()
	blocker := newBlockingSubmitter(&models.Registration{ID: "abc123"}, nil)
	f := newFixture(blocker.submit)
	toStep3(t, f)
	_, err := f.store.Attach(models.NewAttachment("me.png", "image/png", []byte{1}))
	require.NoError(t, err)

	done := make(chan SubmitResult, 1)
	go func() {
		res, _ := f.controller.Submit(ctx)
		done <- res
	}()
	<-blocker.entered

	f.controller.Detach()
	close(blocker.release)
	res := <-done

	assert.Equal(t, SubmitDetached, res.Outcome)
	assert.Equal(t, models.StateSubmitting, f.controller.State())
	assert.Empty(t, f.handoff.written())
	assert.Nil(t, f.controller.Registration())

	_, err = f.controller.Submit(ctx)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}
