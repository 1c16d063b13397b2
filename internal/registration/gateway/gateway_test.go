package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"relawan/internal/platform/metrics"
	"relawan/internal/registration/mocks"
	"relawan/internal/registration/models"
	"relawan/internal/registry"
)

//go:generate mockgen -source=../ports/registry.go -destination=../mocks/registry-mocks.go -package=mocks RegistryPort

type GatewaySuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	registry *mocks.MockRegistryPort
	metrics  *metrics.Metrics
	gateway  *Gateway
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.registry = mocks.NewMockRegistryPort(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.gateway = New(s.registry, WithMetrics(s.metrics), WithTimeout(time.Second))
}

func (s *GatewaySuite) TearDownTest() {
	s.ctrl.Finish()
}

func submittable() models.Draft {
	d := models.NewDraft()
	d.FullName = "Budi Santoso"
	d.BirthPlace = "Surabaya"
	d.BirthDate = time.Date(1995, 3, 4, 0, 0, 0, 0, time.UTC)
	d.Address = "Jl. Pahlawan 10"
	d.Phone = "0812 3456"
	d.RegionID = "r-1"
	d.Attachment = models.NewAttachment("me.png", "image/png", []byte("img"))
	return d
}

func (s *GatewaySuite) TestSuccessSendsTheWholeDraft() {
	s.registry.EXPECT().
		CreateRegistration(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, form registry.CreateRequest) (*models.Registration, error) {
			_, hasDeadline := ctx.Deadline()
			s.True(hasDeadline)
			s.Equal(map[string]string{
				"namaLengkap":     "Budi Santoso",
				"jenisKelamin":    "MALE",
				"tempatLahir":     "Surabaya",
				"tanggalLahir":    "1995-03-04",
				"alamatDomisili":  "Jl. Pahlawan 10",
				"kewarganegaraan": "WNI",
				"nomorTelepon":    "0812 3456",
				"wilayahId":       "r-1",
			}, form.Fields)
			s.Require().NotNil(form.File)
			s.Equal("profile_picture", form.File.FieldName)
			s.Equal([]byte("img"), form.File.Data)
			return &models.Registration{ID: "abc123", Status: models.StatusPending}, nil
		})

	reg, err := s.gateway.Submit(context.Background(), submittable())
	s.Require().NoError(err)
	s.Equal("abc123", reg.ID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Submissions.WithLabelValues("success")))
}

func (s *GatewaySuite) TestFieldRejection() {
	s.registry.EXPECT().CreateRegistration(gomock.Any(), gomock.Any()).Return(nil, &registry.Error{
		Category: registry.ErrorRejected,
		Fields: map[string]string{
			"email":   "email already registered",
			"nik":     "duplicate",
			"unknown": "x",
		},
	})

	_, err := s.gateway.Submit(context.Background(), submittable())

	var f *Failure
	s.Require().ErrorAs(err, &f)
	s.Equal(KindValidation, f.Kind)
	s.Equal(models.FieldErrors{models.FieldEmail: "email already registered"}, f.Fields)
	s.Equal("please fix the form (nik: duplicate; unknown: x)", f.Message)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Submissions.WithLabelValues("validation")))
}

func (s *GatewaySuite) TestTransportFailures() {
	cases := map[string]error{
		"network":           registry.NewError(registry.ErrorUnavailable, "create_registration", "request failed", errors.New("dial tcp")),
		"rejected no field": &registry.Error{Category: registry.ErrorRejected, Message: "bad"},
		"malformed":         registry.NewError(registry.ErrorBadData, "create_registration", "decode", nil),
		"foreign":           errors.New("boom"),
	}
	for name, callErr := range cases {
		s.Run(name, func() {
			s.registry.EXPECT().CreateRegistration(gomock.Any(), gomock.Any()).Return(nil, callErr)

			_, err := s.gateway.Submit(context.Background(), submittable())

			var f *Failure
			s.Require().ErrorAs(err, &f)
			s.Equal(KindTransport, f.Kind)
			s.Equal(MsgTransport, f.Message)
			s.Empty(f.Fields)
			s.ErrorIs(err, callErr)
		})
	}
}

func (s *GatewaySuite) TestEmptyIDIsTransportFailure() {
	s.registry.EXPECT().CreateRegistration(gomock.Any(), gomock.Any()).Return(&models.Registration{}, nil)
	_, err := s.gateway.Submit(context.Background(), submittable())

	var f *Failure
	s.Require().ErrorAs(err, &f)
	s.Equal(KindTransport, f.Kind)
}

func (s *GatewaySuite) TestPanicIsRecoveredAsTransportFailure() {
	s.registry.EXPECT().CreateRegistration(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, registry.CreateRequest) (*models.Registration, error) {
			panic("connection reset")
		})

	reg, err := s.gateway.Submit(context.Background(), submittable())
	s.Nil(reg)

	var f *Failure
	s.Require().ErrorAs(err, &f)
	s.Equal(KindTransport, f.Kind)
	s.Contains(f.Err.Error(), "connection reset")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Submissions.WithLabelValues("transport")))
}

func TestFailureError(t *testing.T) {
	f := Transport(errors.New("dial tcp"))
	require.ErrorContains(t, f, "transport")
	assert.Equal(t, "submission failed [validation]: please fix the form", (&Failure{Kind: KindValidation, Message: MsgFixForm}).Error())
}
