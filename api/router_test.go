package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testIssuer = "skybooking"
)

type testServer struct {
	router   *gin.Engine
	flights  *MockFlightUseCase
	bookings *MockBookingUseCase
	seats    *MockSeatUseCase
}

func newTestServer(t *testing.T, cfg RouterConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg.JWTSecret, cfg.JWTIssuer = testSecret, testIssuer
	cfg.Log = logger.Discard()

	s := &testServer{flights: &MockFlightUseCase{}, bookings: &MockBookingUseCase{}, seats: &MockSeatUseCase{}}
	router, err := NewRouter(cfg, s.flights, s.bookings, s.seats)
	require.NoError(t, err)
	s.router = router
	return s
}

func (s *testServer) do(method, path string, requester *domain.Requester) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if requester != nil {
		token, _ := IssueToken(*requester, testSecret, testIssuer, time.Hour)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestRouter_AuthRequired(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	w := s.do(http.MethodGet, "/bookings/mine", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	s.bookings.AssertNotCalled(t, "ListMine", mock.Anything, mock.Anything)
}

func TestRouter_RequesterFromToken(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	requester := domain.Requester{UserID: uuid.New(), Role: domain.RoleUser}
	s.bookings.On("ListMine", mock.Anything, requester).Return([]domain.Booking{}, nil)

	w := s.do(http.MethodGet, "/bookings/mine", &requester)

	assert.Equal(t, http.StatusOK, w.Code)
	s.bookings.AssertExpectations(t)
}

func TestRouter_AdminOnly(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	user := domain.Requester{UserID: uuid.New(), Role: domain.RoleUser}
	admin := domain.Requester{UserID: uuid.New(), Role: domain.RoleAdmin}
	s.bookings.On("ListAll", mock.Anything, admin, domain.BookingStatus("pending")).Return([]domain.Booking{}, nil)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/bookings?status=pending", &user).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/bookings?status=pending", &admin).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/flights/"+uuid.NewString(), &user).Code)
	s.flights.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestRouter_PublicSeatMap(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	flightID := uuid.New()
	s.seats.On("SeatMap", mock.Anything, flightID).Return(nil, domain.NotFoundf("flight not found"))

	w := s.do(http.MethodGet, "/seats/flight/"+flightID.String(), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/seats/"+uuid.NewString()+"/hold", nil).Code)
}

func TestRouter_RateLimit(t *testing.T) {
	s := newTestServer(t, RouterConfig{RateLimit: "2-M"})
	requester := domain.Requester{UserID: uuid.New()}
	s.bookings.On("ListMine", mock.Anything, requester).Return([]domain.Booking{}, nil)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/bookings/mine", &requester).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/bookings/mine", &requester).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodGet, "/bookings/mine", &requester).Code)

	other := domain.Requester{UserID: uuid.New()}
	s.bookings.On("ListMine", mock.Anything, other).Return([]domain.Booking{}, nil)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/bookings/mine", &other).Code)
}

func TestRouter_InvalidRateLimit(t *testing.T) {
	_, err := NewRouter(RouterConfig{RateLimit: "lots"}, &MockFlightUseCase{}, &MockBookingUseCase{}, &MockSeatUseCase{})
	assert.Error(t, err)
}

func TestRouter_Health(t *testing.T) {
	healthy := newTestServer(t, RouterConfig{Health: map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	}})
	assert.Equal(t, http.StatusOK, healthy.do(http.MethodGet, "/health", nil).Code)

	degraded := newTestServer(t, RouterConfig{Health: map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}})
	w := degraded.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestParseToken(t *testing.T) {
	userID := uuid.New()
	valid, err := IssueToken(domain.Requester{UserID: userID, Role: domain.RoleAdmin}, testSecret, testIssuer, time.Hour)
	require.NoError(t, err)

	r, err := ParseToken(valid, testSecret, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, userID, r.UserID)
	assert.True(t, r.IsAdmin())

	_, err = ParseToken(valid, "other-secret", testIssuer)
	assert.Error(t, err)

	_, err = ParseToken(valid, testSecret, "someone-else")
	assert.Error(t, err)

	expired, _ := IssueToken(domain.Requester{UserID: userID}, testSecret, testIssuer, -time.Minute)
	_, err = ParseToken(expired, testSecret, testIssuer)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "admin", Issuer: testIssuer},
	}).SignedString([]byte(testSecret))
	_, err = ParseToken(badSubject, testSecret, testIssuer)
	assert.Error(t, err)

	unknownRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "superuser",
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String(), Issuer: testIssuer},
	}).SignedString([]byte(testSecret))
	r, err = ParseToken(unknownRole, testSecret, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, r.Role)
}
