package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hlabsdev/car-reservation-system/internal/auth"
	"github.com/hlabsdev/car-reservation-system/internal/db/memory"
	"github.com/hlabsdev/car-reservation-system/internal/middleware"
	"github.com/hlabsdev/car-reservation-system/internal/models"
	"github.com/hlabsdev/car-reservation-system/internal/reservation"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockReservationService is a mock implementation of ReservationService
type MockReservationService struct {
	mock.Mock
}

func (m *MockReservationService) CreateReservation(ctx context.Context, in reservation.CreateInput) (models.Reservation, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.Reservation), args.Error(1)
}

func (m *MockReservationService) UpdateReservation(ctx context.Context, id string, in reservation.UpdateInput) (models.Reservation, error) {
	args := m.Called(ctx, id, in)
	return args.Get(0).(models.Reservation), args.Error(1)
}

func (m *MockReservationService) CancelReservation(ctx context.Context, id string) (models.Reservation, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Reservation), args.Error(1)
}

func (m *MockReservationService) CheckAvailability(ctx context.Context, carID string, start, end time.Time) (reservation.Availability, error) {
	args := m.Called(ctx, carID, start, end)
	return args.Get(0).(reservation.Availability), args.Error(1)
}

func (m *MockReservationService) GetReservation(ctx context.Context, id string) (models.Reservation, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Reservation), args.Error(1)
}

func (m *MockReservationService) ListReservations(ctx context.Context, filter reservation.ListFilter) ([]models.Reservation, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reservation), args.Error(1)
}

// MockCarCollection is a mock implementation of db.CarCollection
type MockCarCollection struct {
	mock.Mock
}

func (m *MockCarCollection) GetCar(ctx context.Context, id string) (models.Car, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Car), args.Error(1)
}

func (m *MockCarCollection) ListCars(ctx context.Context, filter models.CarFilter) ([]models.Car, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Car), args.Error(1)
}

func (m *MockCarCollection) InsertCar(ctx context.Context, car models.Car) error {
	return m.Called(ctx, car).Error(0)
}

func (m *MockCarCollection) UpdateCarStatus(ctx context.Context, id string, status models.CarStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

var clio = models.Car{ID: "car-1", RegistrationNumber: "AB-123-CD", Brand: "Renault", Model: "Clio", Year: 2022, Status: models.CarStatusAvailable}

type testServer struct {
	handler http.Handler
	auth    *auth.Service
	svc     *MockReservationService
	cars    *MockCarCollection
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := log.New()
	logger.SetOutput(io.Discard)

	authService := auth.NewService("test-secret", time.Hour)
	svc := new(MockReservationService)
	cars := new(MockCarCollection)
	t.Cleanup(func() {
		svc.AssertExpectations(t)
		cars.AssertExpectations(t)
	})

	handler := NewRouter(RouterConfig{
		Cars:         NewCarHandler(cars, svc, logger),
		Reservations: NewReservationHandler(svc, memory.NewCarDirectory(clio), logger),
		Auth:         middleware.NewAuthMiddleware(authService),
		Logger:       logger,
	})
	return &testServer{handler: handler, auth: authService, svc: svc, cars: cars}
}

func (s *testServer) do(t *testing.T, method, path, userID string, role models.Role, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		token, err := s.auth.GenerateToken(userID, userID, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

var (
	day1 = time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)
	day2 = time.Date(2030, 1, 2, 17, 0, 0, 0, time.UTC)
)

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	failing := Health(func(context.Context) error { return errors.New("down") })
	rec := httptest.NewRecorder()
	failing(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_RequiresAuth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/reservations", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/unknown", "u1", models.RoleEmployee, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeNotFound, decodeError(t, w).Code)
}

func TestCarHandler(t *testing.T) {
	t.Run("list available", func(t *testing.T) {
		s := newTestServer(t)
		s.cars.On("ListCars", mock.Anything, models.CarFilter{AvailableOnly: true}).Return([]models.Car{{ID: "car-1", Status: models.CarStatusAvailable}}, nil)

		w := s.do(t, http.MethodGet, "/api/cars?available=true", "u1", models.RoleViewer, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var cars []models.Car
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cars))
		require.Len(t, cars, 1)
		assert.Equal(t, "car-1", cars[0].ID)
	})

	t.Run("search and ordering", func(t *testing.T) {
		s := newTestServer(t)
		s.cars.On("ListCars", mock.Anything, models.CarFilter{Search: "clio", Ordering: "-year"}).
			Return([]models.Car{{ID: "car-1", Model: "Clio", Year: 2023}, {ID: "car-9", Model: "Clio", Year: 2019}}, nil)

		w := s.do(t, http.MethodGet, "/api/cars?search=clio&ordering=-year", "u1", models.RoleViewer, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var cars []models.Car
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cars))
		require.Len(t, cars, 2)
		assert.Equal(t, "car-1", cars[0].ID)
	})

	t.Run("ordering outside the allow-list", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodGet, "/api/cars?ordering=status", "u1", models.RoleViewer, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, codeInvalidOrdering, decodeError(t, w).Code)
		s.cars.AssertNotCalled(t, "ListCars", mock.Anything, mock.Anything)
	})

	t.Run("bad available flag", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodGet, "/api/cars?available=maybe", "u1", models.RoleViewer, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get unknown car", func(t *testing.T) {
		s := newTestServer(t)
		s.cars.On("GetCar", mock.Anything, "nope").Return(models.Car{}, reservation.ErrCarNotFound)

		w := s.do(t, http.MethodGet, "/api/cars/nope", "u1", models.RoleViewer, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "car_not_found", decodeError(t, w).Code)
	})

	t.Run("availability", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("CheckAvailability", mock.Anything, "car-1", day1, day2).
			Return(reservation.Availability{Available: false, Conflict: &reservation.ConflictRef{ID: "r9", StartAt: day1, EndAt: day2}}, nil)

		w := s.do(t, http.MethodGet, "/api/cars/car-1/availability?start_date=2030-01-02T09:00:00Z&end_date=2030-01-02T17:00:00Z", "u1", models.RoleViewer, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got reservation.Availability
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.False(t, got.Available)
		require.NotNil(t, got.Conflict)
		assert.Equal(t, "r9", got.Conflict.ID)
	})

	t.Run("availability needs both dates", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodGet, "/api/cars/car-1/availability?start_date=2030-01-02T09:00:00Z", "u1", models.RoleViewer, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, codeMissingRequiredField, decodeError(t, w).Code)

		w = s.do(t, http.MethodGet, "/api/cars/car-1/availability?start_date=tomorrow&end_date=2030-01-02T09:00:00Z", "u1", models.RoleViewer, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, codeInvalidDate, decodeError(t, w).Code)
	})

	t.Run("availability invalid range", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("CheckAvailability", mock.Anything, "car-1", day2, day1).Return(reservation.Availability{}, reservation.ErrInvalidRange)

		w := s.do(t, http.MethodGet, "/api/cars/car-1/availability?start_date=2030-01-02T17:00:00Z&end_date=2030-01-02T09:00:00Z", "u1", models.RoleViewer, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_range", decodeError(t, w).Code)
	})
}

func TestReservationHandler_Create(t *testing.T) {
	body := map[string]string{
		"car_id":     "car-1",
		"start_date": "2030-01-02T09:00:00Z",
		"end_date":   "2030-01-02T17:00:00Z",
		"purpose":    "Client visit",
	}
	input := reservation.CreateInput{UserID: "u1", CarID: "car-1", StartAt: day1, EndAt: day2, Purpose: "Client visit"}

	t.Run("created", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("CreateReservation", mock.Anything, input).
			Return(models.Reservation{ID: "r1", UserID: "u1", CarID: "car-1", StartAt: day1, EndAt: day2, Status: models.ReservationStatusConfirmed}, nil)

		w := s.do(t, http.MethodPost, "/api/reservations", "u1", models.RoleEmployee, body)
		require.Equal(t, http.StatusCreated, w.Code)
		var got models.Reservation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "r1", got.ID)
		assert.Equal(t, models.ReservationStatusConfirmed, got.Status)
	})

	t.Run("conflict carries the blocking reservation", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("CreateReservation", mock.Anything, input).
			Return(models.Reservation{}, &reservation.ConflictError{ConflictID: "r0", StartAt: day1, EndAt: day2})

		w := s.do(t, http.MethodPost, "/api/reservations", "u1", models.RoleEmployee, body)
		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "reservation_conflict", resp.Code)
		require.NotNil(t, resp.Conflict)
		assert.Equal(t, "r0", resp.Conflict.ID)
	})

	t.Run("rejections map to statuses", func(t *testing.T) {
		tests := []struct {
			err    error
			status int
			code   string
		}{
			{reservation.ErrInvalidRange, http.StatusBadRequest, "invalid_range"},
			{reservation.ErrPastDate, http.StatusBadRequest, "past_date"},
			{reservation.ErrCarNotFound, http.StatusNotFound, "car_not_found"},
			{&reservation.CarUnavailableError{CarID: "car-1", Status: models.CarStatusMaintenance}, http.StatusConflict, "car_unavailable"},
			{errors.New("connection reset"), http.StatusInternalServerError, "internal"},
		}
		for _, tt := range tests {
			t.Run(tt.code, func(t *testing.T) {
				s := newTestServer(t)
				s.svc.On("CreateReservation", mock.Anything, input).Return(models.Reservation{}, tt.err)

				w := s.do(t, http.MethodPost, "/api/reservations", "u1", models.RoleEmployee, body)
				assert.Equal(t, tt.status, w.Code)
				resp := decodeError(t, w)
				assert.Equal(t, tt.code, resp.Code)
				if tt.status == http.StatusInternalServerError {
					assert.NotContains(t, resp.Error, "connection reset")
				}
			})
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/reservations", "u1", models.RoleEmployee, "{bad json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, codeInvalidRequestBody, decodeError(t, w).Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/reservations", "u1", models.RoleEmployee, map[string]string{"car_id": "car-1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, codeMissingRequiredField, decodeError(t, w).Code)
	})

	t.Run("viewer may not book", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/reservations", "u1", models.RoleViewer, body)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestReservationHandler_List(t *testing.T) {
	t.Run("employees see only their own", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("ListReservations", mock.Anything, reservation.ListFilter{UserID: "u1"}).
			Return([]models.Reservation{{ID: "r1", UserID: "u1"}}, nil)

		w := s.do(t, http.MethodGet, "/api/reservations?user_id=u2", "u1", models.RoleEmployee, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("managers may filter", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("ListReservations", mock.Anything, reservation.ListFilter{UserID: "u2", CarID: "car-1", Status: models.ReservationStatusConfirmed}).
			Return([]models.Reservation{}, nil)

		w := s.do(t, http.MethodGet, "/api/reservations?user_id=u2&car_id=car-1&status=confirmed", "m1", models.RoleManager, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})
}

func TestReservationHandler_Ownership(t *testing.T) {
	owned := models.Reservation{ID: "r1", UserID: "u1", CarID: "car-1", StartAt: day1, EndAt: day2, Status: models.ReservationStatusConfirmed}

	t.Run("owner reads", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("GetReservation", mock.Anything, "r1").Return(owned, nil)
		w := s.do(t, http.MethodGet, "/api/reservations/r1", "u1", models.RoleEmployee, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("other user gets not found", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("GetReservation", mock.Anything, "r1").Return(owned, nil)
		w := s.do(t, http.MethodGet, "/api/reservations/r1", "u2", models.RoleEmployee, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "reservation_not_found", decodeError(t, w).Code)
	})

	t.Run("other user cannot cancel", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("GetReservation", mock.Anything, "r1").Return(owned, nil)
		w := s.do(t, http.MethodPost, "/api/reservations/r1/cancel", "u2", models.RoleEmployee, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		s.svc.AssertNotCalled(t, "CancelReservation", mock.Anything, mock.Anything)
	})

	t.Run("admin cancels any", func(t *testing.T) {
		s := newTestServer(t)
		cancelled := owned
		cancelled.Status = models.ReservationStatusCancelled
		s.svc.On("GetReservation", mock.Anything, "r1").Return(owned, nil)
		s.svc.On("CancelReservation", mock.Anything, "r1").Return(cancelled, nil)

		w := s.do(t, http.MethodPost, "/api/reservations/r1/cancel", "admin", models.RoleAdmin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got models.Reservation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, models.ReservationStatusCancelled, got.Status)
	})

	t.Run("double cancel", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("GetReservation", mock.Anything, "r1").Return(owned, nil)
		s.svc.On("CancelReservation", mock.Anything, "r1").Return(models.Reservation{}, reservation.ErrAlreadyCancelled)

		w := s.do(t, http.MethodPost, "/api/reservations/r1/cancel", "u1", models.RoleEmployee, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "already_cancelled", decodeError(t, w).Code)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("GetReservation", mock.Anything, "nope").Return(models.Reservation{}, reservation.ErrReservationNotFound)
		w := s.do(t, http.MethodGet, "/api/reservations/nope", "u1", models.RoleEmployee, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestReservationHandler_Update(t *testing.T) {
	owned := models.Reservation{ID: "r1", UserID: "u1", CarID: "car-1", StartAt: day1, EndAt: day2, Status: models.ReservationStatusConfirmed, Purpose: "Client visit"}

	t.Run("partial update passes only provided fields", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("GetReservation", mock.Anything, "r1").Return(owned, nil)
		s.svc.On("UpdateReservation", mock.Anything, "r1", mock.MatchedBy(func(in reservation.UpdateInput) bool {
			return in.StartAt == nil && in.EndAt != nil && in.EndAt.Equal(day2.Add(time.Hour)) &&
				in.Purpose != nil && *in.Purpose == ""
		})).Return(owned, nil)

		w := s.do(t, http.MethodPatch, "/api/reservations/r1", "u1", models.RoleEmployee,
			`{"end_date":"2030-01-02T18:00:00Z","purpose":""}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("empty patch", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPatch, "/api/reservations/r1", "u1", models.RoleEmployee, `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("conflict", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("GetReservation", mock.Anything, "r1").Return(owned, nil)
		s.svc.On("UpdateReservation", mock.Anything, "r1", mock.Anything).
			Return(models.Reservation{}, &reservation.ConflictError{ConflictID: "r2", StartAt: day1, EndAt: day2})

		w := s.do(t, http.MethodPatch, "/api/reservations/r1", "u1", models.RoleEmployee, `{"start_date":"2030-01-02T08:00:00Z"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "reservation_conflict", decodeError(t, w).Code)
	})
}

func TestReservationHandler_CarDetail(t *testing.T) {
	t.Run("embedded on create", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("CreateReservation", mock.Anything, mock.Anything).
			Return(models.Reservation{ID: "r1", UserID: "u1", CarID: "car-1", StartAt: day1, EndAt: day2, Status: models.ReservationStatusConfirmed}, nil)

		w := s.do(t, http.MethodPost, "/api/reservations", "u1", models.RoleEmployee,
			`{"car_id":"car-1","start_date":"2030-01-02T09:00:00Z","end_date":"2030-01-02T17:00:00Z"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		var got struct {
			ID        string      `json:"id"`
			CarID     string      `json:"car_id"`
			CarDetail *carSummary `json:"car_detail"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "r1", got.ID)
		assert.Equal(t, "car-1", got.CarID)
		require.NotNil(t, got.CarDetail)
		assert.Equal(t, "AB-123-CD", got.CarDetail.RegistrationNumber)
		assert.Equal(t, "Clio", got.CarDetail.Model)
	})

	t.Run("listed reservations, missing car omitted", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.On("ListReservations", mock.Anything, reservation.ListFilter{UserID: "u1"}).Return([]models.Reservation{
			{ID: "r1", UserID: "u1", CarID: "car-1"},
			{ID: "r2", UserID: "u1", CarID: "car-1"},
			{ID: "r3", UserID: "u1", CarID: "retired"},
		}, nil)

		w := s.do(t, http.MethodGet, "/api/reservations", "u1", models.RoleEmployee, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got []map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got, 3)
		assert.Contains(t, got[0], "car_detail")
		assert.Contains(t, got[1], "car_detail")
		assert.NotContains(t, got[2], "car_detail")
	})
}
