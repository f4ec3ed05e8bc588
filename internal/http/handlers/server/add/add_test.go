package add

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/hrustalq/tg-proxy/internal/models"
	"github.com/hrustalq/tg-proxy/internal/services/serverdir"
)

// MockService реализует интерфейс add.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Add(ctx context.Context, address string, port int, description string) (*models.ProxyServer, error) {
	args := m.Called(ctx, address, port, description)
	if res := args.Get(0); res != nil {
		return res.(*models.ProxyServer), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestAddHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешное добавление сервера",
			body: `{"address":"proxy1.example.com","port":443,"description":"EU"}`,
			setupMock: func(m *MockService) {
				srv := &models.ProxyServer{
					ID:       1,
					Address:  "proxy1.example.com",
					Port:     443,
					IsActive: true,
				}
				m.On("Add", mock.Anything, "proxy1.example.com", 443, "EU").Return(srv, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"address":"proxy1.example.com"`,
		},
		{
			name:           "некорректный JSON",
			body:           `{address:`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"invalid request body"`,
		},
		{
			name:           "пустой адрес не проходит валидацию",
			body:           `{"address":"","port":443}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Address is a required field`,
		},
		{
			name:           "порт вне диапазона",
			body:           `{"address":"proxy1.example.com","port":70000}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"status":"Error"`,
		},
		{
			name: "дубликат адреса",
			body: `{"address":"proxy1.example.com","port":443}`,
			setupMock: func(m *MockService) {
				m.On("Add", mock.Anything, "proxy1.example.com", 443, "").
					Return(nil, serverdir.ErrDuplicateAddress)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `already exists`,
		},
		{
			name: "ошибка сервиса",
			body: `{"address":"proxy1.example.com","port":443}`,
			setupMock: func(m *MockService) {
				m.On("Add", mock.Anything, "proxy1.example.com", 443, "").
					Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `could not add server`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/admin/servers", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
