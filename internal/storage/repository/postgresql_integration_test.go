package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrustalq/tg-proxy/internal/models"
)

func TestStorage_GetOrCreateUser(t *testing.T) {
	type args struct {
		ctx        context.Context
		telegramID int64
		username   string
		firstName  string
	}

	until := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		args      args
		wantUntil *time.Time
		setup     func(t *testing.T, factory *TestDataFactory)
	}{
		{
			name: "first contact creates user",
			args: args{
				ctx:        context.Background(),
				telegramID: 100,
				username:   "newuser",
				firstName:  "New",
			},
			wantUntil: nil,
			setup:     func(_ *testing.T, _ *TestDataFactory) {},
		},
		{
			name: "repeat contact updates names and keeps window",
			args: args{
				ctx:        context.Background(),
				telegramID: 100,
				username:   "renamed",
				firstName:  "Renamed",
			},
			wantUntil: &until,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateUser(t, 100, "olduser", "Old", &until)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			tt.setup(t, factory)

			got, err := storage.GetOrCreateUser(tt.args.ctx, tt.args.telegramID, tt.args.username, tt.args.firstName)
			require.NoError(t, err)
			require.NotNil(t, got)

			assert.Equal(t, tt.args.telegramID, got.TelegramID)
			assert.Equal(t, tt.args.username, got.Username)
			assert.Equal(t, tt.args.firstName, got.FirstName)
			if tt.wantUntil == nil {
				assert.Nil(t, got.SubscriptionUntil)
			} else {
				require.NotNil(t, got.SubscriptionUntil)
				assert.True(t, tt.wantUntil.Equal(*got.SubscriptionUntil))
			}

			verification := NewTestVerification(storage)
			verification.VerifyUserExists(t, tt.args.telegramID)
		})
	}
}

func TestStorage_GetUserByTelegramID(t *testing.T) {
	tests := []struct {
		name       string
		telegramID int64
		wantErr    error
		setup      func(t *testing.T, factory *TestDataFactory)
	}{
		{
			name:       "existing user",
			telegramID: 42,
			wantErr:    nil,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateUser(t, 42, "testuser", "Test", nil)
			},
		},
		{
			name:       "unknown user",
			telegramID: 9999,
			wantErr:    ErrNotFound,
			setup:      func(_ *testing.T, _ *TestDataFactory) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			tt.setup(t, factory)

			got, err := storage.GetUserByTelegramID(context.Background(), tt.telegramID)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.telegramID, got.TelegramID)
		})
	}
}

func TestStorage_UpdateEntitlement(t *testing.T) {
	until := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	errBusiness := errors.New("window closed")

	tests := []struct {
		name    string
		apply   func(current *time.Time) (time.Time, error)
		want    time.Time
		wantErr error
		setup   func(t *testing.T, factory *TestDataFactory)
	}{
		{
			name: "extends stored window",
			apply: func(current *time.Time) (time.Time, error) {
				return current.AddDate(0, 0, 30), nil
			},
			want:    until.AddDate(0, 0, 30),
			wantErr: nil,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateUser(t, 42, "testuser", "Test", &until)
			},
		},
		{
			name: "apply sees nil for fresh user",
			apply: func(current *time.Time) (time.Time, error) {
				if current != nil {
					return time.Time{}, errors.New("expected nil window")
				}
				return until, nil
			},
			want:    until,
			wantErr: nil,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateUser(t, 42, "testuser", "Test", nil)
			},
		},
		{
			name: "apply error rolls back and passes through",
			apply: func(_ *time.Time) (time.Time, error) {
				return time.Time{}, errBusiness
			},
			wantErr: errBusiness,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateUser(t, 42, "testuser", "Test", &until)
			},
		},
		{
			name: "unknown user",
			apply: func(_ *time.Time) (time.Time, error) {
				return until, nil
			},
			wantErr: ErrNotFound,
			setup:   func(_ *testing.T, _ *TestDataFactory) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			tt.setup(t, factory)

			got, err := storage.UpdateEntitlement(context.Background(), 42, tt.apply)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				if errors.Is(tt.wantErr, errBusiness) {
					// Откат: сохраненное окно не изменилось
					verification := NewTestVerification(storage)
					verification.VerifyEntitlementWindow(t, 42, until)
				}
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))

			verification := NewTestVerification(storage)
			verification.VerifyEntitlementWindow(t, 42, tt.want)
		})
	}
}

func TestStorage_SetUserActive(t *testing.T) {
	tests := []struct {
		name       string
		telegramID int64
		active     bool
		wantErr    error
		setup      func(t *testing.T, factory *TestDataFactory)
	}{
		{
			name:       "deactivate existing user",
			telegramID: 42,
			active:     false,
			wantErr:    nil,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateUser(t, 42, "testuser", "Test", nil)
			},
		},
		{
			name:       "unknown user",
			telegramID: 9999,
			active:     false,
			wantErr:    ErrNotFound,
			setup:      func(_ *testing.T, _ *TestDataFactory) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			tt.setup(t, factory)

			err := storage.SetUserActive(context.Background(), tt.telegramID, tt.active)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			var active bool
			err = storage.DB.QueryRow("SELECT is_active FROM users WHERE telegram_id = $1", tt.telegramID).Scan(&active)
			require.NoError(t, err)
			assert.Equal(t, tt.active, active)
		})
	}
}

func TestStorage_CountUsers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 30)

	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, 1, "expired", "Expired", &past)
	factory.CreateUser(t, 2, "active", "Active", &future)
	factory.CreateUser(t, 3, "fresh", "Fresh", nil)
	// Окно ровно на границе не считается действующим
	factory.CreateUser(t, 4, "boundary", "Boundary", &now)

	total, entitled, err := storage.CountUsers(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, 1, entitled)
}

func TestStorage_CreateConfigsIfEmpty(t *testing.T) {
	tests := []struct {
		name        string
		configs     []models.ProxyConfig
		wantCreated bool
		wantSecrets []string
		setup       func(t *testing.T, factory *TestDataFactory, userID int64)
	}{
		{
			name:        "inserts for user without configs",
			configs:     testConfigs([]string{"secret-a", "secret-b"}, "proxy1.example.com", 443),
			wantCreated: true,
			wantSecrets: []string{"secret-a", "secret-b"},
			setup:       func(_ *testing.T, _ *TestDataFactory, _ int64) {},
		},
		{
			name:        "keeps existing set untouched",
			configs:     testConfigs([]string{"secret-new"}, "proxy2.example.com", 443),
			wantCreated: false,
			wantSecrets: []string{"secret-old"},
			setup: func(t *testing.T, factory *TestDataFactory, userID int64) {
				factory.CreateConfig(t, userID, "secret-old", "proxy1.example.com", 443)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userID := factory.CreateUser(t, 42, "testuser", "Test", nil)
			tt.setup(t, factory, userID)

			got, created, err := storage.CreateConfigsIfEmpty(context.Background(), userID, tt.configs)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCreated, created)

			require.Len(t, got, len(tt.wantSecrets))
			for i, secret := range tt.wantSecrets {
				assert.Equal(t, secret, got[i].ProxySecret)
				assert.Equal(t, userID, got[i].UserID)
				assert.NotZero(t, got[i].ID)
			}

			verification := NewTestVerification(storage)
			verification.VerifyConfigCount(t, userID, len(tt.wantSecrets))
		})
	}
}

func TestStorage_ReplaceConfigs(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userID := factory.CreateUser(t, 42, "testuser", "Test", nil)
	otherID := factory.CreateUser(t, 43, "otheruser", "Other", nil)
	factory.CreateConfig(t, userID, "secret-old-1", "proxy1.example.com", 443)
	factory.CreateConfig(t, userID, "secret-old-2", "proxy2.example.com", 443)
	factory.CreateConfig(t, otherID, "secret-other", "proxy1.example.com", 443)

	fresh := testConfigs([]string{"secret-new-1", "secret-new-2", "secret-new-3"}, "proxy3.example.com", 8443)
	got, err := storage.ReplaceConfigs(context.Background(), userID, fresh)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, fresh[i].ProxySecret, c.ProxySecret)
		assert.Equal(t, "proxy3.example.com", c.ServerAddress)
		assert.Equal(t, 8443, c.Port)
	}

	verification := NewTestVerification(storage)
	verification.VerifyConfigCount(t, userID, 3)
	// Конфигурации других пользователей не затронуты
	verification.VerifyConfigCount(t, otherID, 1)
}

func TestStorage_CreateServer(t *testing.T) {
	tests := []struct {
		name    string
		server  models.ProxyServer
		wantErr error
		setup   func(t *testing.T, factory *TestDataFactory)
	}{
		{
			name: "successful create server",
			server: models.ProxyServer{
				Address:  "proxy1.example.com",
				Port:     443,
				IsActive: true,
			},
			wantErr: nil,
			setup:   func(_ *testing.T, _ *TestDataFactory) {},
		},
		{
			name: "duplicate address",
			server: models.ProxyServer{
				Address:  "proxy1.example.com",
				Port:     8443,
				IsActive: true,
			},
			wantErr: ErrDuplicate,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateServer(t, "proxy1.example.com", 443, true)
			},
		},
		{
			name: "duplicate of disabled server",
			server: models.ProxyServer{
				Address:  "proxy1.example.com",
				Port:     443,
				IsActive: true,
			},
			wantErr: ErrDuplicate,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateServer(t, "proxy1.example.com", 443, false)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			tt.setup(t, factory)

			gotID, err := storage.CreateServer(context.Background(), tt.server)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, gotID)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, gotID)
		})
	}
}

func TestStorage_SetServerActive(t *testing.T) {
	tests := []struct {
		name     string
		serverID int64
		active   bool
		wantErr  error
		setup    func(t *testing.T, factory *TestDataFactory) int64
	}{
		{
			name:    "disable existing server",
			active:  false,
			wantErr: nil,
			setup: func(t *testing.T, factory *TestDataFactory) int64 {
				return factory.CreateServer(t, "proxy1.example.com", 443, true)
			},
		},
		{
			name:    "unknown server",
			active:  true,
			wantErr: ErrNotFound,
			setup:   func(_ *testing.T, _ *TestDataFactory) int64 { return 9999 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			serverID := tt.setup(t, factory)

			err := storage.SetServerActive(context.Background(), serverID, tt.active)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			servers, err := storage.ListServers(context.Background())
			require.NoError(t, err)
			require.Len(t, servers, 1)
			assert.Equal(t, tt.active, servers[0].IsActive)
		})
	}
}

func TestStorage_ListActiveServers(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreateServer(t, "proxy1.example.com", 443, true)
	factory.CreateServer(t, "proxy2.example.com", 443, false)
	factory.CreateServer(t, "proxy3.example.com", 8443, true)

	got, err := storage.ListActiveServers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "proxy1.example.com", got[0].Address)
	assert.Equal(t, "proxy3.example.com", got[1].Address)

	all, err := storage.ListServers(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStorage_SeedServers(t *testing.T) {
	seed := []models.ProxyServer{
		{Address: "proxy1.example.com", Port: 443, IsActive: true},
		{Address: "proxy2.example.com", Port: 8443, IsActive: true},
	}

	tests := []struct {
		name       string
		wantSeeded bool
		wantCount  int
		setup      func(t *testing.T, factory *TestDataFactory)
	}{
		{
			name:       "seeds empty directory",
			wantSeeded: true,
			wantCount:  2,
			setup:      func(_ *testing.T, _ *TestDataFactory) {},
		},
		{
			name:       "noop when directory is not empty",
			wantSeeded: false,
			wantCount:  1,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateServer(t, "existing.example.com", 443, true)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			tt.setup(t, factory)

			seeded, err := storage.SeedServers(context.Background(), seed)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSeeded, seeded)

			all, err := storage.ListServers(context.Background())
			require.NoError(t, err)
			assert.Len(t, all, tt.wantCount)
		})
	}
}

func TestStorage_SavePayment(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userID := factory.CreateUser(t, 42, "testuser", "Test", nil)

	gotID, err := storage.SavePayment(context.Background(), models.Payment{
		UserID:         userID,
		Amount:         decimal.RequireFromString("500"),
		Currency:       "RUB",
		Status:         models.PaymentStatusPending,
		InvoicePayload: "payload-1",
	})
	require.NoError(t, err)
	assert.NotZero(t, gotID)

	payments, err := storage.ListPayments(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusPending, payments[0].Status)
	assert.Equal(t, "payload-1", payments[0].InvoicePayload)
	assert.True(t, decimal.RequireFromString("500").Equal(payments[0].Amount))
}

func TestStorage_CompletePayment(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
		setup   func(t *testing.T, factory *TestDataFactory, userID int64) int64
	}{
		{
			name:    "completes pending payment",
			payload: "payload-1",
			wantErr: nil,
			setup: func(t *testing.T, factory *TestDataFactory, userID int64) int64 {
				return factory.CreatePayment(t, userID, "500", "RUB", models.PaymentStatusPending, "payload-1")
			},
		},
		{
			name:    "no pending payment with payload",
			payload: "payload-unknown",
			wantErr: ErrNotFound,
			setup: func(t *testing.T, factory *TestDataFactory, userID int64) int64 {
				return factory.CreatePayment(t, userID, "500", "RUB", models.PaymentStatusPending, "payload-1")
			},
		},
		{
			name:    "already completed payment is not retaken",
			payload: "payload-1",
			wantErr: ErrNotFound,
			setup: func(t *testing.T, factory *TestDataFactory, userID int64) int64 {
				return factory.CreatePayment(t, userID, "500", "RUB", models.PaymentStatusCompleted, "payload-1")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userID := factory.CreateUser(t, 42, "testuser", "Test", nil)
			paymentID := tt.setup(t, factory, userID)

			gotID, err := storage.CompletePayment(context.Background(),
				tt.payload, decimal.RequireFromString("500"), "RUB", "provider-charge-1")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, paymentID, gotID)

			verification := NewTestVerification(storage)
			verification.VerifyPaymentStatus(t, paymentID, models.PaymentStatusCompleted)
		})
	}
}

func TestStorage_SumCompletedPayments(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userID := factory.CreateUser(t, 42, "testuser", "Test", nil)
	factory.CreatePayment(t, userID, "500", "RUB", models.PaymentStatusCompleted, "payload-1")
	factory.CreatePayment(t, userID, "300.50", "RUB", models.PaymentStatusCompleted, "payload-2")
	factory.CreatePayment(t, userID, "500", "RUB", models.PaymentStatusPending, "payload-3")

	count, total, err := storage.SumCompletedPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.True(t, decimal.RequireFromString("800.50").Equal(total), "got %s", total)
}

func TestCheckDatabaseReady(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(t *testing.T, storage *Storage)
		wantError    bool
		errorContain string
	}{
		{
			name: "table exists",
			setup: func(_ *testing.T, _ *Storage) {
				// Таблица уже создается в setupTestDatabase
			},
			wantError: false,
		},
		{
			name: "table missing",
			setup: func(t *testing.T, storage *Storage) {
				// Удаляем таблицы в порядке, учитывающем foreign key constraints
				_, err := storage.DB.Exec(`DROP TABLE IF EXISTS payments CASCADE`)
				require.NoError(t, err)
				_, err = storage.DB.Exec(`DROP TABLE IF EXISTS proxy_configs CASCADE`)
				require.NoError(t, err)
				_, err = storage.DB.Exec(`DROP TABLE IF EXISTS users CASCADE`)
				require.NoError(t, err)
			},
			wantError:    true,
			errorContain: "missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()
			tt.setup(t, storage)

			err := CheckDatabaseReady(storage)
			if tt.wantError {
				require.Error(t, err)
				if tt.errorContain != "" {
					assert.Contains(t, err.Error(), tt.errorContain)
				}
			} else {
				require.NoError(t, err)
			}
		})
	}
}
