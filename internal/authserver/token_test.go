package authserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeDeviceCode(t *testing.T) {
	ctx := context.Background()
	observer := &recordingObserver{}
	flow, store := newTestFlow(t, WithObserver(observer))
	req, pair := s256Request(t, "trino")

	code, err := flow.RequestDeviceCode(ctx, req)
	require.NoError(t, err)

	_, err = flow.ExchangeDeviceCode(ctx, "trino", code.DeviceCode, pair.Verifier)
	assert.ErrorIs(t, err, ErrAuthorizationPending)

	_, err = flow.Approve(ctx, code.UserCode, "alice")
	require.NoError(t, err)

	token, err := flow.ExchangeDeviceCode(ctx, "trino", code.DeviceCode, pair.Verifier)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, 3600, token.ExpiresIn)
	assert.Equal(t, 86400, token.RefreshExpiresIn)
	assert.Equal(t, "openid", token.Scope)
	assert.NotEmpty(t, token.RefreshToken)

	claims, err := flow.tokens.Parse(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "trino", claims.ClientID)
	assert.Equal(t, "openid", claims.Scope)

	grant, err := store.GetRefreshGrant(ctx, token.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Equal(t, "alice", grant.Subject)

	// Device codes are single use
	_, err = flow.ExchangeDeviceCode(ctx, "trino", code.DeviceCode, pair.Verifier)
	assert.ErrorIs(t, err, ErrInvalidGrant)

	assert.Equal(t, []string{"authorization_pending", "issued", "invalid_grant"}, observer.polls)
}

func TestExchangeDeviceCodeErrors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, flow *Flow, code *DeviceCode)
		clientID string
		verifier string
		unknown  bool
		wantErr  error
	}{
		{
			name:    "unknown device code",
			unknown: true,
			wantErr: ErrInvalidGrant,
		},
		{
			name:     "client mismatch",
			clientID: "other",
			wantErr:  ErrInvalidGrant,
		},
		{
			name: "denied",
			setup: func(t *testing.T, flow *Flow, code *DeviceCode) {
				_, err := flow.Deny(context.Background(), code.UserCode)
				require.NoError(t, err)
			},
			wantErr: ErrAccessDenied,
		},
		{
			name: "wrong verifier",
			setup: func(t *testing.T, flow *Flow, code *DeviceCode) {
				_, err := flow.Approve(context.Background(), code.UserCode, "alice")
				require.NoError(t, err)
			},
			verifier: "not-the-verifier",
			wantErr:  ErrInvalidGrant,
		},
		{
			name: "missing verifier",
			setup: func(t *testing.T, flow *Flow, code *DeviceCode) {
				_, err := flow.Approve(context.Background(), code.UserCode, "alice")
				require.NoError(t, err)
			},
			verifier: "-",
			wantErr:  ErrInvalidGrant,
		},
		{
			name: "expired",
			setup: func(t *testing.T, flow *Flow, code *DeviceCode) {
				code.ExpiresAt = time.Now().Add(-time.Second)
				require.NoError(t, flow.store.SaveDeviceCode(context.Background(), code))
			},
			wantErr: ErrExpiredToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			flow, _ := newTestFlow(t)
			req, pair := s256Request(t, "trino")

			code, err := flow.RequestDeviceCode(ctx, req)
			require.NoError(t, err)
			if tt.setup != nil {
				tt.setup(t, flow, code)
			}

			clientID := "trino"
			if tt.clientID != "" {
				clientID = tt.clientID
			}
			verifier := pair.Verifier
			switch tt.verifier {
			case "":
			case "-":
				verifier = ""
			default:
				verifier = tt.verifier
			}
			deviceCode := code.DeviceCode
			if tt.unknown {
				deviceCode = "unknown"
			}

			token, err := flow.ExchangeDeviceCode(ctx, clientID, deviceCode, verifier)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, token)
		})
	}
}

func TestExchangeDeviceCodeMissingCode(t *testing.T) {
	flow, _ := newTestFlow(t)
	_, err := flow.ExchangeDeviceCode(context.Background(), "trino", "", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestExchangeDeviceCodeWithoutPKCE(t *testing.T) {
	ctx := context.Background()
	flow, _ := newTestFlow(t)

	code, err := flow.RequestDeviceCode(ctx, DeviceRequest{ClientID: "trino"})
	require.NoError(t, err)
	_, err = flow.Approve(ctx, code.UserCode, "alice")
	require.NoError(t, err)

	token, err := flow.ExchangeDeviceCode(ctx, "trino", code.DeviceCode, "")
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
}

func TestExchangeDeviceCodeSlowDown(t *testing.T) {
	ctx := context.Background()
	flow, _ := newTestFlow(t, WithPollInterval(time.Hour, true))
	req, pair := s256Request(t, "trino")

	code, err := flow.RequestDeviceCode(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 3600, code.Interval)

	// The first poll is never early
	_, err = flow.ExchangeDeviceCode(ctx, "trino", code.DeviceCode, pair.Verifier)
	assert.ErrorIs(t, err, ErrAuthorizationPending)

	_, err = flow.ExchangeDeviceCode(ctx, "trino", code.DeviceCode, pair.Verifier)
	assert.ErrorIs(t, err, ErrSlowDown)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	flow, store := newTestFlow(t)

	require.NoError(t, store.SaveRefreshGrant(ctx, "rt-1", &RefreshGrant{
		ClientID:  "trino",
		Subject:   "alice",
		Scope:     "openid",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	_, err := flow.Refresh(ctx, "other", "rt-1")
	assert.ErrorIs(t, err, ErrInvalidGrant)

	token, err := flow.Refresh(ctx, "trino", "rt-1")
	require.NoError(t, err)
	assert.NotEqual(t, "rt-1", token.RefreshToken)

	claims, err := flow.tokens.Parse(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	// Rotation revokes the presented token
	_, err = flow.Refresh(ctx, "trino", "rt-1")
	assert.ErrorIs(t, err, ErrInvalidGrant)

	_, err = flow.Refresh(ctx, "trino", token.RefreshToken)
	assert.NoError(t, err)

	_, err = flow.Refresh(ctx, "trino", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "issued", outcome(nil))
	assert.Equal(t, "slow_down", outcome(ErrSlowDown))
	assert.Equal(t, "server_error", outcome(errStoreDown))
}

// slowStore delays device code reads like a network round trip and runs
// afterGet, if set, once the read has returned
type slowStore struct {
	Store
	delay    time.Duration
	afterGet func()
}

func (s *slowStore) GetDeviceCode(ctx context.Context, deviceCode string) (*DeviceCode, error) {
	code, err := s.Store.GetDeviceCode(ctx, deviceCode)
	time.Sleep(s.delay)
	if s.afterGet != nil {
		s.afterGet()
	}
	return code, err
}

func TestExchangeDeviceCodeConcurrentRedemption(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		flow := NewFlow(&slowStore{Store: store, delay: time.Millisecond}, newTestIssuer(t), "http://localhost:8080")

		for round := 0; round < 10; round++ {
			req, pair := s256Request(t, "trino")
			code, err := flow.RequestDeviceCode(ctx, req)
			require.NoError(t, err)
			_, err = flow.Approve(ctx, code.UserCode, "alice")
			require.NoError(t, err)

			const pollers = 8
			var (
				wg     sync.WaitGroup
				mu     sync.Mutex
				issued int
			)
			for i := 0; i < pollers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := flow.ExchangeDeviceCode(ctx, "trino", code.DeviceCode, pair.Verifier)
					if err == nil {
						mu.Lock()
						issued++
						mu.Unlock()
						return
					}
					assert.ErrorIs(t, err, ErrInvalidGrant)
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, issued, "round %d", round)
		}
	})
}

func TestExchangeDeviceCodePollKeepsApproval(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		slow := &slowStore{Store: store}
		flow := NewFlow(slow, newTestIssuer(t), "http://localhost:8080", WithPollInterval(time.Nanosecond, true))
		req, pair := s256Request(t, "trino")

		code, err := flow.RequestDeviceCode(ctx, req)
		require.NoError(t, err)

		// The user approves while a poll holds the pending copy
		var once sync.Once
		slow.afterGet = func() {
			once.Do(func() {
				_, err := flow.Approve(ctx, code.UserCode, "alice")
				assert.NoError(t, err)
			})
		}

		_, err = flow.ExchangeDeviceCode(ctx, "trino", code.DeviceCode, pair.Verifier)
		assert.ErrorIs(t, err, ErrAuthorizationPending)

		got, err := store.GetDeviceCode(ctx, code.DeviceCode)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, StatusApproved, got.Status)

		token, err := flow.ExchangeDeviceCode(ctx, "trino", code.DeviceCode, pair.Verifier)
		require.NoError(t, err)
		assert.NotEmpty(t, token.AccessToken)
	})
}
