package authserver

import (
	"context"
	"sync"
	"time"

	"github.com/wrale/oauth2-device-login/internal/validation"
)

// MemoryStore implements Store in process memory. Entries past their
// retention are dropped lazily on access.
type MemoryStore struct {
	mu          sync.Mutex
	deviceCodes map[string]DeviceCode
	userCodes   map[string]string // normalized user code -> device code
	refresh     map[string]RefreshGrant
	attempts    map[string][]time.Time
	polls       map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deviceCodes: make(map[string]DeviceCode),
		userCodes:   make(map[string]string),
		refresh:     make(map[string]RefreshGrant),
		attempts:    make(map[string][]time.Time),
		polls:       make(map[string]time.Time),
	}
}

func (m *MemoryStore) SaveDeviceCode(_ context.Context, code *DeviceCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deviceCodes[code.DeviceCode] = *code
	m.userCodes[validation.NormalizeCode(code.UserCode)] = code.DeviceCode
	return nil
}

func (m *MemoryStore) GetDeviceCode(_ context.Context, deviceCode string) (*DeviceCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(deviceCode), nil
}

func (m *MemoryStore) getLocked(deviceCode string) *DeviceCode {
	code, ok := m.deviceCodes[deviceCode]
	if !ok {
		return nil
	}
	if time.Now().After(code.ExpiresAt.Add(ExpiredRetention)) {
		m.deleteLocked(deviceCode)
		return nil
	}
	return &code
}

func (m *MemoryStore) GetDeviceCodeByUserCode(_ context.Context, userCode string) (*DeviceCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deviceCode, ok := m.userCodes[validation.NormalizeCode(userCode)]
	if !ok {
		return nil, nil
	}
	return m.getLocked(deviceCode), nil
}

func (m *MemoryStore) DecideDeviceCode(_ context.Context, deviceCode string, status Status, subject string) (*DeviceCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code := m.getLocked(deviceCode)
	if code == nil || code.Status != StatusPending {
		return nil, nil
	}
	code.Status = status
	code.Subject = subject
	m.deviceCodes[deviceCode] = *code
	return code, nil
}

func (m *MemoryStore) ConsumeDeviceCode(_ context.Context, code *DeviceCode) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deviceCodes[code.DeviceCode]; !ok {
		return false, nil
	}
	m.deleteLocked(code.DeviceCode)
	return true, nil
}

func (m *MemoryStore) RecordPoll(_ context.Context, code *DeviceCode, at time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	last := m.polls[code.DeviceCode]
	if _, ok := m.deviceCodes[code.DeviceCode]; ok {
		m.polls[code.DeviceCode] = at
	}
	return last, nil
}

func (m *MemoryStore) deleteLocked(deviceCode string) {
	code, ok := m.deviceCodes[deviceCode]
	if !ok {
		return
	}
	delete(m.deviceCodes, deviceCode)
	delete(m.userCodes, validation.NormalizeCode(code.UserCode))
	delete(m.attempts, deviceCode)
	delete(m.polls, deviceCode)
}

func (m *MemoryStore) SaveRefreshGrant(_ context.Context, token string, grant *RefreshGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[token] = *grant
	return nil
}

func (m *MemoryStore) GetRefreshGrant(_ context.Context, token string) (*RefreshGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	grant, ok := m.refresh[token]
	if !ok {
		return nil, nil
	}
	if time.Now().After(grant.ExpiresAt) {
		delete(m.refresh, token)
		return nil, nil
	}
	return &grant, nil
}

func (m *MemoryStore) DeleteRefreshGrant(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, token)
	return nil
}

func (m *MemoryStore) CountAttempts(_ context.Context, deviceCode string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-window)
	count := 0
	for _, at := range m.attempts[deviceCode] {
		if !at.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) RecordAttempt(_ context.Context, deviceCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getLocked(deviceCode) == nil {
		return ErrInvalidGrant
	}
	m.attempts[deviceCode] = append(m.attempts[deviceCode], time.Now())
	return nil
}

func (m *MemoryStore) CheckHealth(context.Context) error {
	return nil
}
