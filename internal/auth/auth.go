// Package auth manages the HTTP Basic credentials used against the backend.
package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ticketops/tickctl/internal/notify"
)

// CredentialsFileName is the credentials file inside the config directory.
const CredentialsFileName = "credentials.json"

// Credentials is a username/password pair for HTTP Basic auth.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Manager holds the active credentials. Credentials come either from the
// credentials file (user-managed, cleared on logout or 401) or from
// environment defaults (immutable: they survive logout and 401).
type Manager struct {
	path string

	mu      sync.RWMutex
	creds   *Credentials
	fromEnv bool
}

// NewManager loads credentials from configDir, falling back to the
// environment defaults when no file exists.
func NewManager(configDir string, envDefault Credentials) (*Manager, error) {
	m := &Manager{path: filepath.Join(configDir, CredentialsFileName)}

	if err := m.load(); err != nil {
		return nil, err
	}
	if m.creds == nil && envDefault.Username != "" {
		m.creds = &envDefault
		m.fromEnv = true
	}
	return m, nil
}

// Credentials implements api.CredentialSource.
func (m *Manager) Credentials() (string, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.creds == nil {
		return "", "", false
	}
	return m.creds.Username, m.creds.Password, true
}

// IsAuthenticated reports whether credentials are present.
func (m *Manager) IsAuthenticated() bool {
	_, _, ok := m.Credentials()
	return ok
}

// Username returns the active username, or "".
func (m *Manager) Username() string {
	user, _, _ := m.Credentials()
	return user
}

// FromEnv reports whether the active credentials are environment defaults.
func (m *Manager) FromEnv() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fromEnv
}

// Set stores new credentials and persists them. Stored credentials replace
// environment defaults for the rest of the session.
func (m *Manager) Set(username, password string) error {
	if username == "" {
		return fmt.Errorf("username must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creds = &Credentials{Username: username, Password: password}
	m.fromEnv = false

	data, err := json.Marshal(m.creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Clear removes stored credentials. Environment-default credentials cannot
// be cleared; Clear reports whether anything was removed.
func (m *Manager) Clear() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.creds == nil || m.fromEnv {
		return false, nil
	}
	m.creds = nil
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("remove credentials: %w", err)
	}
	return true, nil
}

// InvalidationHandler returns the callback to register on the API client's
// auth-invalidated event. On a 401 it drops stored credentials and tells
// the user to authenticate again; environment defaults are left in place.
func (m *Manager) InvalidationHandler(notifier notify.Notifier) func() {
	return func() {
		if _, err := m.Clear(); err != nil {
			slog.Error("failed to clear credentials after 401", "error", err)
		}
		if m.FromEnv() {
			notify.Error(notifier, "Backend rejected the environment-provided credentials.")
			return
		}
		notify.Error(notifier, "Authentication required. Run 'tickctl auth login' to sign in again.")
	}
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		// Corrupt file: drop it and start unauthenticated.
		slog.Warn("discarding unreadable credentials file", "path", m.path, "error", err)
		_ = os.Remove(m.path)
		return nil
	}
	m.creds = &creds
	return nil
}
