package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNotLoggedIn is returned by calls that need a token when the session
// has none.
var ErrNotLoggedIn = errors.New("not logged in")

// Credentials are what a TokenStore persists between runs.
type Credentials struct {
	Token      string `json:"token"`
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	MedicoID   string `json:"medico_id,omitempty"`
	PacienteID string `json:"paciente_id,omitempty"`
}

type TokenStore interface {
	Load() (*Credentials, error)
	Save(*Credentials) error
	Clear() error
}

// Session holds the caller's identity for one client. It is created
// explicitly and shared by reference; there is no package-level session.
type Session struct {
	mu    sync.RWMutex
	store TokenStore
	creds Credentials
}

func NewSession(store TokenStore) *Session {
	return &Session{store: store}
}

// Load restores saved credentials. A store with nothing saved leaves the
// session logged out without error.
func (s *Session) Load() error {
	if s.store == nil {
		return nil
	}
	c, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c != nil {
		s.creds = *c
	}
	return nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Rol        string   `json:"rol,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	MedicoID   string   `json:"medico_id,omitempty"`
	PacienteID string   `json:"paciente_id,omitempty"`
}

// Login adopts token and persists it. The token's claims are read without
// verifying the signature: the server verifies every request, the client
// only needs the role and profile ids for display and routing.
func (s *Session) Login(token string) error {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("parse token: %w", err)
	}
	role := claims.Rol
	if role == "" && len(claims.Roles) > 0 {
		role = claims.Roles[0]
	}
	c := Credentials{
		Token:      token,
		UserID:     claims.Subject,
		Role:       role,
		MedicoID:   claims.MedicoID,
		PacienteID: claims.PacienteID,
	}
	if s.store != nil {
		if err := s.store.Save(&c); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	s.mu.Lock()
	s.creds = c
	s.mu.Unlock()
	return nil
}

// Logout forgets the credentials in memory and in the store.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.creds = Credentials{}
	s.mu.Unlock()
	if s.store != nil {
		return s.store.Clear()
	}
	return nil
}

func (s *Session) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

func (s *Session) Token() string { return s.Credentials().Token }

func (s *Session) Authenticated() bool { return s.Token() != "" }

// FileTokenStore keeps credentials in a JSON file readable only by the user.
type FileTokenStore struct {
	Path string
}

// DefaultTokenPath is ~/.config/cesfam-portal/session.json.
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cesfam-portal", "session.json"), nil
}

func (f FileTokenStore) Load() (*Credentials, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	return &c, nil
}

func (f FileTokenStore) Save(c *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0o600)
}

func (f FileTokenStore) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// MemoryTokenStore keeps credentials for the life of the process.
type MemoryTokenStore struct {
	mu    sync.Mutex
	creds *Credentials
}

func (m *MemoryTokenStore) Load() (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return nil, nil
	}
	c := *m.creds
	return &c, nil
}

func (m *MemoryTokenStore) Save(c *Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.creds = &cp
	return nil
}

func (m *MemoryTokenStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	return nil
}
