package broker

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"risk_go/internal/domain"
)

// sessionFile is the access-token file a separate login flow maintains.
type sessionFile struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userID"`
	AccountID   string `json:"accountID"`
	Expired     bool   `json:"expired"`
}

// Session reads the broker session token from its JSON file. The engine
// never logs in itself; when the gateway reports an invalid session, the
// token is marked expired in place so the operator's login flow refreshes
// it.
type Session struct {
	path string

	mu   sync.Mutex
	data sessionFile
}

// LoadSession reads and parses the token file.
func LoadSession(path string) (*Session, error) {
	s := &Session{path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read session token: %w", err)
	}
	var data sessionFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse session token: %w", err)
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// Token returns the current access token, or ErrSessionExpired when the
// file is marked expired or carries no token.
func (s *Session) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Expired || s.data.AccessToken == "" {
		return "", domain.ErrSessionExpired
	}
	return s.data.AccessToken, nil
}

// UserID returns the broker login id.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UserID
}

// AccountID returns the trading account id.
func (s *Session) AccountID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.AccountID
}

// MarkExpired flags the token file so the login flow knows to refresh it.
func (s *Session) MarkExpired() error {
	s.mu.Lock()
	s.data.Expired = true
	data, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
