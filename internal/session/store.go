package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/eternisai/groupspend-sync/internal/api"
)

// Persisted is what a Store holds across restarts.
type Persisted struct {
	AccessToken  string
	RefreshToken string
	// User is nil when absent or unparseable.
	User *api.UserProfile
}

// Store persists the accessToken, refreshToken and user keys.
// Clear removes all three as a group.
type Store interface {
	Load(ctx context.Context) (Persisted, error)
	SaveTokens(ctx context.Context, accessToken, refreshToken string) error
	SaveUser(ctx context.Context, user api.UserProfile) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data Persisted
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (Persisted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.data
	if out.User != nil {
		u := *out.User
		out.User = &u
	}
	return out, nil
}

func (s *MemoryStore) SaveTokens(ctx context.Context, accessToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.AccessToken = accessToken
	s.data.RefreshToken = refreshToken
	return nil
}

func (s *MemoryStore) SaveUser(ctx context.Context, user api.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.User = &user
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = Persisted{}
	return nil
}

// fileRecord is the on-disk layout. User is kept raw so a corrupt profile
// does not hide the tokens.
type fileRecord struct {
	AccessToken  string          `json:"accessToken,omitempty"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

// FileStore persists the session as a JSON document.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (Persisted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil {
		return Persisted{}, err
	}

	return Persisted{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		User:         decodeUser(rec.User),
	}, nil
}

func (s *FileStore) SaveTokens(ctx context.Context, accessToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil {
		rec = fileRecord{}
	}
	rec.AccessToken = accessToken
	rec.RefreshToken = refreshToken
	return s.write(rec)
}

func (s *FileStore) SaveUser(ctx context.Context, user api.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	rec, err := s.read()
	if err != nil {
		rec = fileRecord{}
	}
	rec.User = raw
	return s.write(rec)
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (s *FileStore) read() (fileRecord, error) {
	var rec fileRecord

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("read session file: %w", err)
	}
	if len(data) == 0 {
		return rec, nil
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return fileRecord{}, fmt.Errorf("decode session file: %w", err)
	}
	return rec, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *FileStore) write(rec fileRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func decodeUser(raw []byte) *api.UserProfile {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var user api.UserProfile
	if err := json.Unmarshal(raw, &user); err != nil || user.ID == "" {
		return nil
	}
	return &user
}
