package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/redis/go-redis/v9"

	"github.com/waabox/catalogauth/internal/domain"
)

// Store persists the current session across process restarts.
// Load returns domain.ErrNoSession when nothing is stored.
type Store interface {
	Load(ctx context.Context) (domain.Session, error)
	Save(ctx context.Context, sess domain.Session) error
	Delete(ctx context.Context) error
}

// FileStore keeps the session in a TOML file readable only by its owner.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileSession struct {
	ID          string    `toml:"id"`
	AccessToken string    `toml:"access_token"`
	TokenType   string    `toml:"token_type"`
	Scope       string    `toml:"scope"`
	IssuedAt    time.Time `toml:"issued_at"`
	ExpiresAt   time.Time `toml:"expires_at"`
	Refreshes   int       `toml:"refreshes"`
}

type sessionFile struct {
	Session *fileSession `toml:"session"`
}

func (s *FileStore) Load(_ context.Context) (domain.Session, error) {
	var f sessionFile
	if _, err := toml.DecodeFile(s.path, &f); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Session{}, domain.ErrNoSession
		}
		return domain.Session{}, fmt.Errorf("reading session file: %w", err)
	}
	if f.Session == nil || f.Session.AccessToken == "" {
		return domain.Session{}, domain.ErrNoSession
	}
	return domain.Session{
		ID:          f.Session.ID,
		AccessToken: f.Session.AccessToken,
		TokenType:   f.Session.TokenType,
		Scope:       f.Session.Scope,
		IssuedAt:    f.Session.IssuedAt,
		ExpiresAt:   f.Session.ExpiresAt,
		Refreshes:   f.Session.Refreshes,
	}, nil
}

func (s *FileStore) Save(_ context.Context, sess domain.Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening session file: %w", err)
	}
	data := sessionFile{Session: &fileSession{
		ID:          sess.ID,
		AccessToken: sess.AccessToken,
		TokenType:   sess.TokenType,
		Scope:       sess.Scope,
		IssuedAt:    sess.IssuedAt.UTC(),
		ExpiresAt:   sess.ExpiresAt.UTC(),
		Refreshes:   sess.Refreshes,
	}}
	if encErr := toml.NewEncoder(f).Encode(data); encErr != nil {
		f.Close()
		return fmt.Errorf("writing session file: %w", encErr)
	}
	return f.Close()
}

// Delete removes the session file. A missing file is not an error.
func (s *FileStore) Delete(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// Redis hash fields.
const (
	fieldID          = "id"
	fieldAccessToken = "access_token"
	fieldTokenType   = "token_type"
	fieldScope       = "scope"
	fieldIssuedAt    = "issued_at"
	fieldExpiresAt   = "expires_at"
	fieldRefreshes   = "refreshes"
)

// RedisStore keeps the session in a Redis hash that expires with the token.
type RedisStore struct {
	redis redis.UniversalClient
	key   string
}

// NewRedisStore creates a RedisStore writing to key.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	return &RedisStore{redis: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (domain.Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.key).Result()
	if err != nil {
		return domain.Session{}, fmt.Errorf("reading session from redis: %w", err)
	}
	if len(fields) == 0 || fields[fieldAccessToken] == "" {
		return domain.Session{}, domain.ErrNoSession
	}

	issuedAt, err := time.Parse(time.RFC3339Nano, fields[fieldIssuedAt])
	if err != nil {
		return domain.Session{}, fmt.Errorf("decoding %s: %w", fieldIssuedAt, err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields[fieldExpiresAt])
	if err != nil {
		return domain.Session{}, fmt.Errorf("decoding %s: %w", fieldExpiresAt, err)
	}
	refreshes, err := strconv.Atoi(fields[fieldRefreshes])
	if err != nil {
		return domain.Session{}, fmt.Errorf("decoding %s: %w", fieldRefreshes, err)
	}
	return domain.Session{
		ID:          fields[fieldID],
		AccessToken: fields[fieldAccessToken],
		TokenType:   fields[fieldTokenType],
		Scope:       fields[fieldScope],
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
		Refreshes:   refreshes,
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, sess domain.Session) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.HSet(ctx, s.key, map[string]interface{}{
			fieldID:          sess.ID,
			fieldAccessToken: sess.AccessToken,
			fieldTokenType:   sess.TokenType,
			fieldScope:       sess.Scope,
			fieldIssuedAt:    sess.IssuedAt.UTC().Format(time.RFC3339Nano),
			fieldExpiresAt:   sess.ExpiresAt.UTC().Format(time.RFC3339Nano),
			fieldRefreshes:   strconv.Itoa(sess.Refreshes),
		})
		pipe.ExpireAt(ctx, s.key, sess.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing session to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("deleting session from redis: %w", err)
	}
	return nil
}
