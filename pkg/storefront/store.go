package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/angelmondragon/bookstore-backend/pkg/redis"
)

// ErrNoState is returned by a StateStore that has nothing saved yet.
var ErrNoState = errors.New("storefront: no saved state")

// StateStore persists State across restarts of the storefront.
type StateStore interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
	Clear(ctx context.Context) error
}

// FileStore keeps the state as a JSON document on local disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state file path is required")
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Load(_ context.Context) (State, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, ErrNoState
	}
	if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	return decodeState(raw)
}

// Save replaces the file atomically so a crash never leaves half a document.
func (f *FileStore) Save(_ context.Context, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".storefront-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

func (f *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state: %w", err)
	}
	return nil
}

type keyValue interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisStore keeps one browser session's state under a Redis key, for
// storefronts rendered on the server.
type RedisStore struct {
	kv  keyValue
	key string
	ttl time.Duration
}

// NewRedisStore scopes the store to sessionID. ttl bounds how long a guest
// cart survives; zero keeps it until cleared.
func NewRedisStore(kv keyValue, sessionID string, ttl time.Duration) (*RedisStore, error) {
	if kv == nil {
		return nil, errors.New("key/value store is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id is required")
	}
	return &RedisStore{kv: kv, key: "storefront:session:" + sessionID, ttl: ttl}, nil
}

func (r *RedisStore) Load(ctx context.Context) (State, error) {
	raw, err := r.kv.Get(ctx, r.key)
	if redis.IsMiss(err) || (err == nil && raw == "") {
		return State{}, ErrNoState
	}
	if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	return decodeState([]byte(raw))
}

func (r *RedisStore) Save(ctx context.Context, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := r.kv.Set(ctx, r.key, string(raw), r.ttl); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.kv.Del(ctx, r.key)
}

func decodeState(raw []byte) (State, error) {
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	state.Cart = state.Cart.MigrateLegacy()
	return state, nil
}
