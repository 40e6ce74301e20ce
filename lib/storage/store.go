//go:generate mockgen -destination=./store_mock.go -package=storage -source=store.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrNotFound is returned by Store.Get when no value is stored under the given key.
var ErrNotFound = errors.New("storage: key not found")

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Store persists opaque values under string keys, comparable to a browser's local storage.
type Store interface {
	// Get returns the value stored under the key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores the value under the key, replacing any existing value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes the value stored under the key. Deleting a non-existing key is not an error.
	Delete(ctx context.Context, key string) error
}

const (
	TypeMemory = "memory"
	TypeFile   = "file"
)

type Config struct {
	// Type is either "memory" or "file".
	Type string `koanf:"type"`
	// Dir is the directory values are written to when Type is "file".
	Dir string `koanf:"dir"`
	// TTL limits how long values are kept when Type is "memory". Zero means forever.
	TTL time.Duration `koanf:"ttl"`
	// CodeVerifierKey is the key the PKCE code verifier is stored under.
	CodeVerifierKey string `koanf:"codeverifierkey"`
	// TokenResponseKey is the key the token response is stored under.
	TokenResponseKey string `koanf:"tokenresponsekey"`
}

func (c Config) Validate() error {
	switch c.Type {
	case TypeMemory:
	case TypeFile:
		if c.Dir == "" {
			return errors.New("storage.dir is required when storage.type is file")
		}
	default:
		return fmt.Errorf("unsupported storage.type: %s (supported: %s, %s)", c.Type, TypeMemory, TypeFile)
	}
	if c.TTL < 0 {
		return errors.New("storage.ttl can't be negative")
	}
	for name, key := range map[string]string{"codeverifierkey": c.CodeVerifierKey, "tokenresponsekey": c.TokenResponseKey} {
		if err := ValidateKey(key); err != nil {
			return fmt.Errorf("storage.%s: %w", name, err)
		}
	}
	if c.CodeVerifierKey == c.TokenResponseKey {
		return errors.New("storage.codeverifierkey and storage.tokenresponsekey must differ")
	}
	return nil
}

// New creates the Store described by the configuration.
func New(config Config) (Store, error) {
	switch config.Type {
	case TypeMemory:
		return NewMemoryStore(config.TTL), nil
	case TypeFile:
		return NewFileStore(config.Dir)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// ValidateKey checks that the key is non-empty and only contains characters that are safe to use as file name.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("key is empty")
	}
	if !validKey.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("invalid key: %s", key)
	}
	return nil
}
