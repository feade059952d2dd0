package core

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/deliverability/internal/model"
	"github.com/edvin/deliverability/internal/platform"
)

// APIKeyPrefix marks raw keys issued by this service.
const APIKeyPrefix = "dlv_"

// APIKeyService manages the keys that authenticate API callers.
type APIKeyService struct {
	db DB
}

func NewAPIKeyService(db DB) *APIKeyService {
	return &APIKeyService{db: db}
}

// HashAPIKey returns the stored form of a raw key.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// Create generates a new key and stores its hash. The raw key is returned
// once and cannot be recovered later.
func (s *APIKeyService) Create(ctx context.Context, name string) (*model.APIKey, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}
	rawKey := APIKeyPrefix + hex.EncodeToString(b)

	key, err := s.CreateWithRawKey(ctx, name, rawKey)
	if err != nil {
		return nil, "", err
	}
	return key, rawKey, nil
}

// CreateWithRawKey stores a caller-chosen key. Used to seed a known key in
// development environments.
func (s *APIKeyService) CreateWithRawKey(ctx context.Context, name, rawKey string) (*model.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newError(KindValidation, nil, "api key name is required")
	}
	if len(rawKey) < 16 {
		return nil, newError(KindValidation, nil, "api key must be at least 16 characters")
	}

	var k model.APIKey
	err := s.db.QueryRow(ctx,
		`INSERT INTO api_keys (id, name, key_hash, created_at) VALUES ($1, $2, $3, now())
		 RETURNING id, name, created_at, revoked_at`,
		platform.NewID(), name, HashAPIKey(rawKey),
	).Scan(&k.ID, &k.Name, &k.CreatedAt, &k.RevokedAt)
	if err != nil {
		return nil, fmt.Errorf("insert api key: %w", err)
	}
	return &k, nil
}

// Authenticate resolves a raw key to its active record.
func (s *APIKeyService) Authenticate(ctx context.Context, rawKey string) (*model.APIKey, error) {
	if rawKey == "" {
		return nil, newError(KindNotFound, nil, "missing API key")
	}
	var k model.APIKey
	err := s.db.QueryRow(ctx,
		`SELECT id, name, created_at, revoked_at FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL`,
		HashAPIKey(rawKey),
	).Scan(&k.ID, &k.Name, &k.CreatedAt, &k.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newError(KindNotFound, nil, "invalid API key")
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate api key: %w", err)
	}
	return &k, nil
}

// List returns all keys, newest first. Revoked keys are included.
func (s *APIKeyService) List(ctx context.Context) ([]model.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, created_at, revoked_at FROM api_keys ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &k.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

// Revoke soft-deletes a key by setting revoked_at.
func (s *APIKeyService) Revoke(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return newError(KindNotFound, nil, "api key %s not found or already revoked", id)
	}
	return nil
}
