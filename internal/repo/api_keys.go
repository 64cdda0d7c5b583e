package repo

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"guildboard/internal/domain"
)

// APIKeyPrefix marks generated scheduler secrets.
const APIKeyPrefix = "gbk_"

const apiKeyColumns = `id, actor_id, COALESCE(name,''), key_hash, created_at`

// HashAPIKey returns the SHA-256 hex digest stored in place of a secret.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// CreateAPIKey generates a secret for actorID and stores only its hash. The
// secret is returned once and cannot be recovered later.
func (r Repo) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("generate api key: %w", err)
	}
	secret := APIKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:      newID(),
		ActorID: actorID,
		Name:    name,
		KeyHash: HashAPIKey(secret),
	}
	if err := r.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

// InsertAPIKey stores a key whose KeyHash is already hashed.
func (r Repo) InsertAPIKey(ctx context.Context, key domain.APIKey) error {
	switch {
	case key.ID == "":
		return errors.New("api key id required")
	case strings.TrimSpace(key.ActorID) == "":
		return errors.New("api key actor required")
	case key.KeyHash == "":
		return errors.New("api key hash required")
	}
	if key.CreatedAt == "" {
		key.CreatedAt = stamp(time.Now())
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO api_keys(id, actor_id, name, key_hash, created_at) VALUES (?,?,?,?,?)`,
		key.ID, strings.TrimSpace(key.ActorID), nullable(key.Name), key.KeyHash, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	key, err := scanAPIKey(r.DB.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash=?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.APIKey{}, ErrNotFound
	}
	return key, err
}

// ListAPIKeys returns keys newest first; an empty actorID lists all of them.
func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE (?='' OR actor_id=?) ORDER BY created_at DESC, id`,
		actorID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.APIKey{}
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("api key %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanAPIKey(s scanner) (domain.APIKey, error) {
	var key domain.APIKey
	err := s.Scan(&key.ID, &key.ActorID, &key.Name, &key.KeyHash, &key.CreatedAt)
	return key, err
}
