package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ChainScope-MCP/internal/auth"
)

// SQLAuthStore persists API keys in MySQL.
type SQLAuthStore struct {
	db *sql.DB
}

// NewSQLAuthStore creates the store using the provided connection settings.
func NewSQLAuthStore(ctx context.Context, cfg Config) (*SQLAuthStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLAuthStore{db: db}, nil
}

// Close releases the underlying database connection pool.
func (s *SQLAuthStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// FindKey implements auth.Store.
func (s *SQLAuthStore) FindKey(ctx context.Context, keyID string) (*auth.APIKey, error) {
	const query = `SELECT id, key_id, secret_hash, label, permissions, disabled FROM api_keys WHERE key_id = ?`
	row := s.db.QueryRowContext(ctx, query, strings.TrimSpace(keyID))
	var key auth.APIKey
	var permissions sql.NullString
	var disabled int
	if err := row.Scan(&key.ID, &key.KeyID, &key.SecretHash, &key.Label, &permissions, &disabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("查询 API 密钥失败: %w", err)
	}
	key.Disabled = disabled == 1
	if permissions.Valid && strings.TrimSpace(permissions.String) != "" {
		if err := json.Unmarshal([]byte(permissions.String), &key.Permissions); err != nil {
			return nil, fmt.Errorf("解析密钥权限失败: %w", err)
		}
	}
	return &key, nil
}

// ApplySeed upserts a bootstrap key. Secrets are hashed before they reach
// the database.
func (s *SQLAuthStore) ApplySeed(ctx context.Context, seed auth.Seed) error {
	keyID := strings.TrimSpace(seed.KeyID)
	if keyID == "" {
		return errors.New("seed key id cannot be empty")
	}
	secretHash, err := auth.HashSecret(seed.Secret)
	if err != nil {
		return err
	}
	permissions, err := json.Marshal(dedupeValues(seed.Permissions))
	if err != nil {
		return fmt.Errorf("编码密钥权限失败: %w", err)
	}

	now := time.Now().Unix()
	const upsert = `INSERT INTO api_keys (key_id, secret_hash, label, permissions, disabled, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE secret_hash = VALUES(secret_hash), label = VALUES(label),
permissions = VALUES(permissions), disabled = VALUES(disabled), updated_at = VALUES(updated_at)`
	if _, err := s.db.ExecContext(ctx, upsert,
		keyID, secretHash, strings.TrimSpace(seed.Label), string(permissions), boolToInt(seed.Disabled), now, now,
	); err != nil {
		return fmt.Errorf("保存 API 密钥失败: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func dedupeValues(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}

var (
	_ auth.Store      = (*SQLAuthStore)(nil)
	_ auth.SeedWriter = (*SQLAuthStore)(nil)
)
