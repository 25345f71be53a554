package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ChainScope-MCP/pkg/logger"
)

const secretSaltBytes = 16

// Service 负责 HTTP 端点的身份验证和授权。
type Service struct {
	mode  Mode
	store Store
	audit *slog.Logger
}

// NewService 构造身份认证服务实例。store 为空时仅支持 disabled 模式；
// cfg.Seeds 会在启动时写入支持种子的存储。
func NewService(ctx context.Context, cfg Config, store Store) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeDisabled
	}
	svc := &Service{
		mode:  mode,
		store: store,
		audit: logger.Audit(),
	}

	switch mode {
	case ModeDisabled:
		return svc, nil
	case ModeAPIKey:
		if store == nil {
			return nil, errors.New("api_key mode requires a key store")
		}
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}

	if writer, ok := store.(SeedWriter); ok {
		for _, seed := range cfg.Seeds {
			if strings.TrimSpace(seed.KeyID) == "" {
				continue
			}
			if err := writer.ApplySeed(ctx, seed); err != nil {
				return nil, fmt.Errorf("seed api key %s: %w", seed.KeyID, err)
			}
		}
	}
	return svc, nil
}

// Mode 返回服务当前的认证模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// AuthenticateRequest 验证传入请求的授权头，并返回相应的主体信息。
// 凭证格式为 "Bearer <key_id>:<secret>"。
func (s *Service) AuthenticateRequest(ctx context.Context, authorization string) (*Subject, error) {
	if s == nil || s.mode == ModeDisabled {
		return nil, ErrDisabled
	}
	parts := strings.SplitN(strings.TrimSpace(authorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, ErrMissingKey
	}
	credential := strings.TrimSpace(parts[1])
	if credential == "" {
		return nil, ErrMissingKey
	}

	keyID, secret, found := strings.Cut(credential, ":")
	if !found || keyID == "" || secret == "" {
		return nil, ErrInvalidKey
	}

	key, err := s.store.FindKey(ctx, keyID)
	if err != nil || key == nil {
		return nil, ErrInvalidKey
	}
	if !verifySecret(key.SecretHash, secret) {
		return nil, ErrInvalidKey
	}
	if key.Disabled {
		return nil, ErrSubjectRevoked
	}

	subject := &Subject{
		ID:          key.ID,
		KeyID:       key.KeyID,
		Label:       key.Label,
		Permissions: append([]string(nil), key.Permissions...),
		Disabled:    key.Disabled,
	}
	subject.normalise()
	return subject, nil
}

// HashSecret 对给定的密钥进行哈希处理并返回哈希值。
func HashSecret(secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("secret cannot be empty")
	}
	salt := make([]byte, secretSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	digest := sha256.Sum256(append(salt, []byte(secret)...))
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedDigest := base64.RawStdEncoding.EncodeToString(digest[:])
	return encodedSalt + ":" + encodedDigest, nil
}

// verifySecret 验证给定的密钥是否与哈希值匹配。
func verifySecret(hashed, secret string) bool {
	if hashed == "" {
		return false
	}
	parts := strings.SplitN(hashed, ":", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	digest := sha256.Sum256(append(salt, []byte(secret)...))
	return subtle.ConstantTimeCompare(expected, digest[:]) == 1
}
