// Package auth 提供 API 客户端密钥校验和 JWT 令牌。
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("客户端 ID 或密钥错误")
	ErrInvalidToken       = errors.New("无效的令牌")
)

// HashSecret generates a bcrypt hash of the client secret.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(bytes), nil
}

// CheckSecretHash compares a secret with a bcrypt hash.
func CheckSecretHash(secret, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	return err == nil
}

// Claims 令牌携带的信息
type Claims struct {
	ClientID string `json:"cid"`
	jwt.RegisteredClaims
}

// TokenIssuer 签发和校验 HS256 令牌
type TokenIssuer struct {
	secret   []byte
	ttl      time.Duration
	clientID string
	hash     string
	now      func() time.Time
}

// NewTokenIssuer clientID 和 secretHash 是唯一允许换取令牌的客户端凭据
func NewTokenIssuer(secret string, ttl time.Duration, clientID, secretHash string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("JWT_SECRET 未配置")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{
		secret:   []byte(secret),
		ttl:      ttl,
		clientID: clientID,
		hash:     secretHash,
		now:      time.Now,
	}, nil
}

// Exchange 校验客户端凭据并签发令牌
func (t *TokenIssuer) Exchange(clientID, secret string) (string, time.Time, error) {
	if t.hash == "" || clientID != t.clientID || !CheckSecretHash(secret, t.hash) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return t.GenerateToken(clientID)
}

// GenerateToken 签发令牌，返回过期时间
func (t *TokenIssuer) GenerateToken(clientID string) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := Claims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    "coverfm",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("签发令牌失败: %w", err)
	}
	return signed, expires, nil
}

// ParseToken 校验签名和有效期
func (t *TokenIssuer) ParseToken(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tk *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
