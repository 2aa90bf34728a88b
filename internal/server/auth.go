package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gravitas-games/gridstash/internal/config"
	"github.com/gravitas-games/gridstash/pkg/models"
	"github.com/sirupsen/logrus"
)

// TokenValidator turns a bearer token into an authenticated player
type TokenValidator interface {
	ValidateToken(tokenString string) (*models.Player, error)
}

// Blacklist reports revoked users
type Blacklist interface {
	IsBlacklisted(ctx context.Context, userID string) (bool, error)
}

// RedisBlacklist checks revocations stored as prefix+userID keys
type RedisBlacklist struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisBlacklist creates a blacklist backed by redis
func NewRedisBlacklist(rdb *redis.Client, prefix string) *RedisBlacklist {
	return &RedisBlacklist{rdb: rdb, prefix: prefix}
}

// IsBlacklisted checks whether the user's blacklist key exists
func (b *RedisBlacklist) IsBlacklisted(ctx context.Context, userID string) (bool, error) {
	n, err := b.rdb.Exists(ctx, b.prefix+userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// JWTValidator handles JWT token validation
type JWTValidator struct {
	config    *config.Config
	publicKey *ecdsa.PublicKey
	keyMu     sync.RWMutex
	blacklist Blacklist
	log       logrus.FieldLogger
	now       func() time.Time
}

// Claims represents JWT token claims issued by the login server
type Claims struct {
	UserID      int64  `json:"user_id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	AuthMethod  string `json:"auth_method"`
	Permissions int64  `json:"permissions"`
	Activated   int64  `json:"activated"`
	jwt.RegisteredClaims
}

// NewJWTValidator creates a validator that fetches its key from the
// configured URL and refreshes it in the background until ctx ends
func NewJWTValidator(ctx context.Context, cfg *config.Config, blacklist Blacklist, log logrus.FieldLogger) (*JWTValidator, error) {
	validator := NewJWTValidatorWithKey(cfg, nil, blacklist, log)

	if err := validator.RefreshPublicKey(); err != nil {
		return nil, fmt.Errorf("failed to fetch public key: %w", err)
	}

	go validator.periodicKeyRefresh(ctx)

	log.Info("JWT validator initialized")
	return validator, nil
}

// NewJWTValidatorWithKey creates a validator with a fixed public key
func NewJWTValidatorWithKey(cfg *config.Config, key *ecdsa.PublicKey, blacklist Blacklist, log logrus.FieldLogger) *JWTValidator {
	return &JWTValidator{
		config:    cfg,
		publicKey: key,
		blacklist: blacklist,
		log:       log.WithField("component", "jwt"),
		now:       time.Now,
	}
}

// RefreshPublicKey fetches the public key from the login server
func (v *JWTValidator) RefreshPublicKey() error {
	v.log.WithField("url", v.config.JWT.PublicKeyURL).Info("Fetching public key")

	resp, err := http.Get(v.config.JWT.PublicKeyURL)
	if err != nil {
		return fmt.Errorf("failed to fetch public key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("public key endpoint returned status %d", resp.StatusCode)
	}

	keyData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}

	key, err := ParsePublicKey(keyData)
	if err != nil {
		return err
	}

	v.keyMu.Lock()
	v.publicKey = key
	v.keyMu.Unlock()

	v.log.Info("Public key refreshed successfully")
	return nil
}

// ParsePublicKey decodes a PEM encoded ECDSA public key
func ParsePublicKey(keyData []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	ecdsaKey, ok := pubKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not ECDSA")
	}
	return ecdsaKey, nil
}

func (v *JWTValidator) periodicKeyRefresh(ctx context.Context) {
	refreshInterval := time.Duration(v.config.JWT.PublicKeyRefreshHrs) * time.Hour

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := v.RefreshPublicKey(); err != nil {
				v.log.WithError(err).Warn("Failed to refresh public key")
			}
		}
	}
}

// ValidateToken validates a JWT token and returns player information
func (v *JWTValidator) ValidateToken(tokenString string) (*models.Player, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		v.keyMu.RLock()
		defer v.keyMu.RUnlock()
		if v.publicKey == nil {
			return nil, fmt.Errorf("no public key loaded")
		}
		return v.publicKey, nil
	}, jwt.WithTimeFunc(v.now))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.Issuer != v.config.JWT.Issuer {
		return nil, fmt.Errorf("invalid issuer: expected %s, got %s", v.config.JWT.Issuer, claims.Issuer)
	}

	if claims.Activated == 0 {
		return nil, fmt.Errorf("user not activated")
	}

	if claims.Activated == -1 {
		return nil, fmt.Errorf("user is banned")
	}

	userIDStr := strconv.FormatInt(claims.UserID, 10)
	if v.blacklist != nil {
		listed, err := v.blacklist.IsBlacklisted(context.Background(), userIDStr)
		if err != nil {
			// a redis outage must not lock every player out
			v.log.WithError(err).Warn("Failed to check blacklist")
		} else if listed {
			return nil, fmt.Errorf("token is blacklisted")
		}
	}

	return &models.Player{
		ID:          userIDStr,
		Username:    claims.Username,
		Email:       claims.Email,
		Permissions: claims.Permissions,
		Activated:   claims.Activated,
		AuthMethod:  claims.AuthMethod,
	}, nil
}

// extractTokenFromHeader extracts JWT token from WebSocket connection header
func extractTokenFromHeader(r *http.Request) string {
	// Sec-WebSocket-Protocol: "access_token, <token>"
	if protocols := r.Header.Get("Sec-WebSocket-Protocol"); protocols != "" {
		parts := parseProtocols(protocols)
		if len(parts) == 2 && parts[0] == "access_token" {
			return parts[1]
		}
	}

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	return r.URL.Query().Get("token")
}

// parseProtocols splits the Sec-WebSocket-Protocol header, dropping blanks
func parseProtocols(protocols string) []string {
	var result []string
	for _, p := range strings.Split(protocols, ",") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
