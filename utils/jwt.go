package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/s92475mark/remote-file-access/config"
)

// DownloadTokenTTL bounds the lifetime of single-purpose download tokens.
const DownloadTokenTTL = 5 * time.Minute

// Claims defines JWT claims used for bearer authentication.
type Claims struct {
	UserID  uint   `json:"user_id"`
	Account string `json:"account"`
	jwt.RegisteredClaims
}

// DownloadClaims carry a short-lived grant to fetch one file. StorageKey may
// be empty, in which case the token only proves the holder's identity.
type DownloadClaims struct {
	UserID     uint   `json:"user_id"`
	StorageKey string `json:"storage_key,omitempty"`
	Purpose    string `json:"purpose"`
	jwt.RegisteredClaims
}

// GenerateToken issues a bearer JWT for the specified user identity.
func GenerateToken(userID uint, account string, duration time.Duration) (string, error) {
	cfg := config.Get()

	claims := Claims{
		UserID:  userID,
		Account: account,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken validates a bearer JWT and returns its claims.
func ParseToken(tokenStr string) (*Claims, error) {
	cfg := config.Get()
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// GenerateDownloadToken mints a 5-minute token optionally pinned to one
// storage key.
func GenerateDownloadToken(userID uint, storageKey string) (string, error) {
	cfg := config.Get()

	claims := DownloadClaims{
		UserID:     userID,
		StorageKey: storageKey,
		Purpose:    "download",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(DownloadTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseDownloadToken validates a download token. Expired, malformed and
// wrong-purpose tokens all fail the same way so callers can return one generic
// invalid-or-expired message.
func ParseDownloadToken(tokenStr string) (*DownloadClaims, error) {
	cfg := config.Get()
	parsed, err := jwt.ParseWithClaims(tokenStr, &DownloadClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*DownloadClaims)
	if !ok || !parsed.Valid || claims.Purpose != "download" {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}
