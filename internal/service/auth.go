// Package service contains application services of the gate server: device
// authentication, real-time validation, the check-in authority, and stats.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/tixgate/tixgate/internal/crypto"
	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/model"
	"github.com/tixgate/tixgate/internal/repository"
)

// Token is an issued access token with its expiry for diagnostics.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// AuthService exchanges scanner device credentials for access tokens.
type AuthService interface {
	// TokenForDevice authenticates a provisioned device and issues a
	// short-lived access token bound to the device's actor.
	TokenForDevice(ctx context.Context, deviceID, deviceKey string) (Token, error)
}

type AuthServiceImpl struct {
	devices   repository.DeviceRepository
	signKey   []byte
	accessTTL time.Duration
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(devices repository.DeviceRepository, signKey []byte, accessTTL time.Duration) *AuthServiceImpl {
	return &AuthServiceImpl{devices: devices, signKey: signKey, accessTTL: accessTTL}
}

// AccessClaims are the claims carried by scanner access tokens. The subject
// is the actor id; the device id travels alongside for audit attribution.
type AccessClaims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// TokenForDevice authenticates the device key and issues an HS256 token.
// Unknown devices, inactive devices, and wrong keys are indistinguishable to
// the caller.
func (s *AuthServiceImpl) TokenForDevice(ctx context.Context, deviceID, deviceKey string) (Token, error) {
	if deviceID == "" || deviceKey == "" {
		return Token{}, errs.ErrUnauthorized
	}
	d, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return Token{}, errs.ErrUnauthorized
		}
		return Token{}, err
	}
	if !d.Active || !pkgcrypto.VerifyDeviceKey([]byte(deviceKey), d.KeySalt, d.KeyHash) {
		return Token{}, errs.ErrUnauthorized
	}

	now := time.Now()
	exp := now.Add(s.accessTTL)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		DeviceID: d.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   d.ActorID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(s.signKey)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// ParseAccessToken validates a token and reconstructs the scan context.
func ParseAccessToken(token string, signKey []byte) (model.ScanContext, error) {
	var claims AccessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return signKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return model.ScanContext{}, errs.ErrUnauthorized
	}
	actorID, err := uuid.FromString(claims.Subject)
	if err != nil {
		return model.ScanContext{}, errs.ErrUnauthorized
	}
	return model.ScanContext{ActorID: actorID, DeviceID: claims.DeviceID}, nil
}
