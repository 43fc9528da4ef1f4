// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/jeranaias/flai-tui/internal/model"
)

// Token lifetimes.
const (
	AccessTokenTTL  = 24 * time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour
)

var (
	errInvalidCredentials = errors.New("Invalid email or password")
	errCodeRequired       = errors.New("Verification code required")
	errInvalidCode        = errors.New("Invalid verification code")
)

// totpOpts are the usual authenticator app settings.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Claims are the JWT claims of an access token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 tokens.
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

// NewTokenManager creates a token manager signing with secret.
func NewTokenManager(secret []byte, now func() time.Time) *TokenManager {
	if now == nil {
		now = time.Now
	}
	return &TokenManager{secret: secret, now: now}
}

// Issue returns a fresh access/refresh token pair for u.
func (m *TokenManager) Issue(u model.User) (*model.TokenPair, error) {
	access, err := m.sign(u, AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := m.sign(u, RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(AccessTokenTTL / time.Second),
	}, nil
}

func (m *TokenManager) sign(u model.User, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse verifies a token and returns its claims.
func (m *TokenManager) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user")
	}
	return claims, nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// account is the single user the server accepts.
type account struct {
	user model.User
	hash []byte
	// totpSecret is the base32 TOTP secret; empty disables the second factor.
	totpSecret string
}

func newAccount(user model.User, password, totpSecret string) (*account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &account{user: user, hash: hash, totpSecret: totpSecret}, nil
}

// verify checks the credentials and, when the account has a TOTP secret, the
// verification code at now. Both a wrong email and a wrong password yield
// errInvalidCredentials.
func (a *account) verify(email, password, code string, now time.Time) error {
	if !equalFoldTrim(email, a.user.Email) {
		return errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		return errInvalidCredentials
	}
	if a.totpSecret == "" {
		return nil
	}
	if code == "" {
		return errCodeRequired
	}
	valid, err := totp.ValidateCustom(code, a.totpSecret, now, totpOpts)
	if err != nil || !valid {
		return errInvalidCode
	}
	return nil
}

// GenerateTOTPSecret returns a new base32 secret for account.
func GenerateTOTPSecret(account string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "flai", AccountName: account})
	if err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	return key.Secret(), nil
}
