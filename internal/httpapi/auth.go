package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/igorkanara777-eng/offline-pos-desktop/internal/domain"
)

// AuthManager authenticates the single admin operator of the terminal and
// issues short-lived bearer tokens for the local API.
type AuthManager struct {
	secret       []byte
	tokenTTL     time.Duration
	username     string
	passwordHash string
}

func NewAuthManager(secret string, tokenTTL time.Duration, username string, password string) (*AuthManager, error) {
	if secret == "" {
		return nil, errors.New("auth secret must not be empty")
	}
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, errors.New("admin username must not be empty")
	}
	if strings.TrimSpace(password) == "" {
		return nil, errors.New("admin password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	return &AuthManager{
		secret:       []byte(secret),
		tokenTTL:     tokenTTL,
		username:     username,
		passwordHash: string(hash),
	}, nil
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username != a.username {
		// Burn a comparison anyway so unknown usernames cost the same as
		// wrong passwords.
		_ = bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(req.Password))
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(req.Password)) != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &jwtlib.RegisteredClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	if claims.Subject == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: claims.Subject}, nil
}

func (a *AuthManager) sign(username string, expiresAt time.Time) (string, error) {
	claims := jwtlib.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		Issuer:    "offline-pos",
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
