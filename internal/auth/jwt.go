package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// RoleHost is the only role a host token grants.
	RoleHost = "host"

	issuer = "livepoll"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongSession = errors.New("token issued for another session")
)

// Claims binds a token to one session code.
type Claims struct {
	Code string `json:"code"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// HostTokenService issues and checks tokens that prove the bearer created a session.
// Holding one lets a teacher reclaim host rights after reconnecting.
type HostTokenService struct {
	secret      []byte
	expireHours int
	now         func() time.Time
}

// NewHostTokenService creates a token service. expireHours <= 0 defaults to 12.
func NewHostTokenService(secret string, expireHours int) *HostTokenService {
	if expireHours <= 0 {
		expireHours = 12
	}
	return &HostTokenService{
		secret:      []byte(secret),
		expireHours: expireHours,
		now:         time.Now,
	}
}

// Issue signs a host token for code.
func (s *HostTokenService) Issue(code string) (string, error) {
	now := s.now()
	claims := Claims{
		Code: code,
		Role: RoleHost,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   code,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks that tokenString is a valid, unexpired host token for code.
func (s *HostTokenService) Verify(tokenString, code string) error {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Role != RoleHost {
		return ErrInvalidToken
	}
	if claims.Code != code {
		return ErrWrongSession
	}
	return nil
}
