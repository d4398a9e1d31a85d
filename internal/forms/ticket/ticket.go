// Package ticket signs and verifies form tickets. A ticket binds a mounted
// form instance to its mount time so the dwell check cannot be forged.
package ticket

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fishtank/internal/forms/models"
	"fishtank/pkg/domain"
	dErrors "fishtank/pkg/domain-errors"
)

const (
	Issuer   = "fishtank"
	Audience = "fishtank-forms"
)

// Claims carried by a form ticket. The registered ID is the instance id.
type Claims struct {
	Form        string `json:"form"`
	MountedAtMs int64  `json:"mounted_at_ms"`
	jwt.RegisteredClaims
}

// Verified is the parsed content of a valid ticket.
type Verified struct {
	InstanceID domain.InstanceID
	Form       models.FormName
	MountedAt  time.Time
	ExpiresAt  time.Time
}

type Service struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(signingKey string, ttl time.Duration, opts ...Option) *Service {
	s := &Service{signingKey: []byte(signingKey), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a ticket for sess.
func (s *Service) Issue(sess *models.Session) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Form:        sess.Form.String(),
		MountedAtMs: sess.MountedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.InstanceID.String(),
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign form ticket")
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry.
func (s *Service) Verify(raw string) (*Verified, error) {
	if raw == "" {
		return nil, dErrors.New(dErrors.CodeInvalidTicket, "missing form ticket")
	}

	claims := new(Claims)
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeInvalidTicket, "form ticket expired, reload the page")
		}
		return nil, dErrors.New(dErrors.CodeInvalidTicket, "invalid form ticket")
	}

	id, err := domain.ParseInstanceID(claims.ID)
	if err != nil || id.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidTicket, "invalid form ticket")
	}
	form, err := models.ParseFormName(claims.Form)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidTicket, "invalid form ticket")
	}

	return &Verified{
		InstanceID: id,
		Form:       form,
		MountedAt:  time.UnixMilli(claims.MountedAtMs),
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
