// Package actiontoken issues and verifies the signed links that let an
// attendee confirm, cancel or reschedule an appointment without logging in.
package actiontoken

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultIssuer = "voice-agent-scheduling"

// ErrInvalidToken covers every verification failure: bad signature, expiry,
// wrong issuer or malformed payload.
var ErrInvalidToken = errors.New("actiontoken: invalid token")

// Action is the operation a token grants.
type Action string

const (
	ActionConfirm    Action = "confirm"
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
	// ActionManage grants all three attendee actions.
	ActionManage Action = "manage"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionConfirm, ActionCancel, ActionReschedule, ActionManage:
		return true
	}
	return false
}

// Claims is the payload carried by an action token.
type Claims struct {
	AppointmentID string `json:"aid"`
	Email         string `json:"email"`
	Action        Action `json:"act"`
	jwt.RegisteredClaims
}

// Allows reports whether the token may be used for action.
func (c *Claims) Allows(action Action) bool {
	if c == nil {
		return false
	}
	return c.Action == ActionManage || c.Action == action
}

// Signer issues and verifies HS256 action tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewSigner builds a signer. A non-positive ttl defaults to seven days.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("actiontoken: secret is required")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: defaultIssuer,
		now:    time.Now,
	}, nil
}

// WithClock overrides the signer's time source.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue returns a signed token for appointmentID, bound to email and action.
func (s *Signer) Issue(appointmentID, email string, action Action) (string, error) {
	if strings.TrimSpace(appointmentID) == "" {
		return "", errors.New("actiontoken: appointment id is required")
	}
	if strings.TrimSpace(email) == "" {
		return "", errors.New("actiontoken: email is required")
	}
	if !action.Valid() {
		return "", fmt.Errorf("actiontoken: unknown action %q", action)
	}
	now := s.now()
	claims := Claims{
		AppointmentID: appointmentID,
		Email:         NormalizeEmail(email),
		Action:        action,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   appointmentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("actiontoken: sign: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the claims.
func (s *Signer) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	var claims Claims
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.AppointmentID == "" || claims.Email == "" || !claims.Action.Valid() {
		return nil, ErrInvalidToken
	}
	claims.Email = NormalizeEmail(claims.Email)
	return &claims, nil
}

// Links are the attendee-facing URLs embedded in notification emails.
type Links struct {
	Manage     string `json:"manage"`
	Confirm    string `json:"confirm"`
	Cancel     string `json:"cancel"`
	Reschedule string `json:"reschedule"`
}

// Links issues one token per action and builds page URLs under baseURL.
func (s *Signer) Links(baseURL, appointmentID, email string) (Links, error) {
	base := strings.TrimRight(baseURL, "/")
	build := func(action Action) (string, error) {
		tok, err := s.Issue(appointmentID, email, action)
		if err != nil {
			return "", err
		}
		u := fmt.Sprintf("%s/appointments/action/%s", base, url.PathEscape(tok))
		if action != ActionManage {
			u += "?action=" + string(action)
		}
		return u, nil
	}
	var links Links
	var err error
	if links.Manage, err = build(ActionManage); err != nil {
		return Links{}, err
	}
	if links.Confirm, err = build(ActionConfirm); err != nil {
		return Links{}, err
	}
	if links.Cancel, err = build(ActionCancel); err != nil {
		return Links{}, err
	}
	if links.Reschedule, err = build(ActionReschedule); err != nil {
		return Links{}, err
	}
	return links, nil
}

// NormalizeEmail lower-cases and trims an address for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
