// Package ticket encodes and decodes the verifiable payload carried by a ticket's QR code.
//
// A token is a compact HS256 JWS whose claims are, in this order, registration_id,
// registrant_id, event_id, quantity, issued_at and version. Decoding is strict: only
// the exact bytes the encoder would produce for the decoded payload are accepted.
package ticket

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Version is the payload schema version written by Encode.
const Version = "1.0"

var supportedVersions = map[string]bool{Version: true}

var (
	ErrMalformedPayload   = errors.New("malformed ticket payload")
	ErrSchemaMismatch     = errors.New("ticket payload is missing required fields")
	ErrUnsupportedVersion = errors.New("unsupported ticket payload version")
)

// Payload is the content proven by a ticket token.
type Payload struct {
	RegistrationID string
	RegistrantID   int64
	EventID        int64
	Quantity       int
	IssuedAt       time.Time
	Version        string
}

// NewPayload builds a current-version payload. IssuedAt is carried at second precision in UTC.
func NewPayload(registrationID string, registrantID, eventID int64, quantity int, issuedAt time.Time) Payload {
	return Payload{
		RegistrationID: registrationID,
		RegistrantID:   registrantID,
		EventID:        eventID,
		Quantity:       quantity,
		IssuedAt:       issuedAt.UTC().Truncate(time.Second),
		Version:        Version,
	}
}

// claims fixes the serialized field order.
type claims struct {
	RegistrationID string `json:"registration_id"`
	RegistrantID   int64  `json:"registrant_id"`
	EventID        int64  `json:"event_id"`
	Quantity       int    `json:"quantity"`
	IssuedAt       string `json:"issued_at"`
	Version        string `json:"version"`
	jwt.RegisteredClaims
}

// Codec is safe for concurrent use.
type Codec struct {
	key    []byte
	parser *jwt.Parser
}

func NewCodec(signingKey []byte) *Codec {
	return &Codec{
		key: signingKey,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
		),
	}
}

// Encode returns the canonical token for p. Equal payloads always produce identical tokens.
func (c *Codec) Encode(p Payload) (string, error) {
	if !supportedVersions[p.Version] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, p.Version)
	}
	if err := checkRequired(p); err != nil {
		return "", err
	}

	cl := claims{
		RegistrationID: p.RegistrationID,
		RegistrantID:   p.RegistrantID,
		EventID:        p.EventID,
		Quantity:       p.Quantity,
		IssuedAt:       p.IssuedAt.UTC().Format(time.RFC3339),
		Version:        p.Version,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign ticket: %w", err)
	}
	return token, nil
}

// Decode verifies and parses a token. It does not judge whether the ticket is still usable.
func (c *Codec) Decode(token string) (Payload, error) {
	var cl claims
	parsed, err := c.parser.ParseWithClaims(token, &cl, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !parsed.Valid {
		return Payload{}, ErrMalformedPayload
	}

	if !supportedVersions[cl.Version] {
		return Payload{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, cl.Version)
	}

	issuedAt, err := time.Parse(time.RFC3339, cl.IssuedAt)
	if err != nil && cl.IssuedAt != "" {
		return Payload{}, fmt.Errorf("%w: issued_at: %v", ErrMalformedPayload, err)
	}

	p := Payload{
		RegistrationID: cl.RegistrationID,
		RegistrantID:   cl.RegistrantID,
		EventID:        cl.EventID,
		Quantity:       cl.Quantity,
		IssuedAt:       issuedAt,
		Version:        cl.Version,
	}
	if err := checkRequired(p); err != nil {
		return Payload{}, err
	}

	canonical, err := c.Encode(p)
	if err != nil {
		return Payload{}, err
	}
	if canonical != token {
		return Payload{}, fmt.Errorf("%w: not in canonical form", ErrMalformedPayload)
	}
	return p, nil
}

func checkRequired(p Payload) error {
	switch {
	case p.RegistrationID == "":
		return fmt.Errorf("%w: registration_id", ErrSchemaMismatch)
	case p.RegistrantID <= 0:
		return fmt.Errorf("%w: registrant_id", ErrSchemaMismatch)
	case p.EventID <= 0:
		return fmt.Errorf("%w: event_id", ErrSchemaMismatch)
	case p.Quantity <= 0:
		return fmt.Errorf("%w: quantity", ErrSchemaMismatch)
	case p.IssuedAt.IsZero():
		return fmt.Errorf("%w: issued_at", ErrSchemaMismatch)
	}
	return nil
}
