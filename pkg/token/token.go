// Package token decodes the access tokens issued by the ALM API and the
// locally fabricated demo tokens.
//
// Signatures are never verified here: the server is the only party that
// trusts a token. The client reads the expiry so it can drop a stale
// session early; it must never use the payload for authorization.
package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"

	"github.com/me/alm/pkg/model"
)

// DemoPrefix marks tokens fabricated by the client in demo mode.
const DemoPrefix = "demo_"

// ErrMalformed is matched by every DecodeError.
var ErrMalformed = errors.New("invalid token")

// DecodeError reports why a token could not be decoded.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid token: %s: %v", e.Reason, e.Err)
	}
	return "invalid token: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformed
}

// segmentParser only decodes segments; it never validates anything.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// both alphabets are accepted, padded or not
var toURLAlphabet = strings.NewReplacer("+", "-", "/", "_")

// Decode returns the claims of a header.payload.signature token.
func Decode(raw string) (jwt.MapClaims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, &DecodeError{Reason: fmt.Sprintf("expected 3 segments, got %d", len(parts))}
	}

	payload, err := segmentParser.DecodeSegment(toURLAlphabet.Replace(parts[1]))
	if err != nil {
		return nil, &DecodeError{Reason: "payload is not base64url", Err: err}
	}
	if !utf8.Valid(payload) {
		return nil, &DecodeError{Reason: "payload is not UTF-8"}
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, &DecodeError{Reason: "payload is not a JSON object", Err: err}
	}
	if claims == nil {
		return nil, &DecodeError{Reason: "payload is null"}
	}
	return claims, nil
}

// Expiry returns the exp claim of a signed token.
func Expiry(raw string) (time.Time, error) {
	claims, err := Decode(raw)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, &DecodeError{Reason: "exp is not numeric", Err: err}
	}
	if exp == nil {
		return time.Time{}, &DecodeError{Reason: "missing exp"}
	}
	return exp.Time, nil
}

// IsDemo reports whether raw is a locally fabricated demo token.
func IsDemo(raw string) bool {
	return strings.HasPrefix(raw, DemoPrefix)
}

// Valid reports whether a session holding raw is still authenticated at now.
// Demo tokens never expire. A signed token is valid while its exp is strictly
// after now. Anything that cannot be decoded is invalid.
func Valid(raw string, now time.Time) bool {
	if raw == "" {
		return false
	}
	if IsDemo(raw) {
		return true
	}
	exp, err := Expiry(raw)
	if err != nil {
		return false
	}
	return exp.After(now)
}

// DemoToken builds the demo token for u: the prefix followed by the
// standard base64 encoding of the user's JSON.
func DemoToken(u model.User) (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("marshal demo user: %w", err)
	}
	return DemoPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// DemoUser extracts the user embedded in a demo token.
func DemoUser(raw string) (*model.User, error) {
	if !IsDemo(raw) {
		return nil, &DecodeError{Reason: "not a demo token"}
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, DemoPrefix))
	if err != nil {
		return nil, &DecodeError{Reason: "demo payload is not base64", Err: err}
	}
	var u model.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, &DecodeError{Reason: "demo payload is not a user", Err: err}
	}
	return &u, nil
}
