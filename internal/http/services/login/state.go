package login

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// StateAudience is the expected audience for login state tokens.
const StateAudience = "login-state"

// StateClaims round-trips through the OAuth 2.0 `state` parameter: which
// provider the flow started with and which pending session it belongs to.
type StateClaims struct {
	Provider  string `json:"provider"`
	SessionID string `json:"sid"`
}

// StateSigner signs and validates the OAuth 2.0 state parameter.
type StateSigner interface {
	SignState(claims StateClaims) (string, error)
	ParseState(token string) (*StateClaims, error)
}

var (
	ErrStateInvalid  = errors.New("invalid state token")
	ErrStateExpired  = errors.New("state token expired")
	ErrStateAudience = errors.New("state audience mismatch")
)

// HMACStateSigner signs state tokens with HS256 and a shared secret.
type HMACStateSigner struct {
	Secret []byte
	TTL    time.Duration
}

func NewHMACStateSigner(secret []byte, ttl time.Duration) *HMACStateSigner {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &HMACStateSigner{Secret: secret, TTL: ttl}
}

func (s *HMACStateSigner) SignState(claims StateClaims) (string, error) {
	now := time.Now().UTC()
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"aud":      StateAudience,
		"exp":      now.Add(s.TTL).Unix(),
		"iat":      now.Unix(),
		"provider": claims.Provider,
		"sid":      claims.SessionID,
	})
	signed, err := tk.SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

func (s *HMACStateSigner) ParseState(token string) (*StateClaims, error) {
	tk, err := jwtv5.Parse(token, func(*jwtv5.Token) (any, error) {
		return s.Secret, nil
	}, jwtv5.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrStateExpired
		}
		return nil, ErrStateInvalid
	}
	mapClaims, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrStateInvalid
	}
	if aud, _ := mapClaims["aud"].(string); aud != StateAudience {
		return nil, ErrStateAudience
	}
	claims := &StateClaims{}
	claims.Provider, _ = mapClaims["provider"].(string)
	claims.SessionID, _ = mapClaims["sid"].(string)
	return claims, nil
}
