package auth

import (
	"fmt"

	"github.com/angelmondragon/supportdesk-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks HS256 access tokens against one issuer and secret.
// Build it once and share it; it holds no per-request state.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
	err    error
}

// NewVerifier prepares a verifier for cfg. A misconfigured verifier rejects
// every token with the configuration error.
func NewVerifier(cfg config.JWTConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
		err:    checkConfig(cfg),
	}
}

func (v *Verifier) key(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return v.secret, nil
}

// Claims validates raw and returns its typed claims.
func (v *Verifier) Claims(raw string) (*AccessTokenClaims, error) {
	if v.err != nil {
		return nil, v.err
	}
	claims := &AccessTokenClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, v.key); err != nil {
		return nil, err
	}
	return claims, nil
}

// Principal validates raw and resolves the caller it names.
func (v *Verifier) Principal(raw string) (Principal, error) {
	claims, err := v.Claims(raw)
	if err != nil {
		return Principal{}, err
	}
	return PrincipalFromClaims(claims)
}

// ParseAccessToken is a one-shot Claims call for tooling.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	return NewVerifier(cfg).Claims(raw)
}

// ParsePrincipal is a one-shot Principal call for tooling.
func ParsePrincipal(cfg config.JWTConfig, raw string) (Principal, error) {
	return NewVerifier(cfg).Principal(raw)
}
