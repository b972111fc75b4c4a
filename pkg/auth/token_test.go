package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/supportdesk-backend/pkg/config"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "supportdesk",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID: userID,
		Role:   enums.RoleService,
		Name:   "Agent Smith",
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Role != enums.RoleService {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}

	exp := now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v (diff %v)", exp.UTC(), claims.ExpiresAt.UTC(), diff)
	}
}

func TestParsePrincipal(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: userID, Role: enums.RoleCustomer})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	p, err := ParsePrincipal(cfg, token)
	if err != nil {
		t.Fatalf("parse principal: %v", err)
	}
	if p.ID != userID || p.Role != enums.RoleCustomer {
		t.Fatalf("unexpected principal %+v", p)
	}
	if !p.Is(enums.RoleAdmin, enums.RoleCustomer) {
		t.Fatalf("expected Is to match customer")
	}
	if p.Is(enums.RoleService) {
		t.Fatalf("customer should not match service")
	}
}

func TestPrincipalFromClaimsAcceptsLegacyRole(t *testing.T) {
	p, err := PrincipalFromClaims(&AccessTokenClaims{UserID: uuid.New(), Role: "customer service"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Role != enums.RoleService {
		t.Fatalf("expected service role, got %s", p.Role)
	}
}

func TestPrincipalFromClaimsRejectsMissingSubject(t *testing.T) {
	_, err := PrincipalFromClaims(&AccessTokenClaims{Role: enums.RoleAdmin})
	if !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAdmin})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	if _, err := ParseAccessToken(cfg, token+"x"); err == nil {
		t.Fatal("expected invalid signature error")
	}
}

func TestParseAccessTokenWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAdmin})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	other := cfg
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, token)
	if !errors.Is(err, jwt.ErrTokenInvalidIssuer) {
		t.Fatalf("expected invalid issuer, got %v", err)
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpirationMinutes = 15
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleService})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	_, err = ParseAccessToken(cfg, token)
	if err == nil {
		t.Fatal("expected expiration error")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifierHonorsLeeway(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpirationMinutes = 1
	token, err := MintAccessToken(cfg, time.Now().Add(-70*time.Second), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAdmin})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	if _, err := NewVerifier(cfg).Principal(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expiry without leeway, got %v", err)
	}
	cfg.Leeway = 30 * time.Second
	if _, err := NewVerifier(cfg).Principal(token); err != nil {
		t.Fatalf("expected token inside leeway, got %v", err)
	}
}

func TestVerifierRejectsOtherAlgorithms(t *testing.T) {
	cfg := testJWTConfig()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := NewVerifier(cfg).Claims(token); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}
}

func TestVerifierRequiresExpiry(t *testing.T) {
	cfg := testJWTConfig()
	token, err := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		UserID:           uuid.New(),
		Role:             enums.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: cfg.Issuer},
	}).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := NewVerifier(cfg).Claims(token); !errors.Is(err, jwt.ErrTokenRequiredClaimMissing) {
		t.Fatalf("expected missing exp error, got %v", err)
	}
}

func TestMisconfiguredVerifierRejectsEverything(t *testing.T) {
	token, err := MintAccessToken(testJWTConfig(), time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAdmin})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := NewVerifier(config.JWTConfig{Issuer: "supportdesk"}).Claims(token); err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestMintAccessTokenInvalidRole(t *testing.T) {
	payload := AccessTokenPayload{UserID: uuid.New(), Role: ""}
	if _, err := MintAccessToken(testJWTConfig(), time.Now(), payload); err == nil {
		t.Fatal("expected invalid role error")
	}
}
