package jwtutil

import (
	"testing"

	"esim-service/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidate(t *testing.T) {
	Initialize(&config.JWTConfig{SigningKey: "test-key", ExpirationHours: 1})

	token, err := GenerateTokenWithTenant("user-1", "ops@example.com", "tenant-a", "Tenant A", "operator")
	if err != nil {
		t.Fatalf("generate returned error: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if claims.Subject != "user-1" || claims.TenantID != "tenant-a" || claims.Role != "operator" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateRejectsWrongKey(t *testing.T) {
	Initialize(&config.JWTConfig{SigningKey: "key-one", ExpirationHours: 1})
	token, err := GenerateToken("user-1", "", "tenant-a", "admin")
	if err != nil {
		t.Fatalf("generate returned error: %v", err)
	}

	Initialize(&config.JWTConfig{SigningKey: "key-two", ExpirationHours: 1})
	if _, err := ValidateToken(token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	Initialize(&config.JWTConfig{SigningKey: "test-key", ExpirationHours: -1})
	token, err := GenerateToken("user-1", "", "tenant-a", "viewer")
	if err != nil {
		t.Fatalf("generate returned error: %v", err)
	}

	Initialize(&config.JWTConfig{SigningKey: "test-key", ExpirationHours: 1})
	if _, err := ValidateToken(token); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestValidateRejectsNoneAlgorithm(t *testing.T) {
	Initialize(&config.JWTConfig{SigningKey: "test-key", ExpirationHours: 1})
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &TenantClaims{TenantID: "tenant-a", Role: "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := ValidateToken(unsigned); err == nil {
		t.Fatalf("expected none algorithm to be rejected")
	}
}
