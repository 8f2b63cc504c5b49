package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/volna-retail/loyalty-backend/pkg/config"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
)

func testConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "loyalty-backend",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testConfig()
	now := time.Now().UTC()
	subjectID := uuid.New()
	storeID := uuid.New()

	payload := AccessTokenPayload{
		SubjectID: subjectID,
		Role:      enums.OperatorTypeStaff,
		StoreID:   &storeID,
	}

	token, err := MintAccessToken(cfg, now, payload)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if claims.SubjectID != subjectID {
		t.Fatalf("expected subject_id %s, got %s", subjectID, claims.SubjectID)
	}
	if claims.Role != enums.OperatorTypeStaff {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.StoreID == nil || *claims.StoreID != storeID {
		t.Fatalf("store id not preserved")
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatalf("expected generated jti")
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	cfg := testConfig()
	token, err := MintAccessToken(cfg, time.Now().UTC(), AccessTokenPayload{
		SubjectID: uuid.New(),
		Role:      enums.OperatorTypeMember,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	other := cfg
	other.Secret = "different"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatalf("expected signature validation failure")
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := testConfig()
	token, err := MintAccessToken(cfg, time.Now().UTC().Add(-2*time.Hour), AccessTokenPayload{
		SubjectID: uuid.New(),
		Role:      enums.OperatorTypeAdmin,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatalf("expected expiry validation failure")
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	cfg := testConfig()

	if _, err := MintAccessToken(cfg, time.Now().UTC(), AccessTokenPayload{Role: enums.OperatorTypeMember}); err == nil {
		t.Fatalf("expected missing subject id failure")
	}
	if _, err := MintAccessToken(cfg, time.Now().UTC(), AccessTokenPayload{SubjectID: uuid.New(), Role: "CLERK"}); err == nil {
		t.Fatalf("expected invalid role failure")
	}
}
