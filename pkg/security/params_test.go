package security_test

import (
	"errors"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/security"
)

type emailParams struct {
	Email string `json:"email"`
}

func TestParamsCipherRoundTrip(t *testing.T) {
	cipher, err := security.NewParamsCipher("params-secret")
	if err != nil {
		t.Fatalf("NewParamsCipher: %v", err)
	}
	data, err := cipher.Encrypt(emailParams{Email: "ann@example.com"})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	var out emailParams
	if err := cipher.Decrypt(data, &out); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if out.Email != "ann@example.com" {
		t.Fatalf("unexpected email %q", out.Email)
	}
}

func TestParamsCipherRejectsForeignKey(t *testing.T) {
	a, _ := security.NewParamsCipher("secret-a")
	b, _ := security.NewParamsCipher("secret-b")

	data, err := a.Encrypt(emailParams{Email: "ann@example.com"})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	var out emailParams
	if err := b.Decrypt(data, &out); !errors.Is(err, security.ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if err := a.Decrypt("%%%not-base64", &out); !errors.Is(err, security.ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for garbage, got %v", err)
	}
}

func TestNewParamsCipherRequiresSecret(t *testing.T) {
	if _, err := security.NewParamsCipher("  "); err == nil {
		t.Fatal("expected error for blank secret")
	}
}
