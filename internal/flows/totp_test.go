package flows

import (
	"context"
	"errors"
	"testing"
)

type totpHarness struct {
	identity *IdentityRecord
	findErr  error

	storedSecret string
	enabled      int
	cleared      int
	codeValid    bool
}

func (h *totpHarness) deps() TOTPDeps {
	return TOTPDeps{
		FindByID: func(context.Context, string) (*IdentityRecord, error) {
			if h.findErr != nil {
				return nil, h.findErr
			}
			return h.identity, nil
		},
		GenerateSecret: func(account string) (*EnrollmentMaterial, error) {
			return &EnrollmentMaterial{
				Secret: "FRESHSECRET",
				URI:    "otpauth://totp/Institute:" + account,
				PNG:    []byte{0x89},
			}, nil
		},
		ValidateCode: func(secret, code string) bool { return h.codeValid },
		StoreSecret: func(_ context.Context, _, secret string) error {
			h.storedSecret = secret
			return nil
		},
		EnableMFA: func(context.Context, string) error { h.enabled++; return nil },
		ClearMFA:  func(context.Context, string) error { h.cleared++; return nil },
	}
}

func TestBeginEnrollmentStoresSecretWithoutEnabling(t *testing.T) {
	h := &totpHarness{identity: plainIdentity()}
	res := RunBeginEnrollment(context.Background(), "u-1", h.deps())

	if res.Failure != EnrollmentFailureNone {
		t.Fatalf("unexpected failure %v", res.Failure)
	}
	if res.Material == nil || res.Material.Secret != "FRESHSECRET" || res.Material.URI == "" {
		t.Fatalf("expected enrollment material, got %+v", res.Material)
	}
	if h.storedSecret != "FRESHSECRET" {
		t.Fatal("secret must be stored")
	}
	if h.enabled != 0 {
		t.Fatal("enrollment must not flip the MFA flag")
	}
}

func TestBeginEnrollmentRejectsAlreadyEnabled(t *testing.T) {
	h := &totpHarness{identity: mfaIdentity()}
	res := RunBeginEnrollment(context.Background(), "u-1", h.deps())
	if res.Failure != EnrollmentFailureAlreadyEnabled {
		t.Fatalf("expected EnrollmentFailureAlreadyEnabled, got %v", res.Failure)
	}
}

func TestConfirmEnrollmentFlipsFlag(t *testing.T) {
	id := plainIdentity()
	id.MFASecret = "PENDINGSECRET"
	h := &totpHarness{identity: id, codeValid: true}

	res := RunConfirmEnrollment(context.Background(), "u-1", "123456", h.deps())
	if res.Failure != EnrollmentFailureNone {
		t.Fatalf("unexpected failure %v", res.Failure)
	}
	if h.enabled != 1 {
		t.Fatalf("expected MFA enabled once, got %d", h.enabled)
	}
}

func TestConfirmEnrollmentWrongCodeKeepsSecret(t *testing.T) {
	id := plainIdentity()
	id.MFASecret = "PENDINGSECRET"
	h := &totpHarness{identity: id, codeValid: false}

	res := RunConfirmEnrollment(context.Background(), "u-1", "000000", h.deps())
	if res.Failure != EnrollmentFailureCodeInvalid {
		t.Fatalf("expected EnrollmentFailureCodeInvalid, got %v", res.Failure)
	}
	if h.enabled != 0 {
		t.Fatal("flag must stay off after a wrong code")
	}
	if h.cleared != 0 {
		t.Fatal("pending secret must be retained for retry")
	}
}

func TestConfirmEnrollmentWithoutPendingSecret(t *testing.T) {
	h := &totpHarness{identity: plainIdentity(), codeValid: true}
	res := RunConfirmEnrollment(context.Background(), "u-1", "123456", h.deps())
	if res.Failure != EnrollmentFailureNotPending {
		t.Fatalf("expected EnrollmentFailureNotPending, got %v", res.Failure)
	}
}

func TestDisableClearsState(t *testing.T) {
	h := &totpHarness{identity: mfaIdentity()}
	res := RunDisableTOTP(context.Background(), "u-1", h.deps())
	if res.Failure != EnrollmentFailureNone {
		t.Fatalf("unexpected failure %v", res.Failure)
	}
	if h.cleared != 1 {
		t.Fatalf("expected one clear, got %d", h.cleared)
	}
}

func TestEnrollmentUnknownIdentity(t *testing.T) {
	h := &totpHarness{findErr: errors.New("not found")}
	if res := RunBeginEnrollment(context.Background(), "u-x", h.deps()); res.Failure != EnrollmentFailureIdentityNotFound {
		t.Fatalf("begin: expected identity-not-found, got %v", res.Failure)
	}
	if res := RunConfirmEnrollment(context.Background(), "u-x", "123456", h.deps()); res.Failure != EnrollmentFailureIdentityNotFound {
		t.Fatalf("confirm: expected identity-not-found, got %v", res.Failure)
	}
	if res := RunDisableTOTP(context.Background(), "u-x", h.deps()); res.Failure != EnrollmentFailureIdentityNotFound {
		t.Fatalf("disable: expected identity-not-found, got %v", res.Failure)
	}
}
