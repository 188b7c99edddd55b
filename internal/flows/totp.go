package flows

import "context"

// EnrollmentMaterial is what the user needs to add the secret to an
// authenticator app.
type EnrollmentMaterial struct {
	Secret string
	URI    string
	PNG    []byte
}

// EnrollmentFailureKind classifies TOTP enrollment failures.
type EnrollmentFailureKind int

const (
	EnrollmentFailureNone EnrollmentFailureKind = iota
	EnrollmentFailureIdentityNotFound
	EnrollmentFailureGenerate
	EnrollmentFailureStore
	EnrollmentFailureNotPending
	EnrollmentFailureCodeInvalid
	EnrollmentFailureAlreadyEnabled
)

// EnrollmentResult carries the material on success or failure metadata.
type EnrollmentResult struct {
	Failure  EnrollmentFailureKind
	Err      error
	Identity *IdentityRecord
	Material *EnrollmentMaterial
}

// TOTPDeps captures TOTP enrollment/disable dependencies.
type TOTPDeps struct {
	FindByID       func(context.Context, string) (*IdentityRecord, error)
	GenerateSecret func(account string) (*EnrollmentMaterial, error)
	ValidateCode   func(secret, code string) bool
	StoreSecret    func(ctx context.Context, identityID, secret string) error
	EnableMFA      func(context.Context, string) error
	ClearMFA       func(context.Context, string) error
}

// RunBeginEnrollment generates and stores a fresh secret without flipping the
// MFA-enabled flag; enrollment is two-phase and the flag only flips once the
// user proves a code.
func RunBeginEnrollment(ctx context.Context, identityID string, deps TOTPDeps) EnrollmentResult {
	id, err := deps.FindByID(ctx, identityID)
	if err != nil {
		return EnrollmentResult{Failure: EnrollmentFailureIdentityNotFound, Err: err}
	}
	if id.MFAEnabled {
		return EnrollmentResult{Failure: EnrollmentFailureAlreadyEnabled, Identity: id}
	}

	material, err := deps.GenerateSecret(id.Username)
	if err != nil {
		return EnrollmentResult{Failure: EnrollmentFailureGenerate, Err: err, Identity: id}
	}
	if err := deps.StoreSecret(ctx, id.ID, material.Secret); err != nil {
		return EnrollmentResult{Failure: EnrollmentFailureStore, Err: err, Identity: id}
	}

	return EnrollmentResult{Identity: id, Material: material}
}

// RunConfirmEnrollment verifies a code against the pending secret and flips
// the MFA-enabled flag. A wrong code leaves the pending secret in place so
// the user may retry against the same provisioning.
func RunConfirmEnrollment(ctx context.Context, identityID, code string, deps TOTPDeps) EnrollmentResult {
	id, err := deps.FindByID(ctx, identityID)
	if err != nil {
		return EnrollmentResult{Failure: EnrollmentFailureIdentityNotFound, Err: err}
	}
	if id.MFAEnabled {
		return EnrollmentResult{Failure: EnrollmentFailureAlreadyEnabled, Identity: id}
	}
	if id.MFASecret == "" {
		return EnrollmentResult{Failure: EnrollmentFailureNotPending, Identity: id}
	}

	if !deps.ValidateCode(id.MFASecret, code) {
		return EnrollmentResult{Failure: EnrollmentFailureCodeInvalid, Identity: id}
	}

	if err := deps.EnableMFA(ctx, id.ID); err != nil {
		return EnrollmentResult{Failure: EnrollmentFailureStore, Err: err, Identity: id}
	}
	return EnrollmentResult{Identity: id}
}

// RunDisableTOTP clears both the flag and the secret. Callers gate this
// behind an authenticated session.
func RunDisableTOTP(ctx context.Context, identityID string, deps TOTPDeps) EnrollmentResult {
	id, err := deps.FindByID(ctx, identityID)
	if err != nil {
		return EnrollmentResult{Failure: EnrollmentFailureIdentityNotFound, Err: err}
	}
	if err := deps.ClearMFA(ctx, id.ID); err != nil {
		return EnrollmentResult{Failure: EnrollmentFailureStore, Err: err, Identity: id}
	}
	return EnrollmentResult{Identity: id}
}
