package campusauth

import "errors"

var (
	// ErrNoCredential is returned when a request carries no access token at all.
	ErrNoCredential = errors.New("no credential presented")
	// ErrTokenExpired is returned when an access token is correctly signed but past expiry
	// and could not be recovered via rotation.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenSignatureInvalid covers tampered tokens, wrong-key signatures and cross-kind replays.
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenMalformed is returned for values that do not decode as tokens.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrSessionNotFound is returned when no live session record backs a refresh credential.
	ErrSessionNotFound = errors.New("session not found")
	// ErrIdentityNotFound is returned when the identity provider has no matching principal.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrInvalidCredentials is returned for a failed first-factor login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMFARequired signals that primary authentication succeeded but token
	// issuance is deferred until the TOTP step-up completes.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFACodeInvalid is returned for a wrong or out-of-window TOTP code.
	ErrMFACodeInvalid = errors.New("invalid mfa code")
	// ErrMFANotConfigured is returned when step-up or enrollment confirmation
	// runs against an identity without the expected MFA state.
	ErrMFANotConfigured = errors.New("mfa not configured")
	// ErrMFAAlreadyEnabled is returned when enrollment starts for an identity
	// that already has MFA on.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFAChallengeExpired is returned when no pending step-up challenge
	// exists for the identity (expired, consumed, or never started).
	ErrMFAChallengeExpired = errors.New("mfa challenge expired")
	// ErrMFAAttemptsExceeded is returned when the step-up attempt budget ran out.
	ErrMFAAttemptsExceeded = errors.New("mfa challenge attempts exceeded")
	// ErrForbidden is returned by the role gate.
	ErrForbidden = errors.New("forbidden")
)
