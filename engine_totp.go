package campusauth

import (
	"context"
	"fmt"

	"github.com/campusmesh/campusauth/internal/flows"
)

// BeginTOTPEnrollment generates a fresh secret for the identity and stores
// it as pending. The MFA flag stays off until ConfirmTOTPEnrollment proves
// the user's authenticator produces matching codes. Repeating the call
// replaces the pending secret.
func (e *Engine) BeginTOTPEnrollment(ctx context.Context, identityID string) (*TOTPEnrollment, error) {
	res := flows.RunBeginEnrollment(ctx, identityID, e.totpDeps())

	switch res.Failure {
	case flows.EnrollmentFailureNone:
	case flows.EnrollmentFailureIdentityNotFound:
		return nil, ErrIdentityNotFound
	case flows.EnrollmentFailureAlreadyEnabled:
		return nil, ErrMFAAlreadyEnabled
	default:
		return nil, fmt.Errorf("totp enrollment: %w", res.Err)
	}

	e.emit(ctx, EventTOTPEnrollBegin, identityID, "", true, nil, nil)
	return &TOTPEnrollment{
		Secret: res.Material.Secret,
		URI:    res.Material.URI,
		PNG:    res.Material.PNG,
	}, nil
}

// ConfirmTOTPEnrollment validates a code against the pending secret and
// enables MFA. A wrong code leaves the pending secret intact so the user
// can retry against the same provisioning QR.
func (e *Engine) ConfirmTOTPEnrollment(ctx context.Context, identityID, code string) error {
	res := flows.RunConfirmEnrollment(ctx, identityID, code, e.totpDeps())

	switch res.Failure {
	case flows.EnrollmentFailureNone:
	case flows.EnrollmentFailureIdentityNotFound:
		return ErrIdentityNotFound
	case flows.EnrollmentFailureAlreadyEnabled:
		return ErrMFAAlreadyEnabled
	case flows.EnrollmentFailureNotPending:
		return ErrMFANotConfigured
	case flows.EnrollmentFailureCodeInvalid:
		e.emit(ctx, EventTOTPEnabled, identityID, "", false, ErrMFACodeInvalid, nil)
		return ErrMFACodeInvalid
	default:
		return fmt.Errorf("totp confirm: %w", res.Err)
	}

	e.emit(ctx, EventTOTPEnabled, identityID, "", true, nil, nil)
	return nil
}

// DisableTOTP clears the identity's MFA flag and secret. Callers must gate
// it behind a fully authenticated request.
func (e *Engine) DisableTOTP(ctx context.Context, identityID string) error {
	res := flows.RunDisableTOTP(ctx, identityID, e.totpDeps())

	switch res.Failure {
	case flows.EnrollmentFailureNone:
	case flows.EnrollmentFailureIdentityNotFound:
		return ErrIdentityNotFound
	default:
		return fmt.Errorf("totp disable: %w", res.Err)
	}

	e.emit(ctx, EventTOTPDisabled, identityID, "", true, nil, nil)
	return nil
}

func (e *Engine) totpDeps() flows.TOTPDeps {
	return flows.TOTPDeps{
		FindByID: func(ctx context.Context, id string) (*flows.IdentityRecord, error) {
			return e.findFlowIdentity(ctx, func(ctx context.Context) (*Identity, error) {
				return e.identities.FindByID(ctx, id)
			})
		},
		GenerateSecret: func(account string) (*flows.EnrollmentMaterial, error) {
			enr, err := e.totp.GenerateSecret(account)
			if err != nil {
				return nil, err
			}
			return &flows.EnrollmentMaterial{Secret: enr.Secret, URI: enr.URI, PNG: enr.PNG}, nil
		},
		ValidateCode: e.totp.Validate,
		StoreSecret:  e.identities.SetMFASecret,
		EnableMFA:    e.identities.EnableMFA,
		ClearMFA:     e.identities.ClearMFA,
	}
}
