package campusauth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/campusmesh/campusauth/internal/flows"
	"github.com/campusmesh/campusauth/internal/stores"
	"github.com/campusmesh/campusauth/session"
)

// Login authenticates primary credentials. For identities without MFA it
// creates a session record and returns both tokens. For MFA-enabled
// identities it registers a short-lived step-up challenge and returns
// MFARequired with no tokens; the client must follow up with
// CompleteMFALogin.
//
// Identity-not-found and wrong-password both surface as
// ErrInvalidCredentials so a caller cannot probe for usernames.
func (e *Engine) Login(ctx context.Context, username, plainPassword string) (*LoginResult, error) {
	res := flows.RunLogin(ctx, username, plainPassword, flows.LoginDeps{
		FindByUsername: func(ctx context.Context, name string) (*flows.IdentityRecord, error) {
			return e.findFlowIdentity(ctx, func(ctx context.Context) (*Identity, error) {
				return e.identities.FindByUsername(ctx, name)
			})
		},
		VerifyPassword: e.hasher.Verify,
		BeginChallenge: e.challenges.Begin,
		IssueTokens:    e.issuePair,
		CreateSession:  e.sessions.Create,
		ClientIP:       clientIPFromContext,
	})

	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureIdentityNotFound, flows.LoginFailureBadPassword:
		e.metrics.login("invalid_credentials")
		e.emit(ctx, EventLogin, loginIdentityID(res.Identity), "", false, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	default:
		e.metrics.login("error")
		e.emit(ctx, EventLogin, loginIdentityID(res.Identity), "", false, res.Err, nil)
		e.logger.Error("login failed", zap.String("username", username), zap.Error(res.Err))
		return nil, fmt.Errorf("login: %w", res.Err)
	}

	if res.MFARequired {
		e.metrics.login("mfa_required")
		e.emit(ctx, EventMFARequired, res.Identity.ID, "", true, nil, nil)
		return &LoginResult{MFARequired: true, IdentityID: res.Identity.ID}, nil
	}

	e.metrics.login("success")
	e.emit(ctx, EventLogin, res.Identity.ID, sessionID(res.Session), true, nil, nil)
	return &LoginResult{
		Identity:     safeFromFlow(res.Identity),
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}, nil
}

// CompleteMFALogin finishes a pending step-up challenge. On a correct code
// it behaves exactly like a successful Login; on a wrong code the attempt is
// charged against the challenge budget and ErrMFACodeInvalid (or
// ErrMFAAttemptsExceeded once the budget runs out) is returned.
func (e *Engine) CompleteMFALogin(ctx context.Context, identityID, code string) (*LoginResult, error) {
	res := flows.RunMFAStepUp(ctx, identityID, code, flows.MFAStepUpDeps{
		FindByID: func(ctx context.Context, id string) (*flows.IdentityRecord, error) {
			return e.findFlowIdentity(ctx, func(ctx context.Context) (*Identity, error) {
				return e.identities.FindByID(ctx, id)
			})
		},
		CheckChallenge: e.challenges.Check,
		FailChallenge:  e.challenges.Fail,
		ClearChallenge: e.challenges.Clear,
		ValidateCode:   e.totp.Validate,
		IssueTokens:    e.issuePair,
		CreateSession:  e.sessions.Create,
		ClientIP:       clientIPFromContext,
	})

	switch res.Failure {
	case flows.StepUpFailureNone:
	case flows.StepUpFailureNoChallenge:
		e.metrics.mfaStep("no_challenge")
		e.emit(ctx, EventMFAStepUp, identityID, "", false, ErrMFAChallengeExpired, nil)
		return nil, ErrMFAChallengeExpired
	case flows.StepUpFailureIdentityNotFound:
		e.metrics.mfaStep("identity_not_found")
		e.emit(ctx, EventMFAStepUp, identityID, "", false, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	case flows.StepUpFailureNotConfigured:
		e.metrics.mfaStep("not_configured")
		return nil, ErrMFANotConfigured
	case flows.StepUpFailureCodeInvalid:
		if errors.Is(res.Err, stores.ErrChallengeAttemptsExceeded) {
			e.metrics.mfaStep("attempts_exceeded")
			e.emit(ctx, EventMFAStepUp, identityID, "", false, ErrMFAAttemptsExceeded, nil)
			return nil, ErrMFAAttemptsExceeded
		}
		e.metrics.mfaStep("code_invalid")
		e.emit(ctx, EventMFAStepUp, identityID, "", false, ErrMFACodeInvalid, nil)
		return nil, ErrMFACodeInvalid
	default:
		e.metrics.mfaStep("error")
		e.logger.Error("mfa step-up failed", zap.String("identity", identityID), zap.Error(res.Err))
		return nil, fmt.Errorf("mfa step-up: %w", res.Err)
	}

	e.metrics.mfaStep("success")
	e.emit(ctx, EventMFAStepUp, res.Identity.ID, sessionID(res.Session), true, nil, nil)
	return &LoginResult{
		Identity:     safeFromFlow(res.Identity),
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}, nil
}

func loginIdentityID(id *flows.IdentityRecord) string {
	if id == nil {
		return ""
	}
	return id.ID
}

func sessionID(rec *session.Record) string {
	if rec == nil {
		return ""
	}
	return rec.ID
}
