package flows

import (
	"context"

	"github.com/campusmesh/campusauth/session"
)

// IdentityRecord is the flow-local view of a principal. The engine maps its
// provider's identity model into this shape so the flows stay free of root
// package types.
type IdentityRecord struct {
	ID           string
	Username     string
	Email        string
	Role         string
	PasswordHash string
	MFAEnabled   bool
	MFASecret    string
}

// LoginFailureKind classifies login failures for engine-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureIdentityNotFound
	LoginFailureBadPassword
	LoginFailureChallenge
	LoginFailureSession
	LoginFailureIssue
)

// LoginResult carries either the issued token pair, or the MFA-required
// intermediate state, or failure metadata. When MFARequired is set no
// credentials have been issued; the caller must complete the step-up.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	Identity     *IdentityRecord
	Session      *session.Record
	AccessToken  string
	RefreshToken string
	MFARequired  bool
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	FindByUsername func(context.Context, string) (*IdentityRecord, error)
	VerifyPassword func(plain, encoded string) (bool, error)
	BeginChallenge func(context.Context, string) error
	IssueTokens    TokenIssuer
	CreateSession  func(ctx context.Context, identityID, refreshValue, ip string) (*session.Record, error)
	ClientIP       func(context.Context) string
}

// TokenIssuer mints the access/refresh pair for a principal.
type TokenIssuer func(uid, role, email string) (access, refresh string, err error)

// RunLogin authenticates primary credentials. For MFA-enabled identities it
// registers a pending step-up challenge and returns without issuing tokens;
// otherwise it creates the session record and issues both tokens.
func RunLogin(ctx context.Context, username, plainPassword string, deps LoginDeps) LoginResult {
	id, err := deps.FindByUsername(ctx, username)
	if err != nil {
		return LoginResult{Failure: LoginFailureIdentityNotFound, Err: err}
	}

	ok, err := deps.VerifyPassword(plainPassword, id.PasswordHash)
	if err != nil || !ok {
		return LoginResult{Failure: LoginFailureBadPassword, Err: err, Identity: id}
	}

	if id.MFAEnabled {
		if err := deps.BeginChallenge(ctx, id.ID); err != nil {
			return LoginResult{Failure: LoginFailureChallenge, Err: err, Identity: id}
		}
		// Final credential issuance is deferred until the TOTP step-up
		// succeeds; only the identity id travels back to the client.
		return LoginResult{Identity: id, MFARequired: true}
	}

	return issueSession(ctx, id, deps)
}

// MFAStepUpDeps captures step-up verification dependencies. The challenge
// store enforces TTL and attempt budget; ValidateCode checks the TOTP code
// against the identity's enabled secret.
type MFAStepUpDeps struct {
	FindByID       func(context.Context, string) (*IdentityRecord, error)
	CheckChallenge func(context.Context, string) error
	FailChallenge  func(context.Context, string) error
	ClearChallenge func(context.Context, string) error
	ValidateCode   func(secret, code string) bool
	IssueTokens    TokenIssuer
	CreateSession  func(ctx context.Context, identityID, refreshValue, ip string) (*session.Record, error)
	ClientIP       func(context.Context) string
}

// StepUpFailureKind classifies step-up failures.
type StepUpFailureKind int

const (
	StepUpFailureNone StepUpFailureKind = iota
	StepUpFailureIdentityNotFound
	StepUpFailureNoChallenge
	StepUpFailureCodeInvalid
	StepUpFailureNotConfigured
	StepUpFailureSession
	StepUpFailureIssue
)

// StepUpResult mirrors LoginResult for the second phase.
type StepUpResult struct {
	Failure      StepUpFailureKind
	Err          error
	Identity     *IdentityRecord
	Session      *session.Record
	AccessToken  string
	RefreshToken string
}

// RunMFAStepUp completes a pending login challenge. On success it behaves
// exactly like a successful plain login: session record plus both tokens.
func RunMFAStepUp(ctx context.Context, identityID, code string, deps MFAStepUpDeps) StepUpResult {
	if err := deps.CheckChallenge(ctx, identityID); err != nil {
		return StepUpResult{Failure: StepUpFailureNoChallenge, Err: err}
	}

	id, err := deps.FindByID(ctx, identityID)
	if err != nil {
		return StepUpResult{Failure: StepUpFailureIdentityNotFound, Err: err}
	}
	if !id.MFAEnabled || id.MFASecret == "" {
		return StepUpResult{Failure: StepUpFailureNotConfigured, Identity: id}
	}

	if !deps.ValidateCode(id.MFASecret, code) {
		// The failed attempt is charged against the challenge budget; the
		// challenge itself stays pending until TTL or attempts run out.
		failErr := deps.FailChallenge(ctx, identityID)
		return StepUpResult{Failure: StepUpFailureCodeInvalid, Err: failErr, Identity: id}
	}

	if err := deps.ClearChallenge(ctx, identityID); err != nil {
		return StepUpResult{Failure: StepUpFailureNoChallenge, Err: err, Identity: id}
	}

	res := issueSession(ctx, id, LoginDeps{
		IssueTokens:   deps.IssueTokens,
		CreateSession: deps.CreateSession,
		ClientIP:      deps.ClientIP,
	})
	return StepUpResult{
		Failure:      stepUpFailureFromLogin(res.Failure),
		Err:          res.Err,
		Identity:     res.Identity,
		Session:      res.Session,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}
}

func issueSession(ctx context.Context, id *IdentityRecord, deps LoginDeps) LoginResult {
	access, refresh, err := deps.IssueTokens(id.ID, id.Role, id.Email)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, Identity: id}
	}

	ip := ""
	if deps.ClientIP != nil {
		ip = deps.ClientIP(ctx)
	}
	rec, err := deps.CreateSession(ctx, id.ID, refresh, ip)
	if err != nil {
		return LoginResult{Failure: LoginFailureSession, Err: err, Identity: id}
	}

	return LoginResult{
		Identity:     id,
		Session:      rec,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}

func stepUpFailureFromLogin(f LoginFailureKind) StepUpFailureKind {
	switch f {
	case LoginFailureNone:
		return StepUpFailureNone
	case LoginFailureSession:
		return StepUpFailureSession
	default:
		return StepUpFailureIssue
	}
}
