package campusauth

import (
	"context"
	"time"
)

// Credential cookie names shared by the edge gate and the HTTP handlers.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// Role is the fixed enumeration of principal roles. Values match the
// capability table in the permission package and the role claim carried in
// tokens.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleStaff         Role = "staff"
	RoleTeacher       Role = "teacher"
	RoleStudent       Role = "student"
	RoleParent        Role = "parent"
	RoleUser          Role = "user"
	RoleGuest         Role = "guest"
)

// Identity is the provider-owned view of a principal. The core reads it and
// updates only its MFA fields; everything else belongs to the persistence
// layer.
type Identity struct {
	ID           string
	Username     string
	Email        string
	Role         Role
	PasswordHash string
	MFAEnabled   bool
	// MFASecret is present while enrollment is pending or MFA is enabled.
	MFASecret string
}

// SafeIdentity is the projection returned to clients. It never carries the
// password hash or the TOTP secret.
type SafeIdentity struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	MFAEnabled bool   `json:"mfaEnabled"`
}

// Safe returns the client-facing projection of the identity.
func (i *Identity) Safe() SafeIdentity {
	return SafeIdentity{
		ID:         i.ID,
		Username:   i.Username,
		Email:      i.Email,
		Role:       i.Role,
		MFAEnabled: i.MFAEnabled,
	}
}

// IdentityProvider is the external collaborator that owns identity records.
// Lookups return [ErrIdentityNotFound] (possibly wrapped) for missing
// principals.
type IdentityProvider interface {
	FindByID(ctx context.Context, id string) (*Identity, error)
	FindByUsername(ctx context.Context, username string) (*Identity, error)

	// SetMFASecret stores a pending enrollment secret without enabling MFA.
	SetMFASecret(ctx context.Context, id, secret string) error
	// EnableMFA flips the MFA flag after enrollment is confirmed.
	EnableMFA(ctx context.Context, id string) error
	// ClearMFA removes both the flag and the secret.
	ClearMFA(ctx context.Context, id string) error
}

// LoginResult is returned by Login and CompleteMFALogin. When MFARequired is
// set, no tokens have been issued and IdentityID is the only identity
// information exposed; the client must complete the TOTP step-up.
type LoginResult struct {
	Identity     SafeIdentity
	AccessToken  string
	RefreshToken string
	MFARequired  bool
	IdentityID   string
}

// AuthResult is the outcome of a successful Authenticate call. When Rotated
// is set, AccessToken carries the replacement credential the response must
// deliver to the client.
type AuthResult struct {
	IdentityID  string
	Role        Role
	Email       string
	AccessToken string
	Rotated     bool
}

// TOTPEnrollment is handed to a user starting two-factor enrollment.
type TOTPEnrollment struct {
	Secret string
	URI    string
	PNG    []byte
}

// SessionInfo is the client-facing view of a session record; the refresh
// hash stays server-side.
type SessionInfo struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
