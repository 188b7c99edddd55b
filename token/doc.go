// Package token signs and verifies the two credential kinds used by the
// authentication core: short-lived stateless access tokens and long-lived
// refresh tokens. Each kind is signed with its own secret, so a refresh token
// replayed as an access token (or vice versa) fails signature verification
// rather than being accepted as structurally similar.
//
// Verification failures are classified ([FailureExpired], [FailureSignature],
// [FailureMalformed], [FailureUnknown]); the rotation procedure and the edge
// gate branch exclusively on that classification.
package token
