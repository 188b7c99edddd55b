// Package middleware exposes the HTTP edge gate built on top of
// campusauth.Engine verification.
//
// The gate classifies every request path into public, auth-entry, admin, or
// protected, verifies the access token cookie where required, and either
// forwards the request with the principal injected into its context or
// redirects/rejects it. Verification here is purely stateless; expired
// tokens are not rotated at the edge. Rotation happens only at the
// dedicated refresh endpoint.
//
// # Cookie purging
//
// On a denied request the gate clears both auth cookies, with one deliberate
// exception: an expired access token. Expiry is the routine end of an access
// token's life and the refresh cookie is exactly the credential that revives
// it, so purging on expiry would cut off the refresh endpoint and force a
// full re-login every access TTL. Only credentials that can never verify
// again (tampered, malformed) are purged. The same purge applies when such a
// credential shows up on an auth-entry page like the login form, so a client
// holding broken cookies starts clean.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Touch the session store.
//   - Make authorization decisions beyond the role-based admin prefix gate.
package middleware
