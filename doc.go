// Package campusauth is the authentication core of the institute management
// platform: credential issuance and verification, server-tracked refresh
// sessions with one-shot rotation, TOTP step-up for accounts with
// multi-factor enabled, and the per-request edge gate that enforces
// public/protected/role-scoped routing.
//
// # Architecture boundaries
//
// campusauth is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy, and value types (Identity, LoginResult, SessionInfo).
// Decision procedures live under internal/flows and are orchestrated by
// Engine methods; persistence adapters live in the session subpackage; the
// HTTP edge lives in middleware and httpapi.
//
// # Trust model
//
// Access tokens are stateless: signature plus expiry decide everything and no
// store is consulted (the request hot path). Refresh tokens carry a second
// requirement: a live session record must match the token's value, so logout
// and revocation take effect immediately regardless of the token's own
// expiry claim. A corrupted access token is terminal: it never escalates
// into a refresh attempt.
package campusauth
