// Package flows contains the pure decision procedures of the authentication
// core: refresh rotation, login with MFA step-up, TOTP enrollment, and
// logout. Each procedure takes an explicit Deps struct of functions and
// returns a result carrying a failure-kind enum, so the engine package maps
// outcomes to its public error taxonomy and the procedures stay trivially
// testable without any real store.
package flows
