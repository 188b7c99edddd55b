// Package totp wraps the time-based one-time-password primitives used by the
// step-up flow: secret provisioning (with a scannable image) and code
// verification within a bounded clock-skew window.
package totp

import (
	"bytes"
	"errors"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	period     = 30
	secretSize = 20
	imageSize  = 200
)

// Enrollment is the material handed to a user starting TOTP enrollment. The
// secret is stored server-side but the account's MFA flag stays off until the
// user proves they can produce a code from it.
type Enrollment struct {
	Secret string
	URI    string
	PNG    []byte
}

// Manager generates and verifies TOTP codes. Verification allows one period
// of skew on either side (±30s).
type Manager struct {
	issuer string
	now    func() time.Time
}

func NewManager(issuer string) *Manager {
	if strings.TrimSpace(issuer) == "" {
		issuer = "CampusAuth"
	}
	return &Manager{issuer: issuer, now: time.Now}
}

// GenerateSecret creates a fresh secret for the given account name and
// returns it with its otpauth provisioning URI and a PNG rendering of the
// provisioning code.
func (m *Manager) GenerateSecret(account string) (*Enrollment, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, errors.New("totp: account name required")
	}
	if strings.Contains(account, ":") || strings.Contains(m.issuer, ":") {
		return nil, errors.New("totp: account and issuer must not contain colons")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: account,
		Period:      period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  secretSize,
	})
	if err != nil {
		return nil, err
	}

	img, err := key.Image(imageSize, imageSize)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return &Enrollment{
		Secret: key.Secret(),
		URI:    key.URL(),
		PNG:    buf.Bytes(),
	}, nil
}

// Validate reports whether code is currently valid for the given base32
// secret. A malformed code is simply invalid, never an error.
func (m *Manager) Validate(secret, code string) bool {
	secret = strings.TrimSpace(secret)
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, m.now().UTC(), totp.ValidateOpts{
		Period:    period,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return ok
}
