package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpIssuer is shown by authenticator apps next to the account name.
const totpIssuer = "CloudBSD Admin"

// TOTPKey is a freshly generated TOTP enrolment.
type TOTPKey struct {
	Secret string
	URL    string
}

// GenerateTOTP creates a new TOTP secret for accountName.
func GenerateTOTP(accountName string) (TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: accountName,
		Algorithm:   otp.AlgorithmSHA1,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return TOTPKey{}, fmt.Errorf("security: generate totp: %w", err)
	}
	return TOTPKey{Secret: key.Secret(), URL: key.URL()}, nil
}

// ValidateTOTP checks code against secret at t, allowing one step of skew.
func ValidateTOTP(secret, code string, t time.Time) bool {
	secret = strings.TrimSpace(secret)
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t.UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// TOTPCode returns the current code for secret. Used by tests and tooling.
func TOTPCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCode(secret, t.UTC())
}
