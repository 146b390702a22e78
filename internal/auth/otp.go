package auth

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

const defaultOTPPeriod = 480

// otpGenerator issues and checks time based passcodes for account activation.
type otpGenerator struct {
	issuer string
	period uint
}

func newOTPGenerator(cfg config.OTPConfig) otpGenerator {
	period := cfg.PeriodSeconds
	if period == 0 {
		period = defaultOTPPeriod
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "storefront"
	}
	return otpGenerator{issuer: issuer, period: period}
}

func (g otpGenerator) Period() time.Duration {
	return time.Duration(g.period) * time.Second
}

func (g otpGenerator) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    g.period,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// NewSecret creates a per-user base32 secret.
func (g otpGenerator) NewSecret(email string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      g.issuer,
		AccountName: email,
		Period:      g.period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

func (g otpGenerator) Code(secret string, now time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, now, g.opts())
}

// Valid accepts a code from the configured window or from the standard 30 second one.
func (g otpGenerator) Valid(code, secret string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, g.opts())
	if err == nil && ok {
		return true
	}
	ok, err = totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
