// Package stripe binds the process to one Stripe account mode and routes the
// SDK's own logging through the service logger.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"

	signingSecretPrefix = "whsec_"
)

// keyPrefixes lists the secret and restricted key prefixes valid per mode.
var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

var errAPIKeyRequired = errors.New("stripe api key is required")

func ParseMode(raw string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(raw)))
	if m == "" {
		return ModeTest, nil
	}
	if _, ok := keyPrefixes[m]; !ok {
		return "", fmt.Errorf("stripe environment must be %q or %q, got %q", ModeTest, ModeLive, raw)
	}
	return m, nil
}

type Client struct {
	mode          Mode
	signingSecret string
}

// NewClient installs the API key the charge and refund resources use. A
// test-mode process refuses live keys and the other way round.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode, err := ParseMode(cfg.Env)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	if !slices.ContainsFunc(keyPrefixes[mode], func(p string) bool { return strings.HasPrefix(key, p) }) {
		return nil, fmt.Errorf("stripe %s mode requires a key starting with one of %v", mode, keyPrefixes[mode])
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret != "" && !strings.HasPrefix(secret, signingSecretPrefix) {
		return nil, fmt.Errorf("stripe webhook secret must start with %q", signingSecretPrefix)
	}

	stripe.Key = key
	stripe.SetAppInfo(&stripe.AppInfo{Name: "storefront-backend"})
	if logg != nil {
		stripe.DefaultLeveledLogger = &leveledLogger{ctx: logg.WithField(context.WithoutCancel(ctx), "component", "stripe-sdk"), logg: logg}
		fields := map[string]any{"stripe_mode": mode, "webhooks_enabled": secret != ""}
		logg.Info(logg.WithFields(ctx, fields), "stripe client initialized")
	}
	return &Client{mode: mode, signingSecret: secret}, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return string(c.mode)
}

// SigningSecret is the webhook endpoint secret; empty disables the webhook route.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// leveledLogger satisfies stripe.LeveledLoggerInterface. SDK debug chatter
// is demoted so request bodies never reach info-level logs.
type leveledLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l *leveledLogger) Debugf(format string, v ...any) {
	l.logg.Debug(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Infof(format string, v ...any) {
	l.logg.Debug(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Warnf(format string, v ...any) {
	l.logg.Warn(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Errorf(format string, v ...any) {
	l.logg.Error(l.ctx, "stripe sdk error", fmt.Errorf(format, v...))
}
