package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Source says where a step's value comes from.
type Source int

const (
	SourcePrompt Source = iota
	SourceGenerated
)

// Step is one row of the secret inventory.
type Step struct {
	Label string
	// Key is the category/key suffix of the SSM path.
	Key string
	// EnvVar is the config variable the service reads. The loader resolves
	// EnvVar+"_SSM_PARAM" to the stored value at startup.
	EnvVar   string
	Secure   bool
	Source   Source
	Prompt   string
	Check    func(string) error
	Optional bool
}

const tokenBytes = 32

// GenerateToken returns 32 random bytes hex-encoded.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Inventory lists every parameter the API and side-effect worker resolve
// from SSM, in the order an operator collects them.
func Inventory() []Step {
	return []Step{
		{
			Label:  "Primary database URL",
			Key:    "database/url",
			EnvVar: "DATABASE_URL",
			Secure: true,
			Prompt: "Paste the postgres:// connection string for the leads database:",
			Check:  checkPostgresURL,
		},
		{
			Label:    "Ledger database URL",
			Key:      "ledger/database_url",
			EnvVar:   "LEDGER_DATABASE_URL",
			Secure:   true,
			Prompt:   "Paste the postgres:// connection string for the Stripe ledger (empty to skip):",
			Check:    checkPostgresURL,
			Optional: true,
		},
		{
			Label:  "Stripe secret key",
			Key:    "billing/stripe_secret_key",
			EnvVar: "STRIPE_SECRET_KEY",
			Secure: true,
			Prompt: "Stripe Dashboard > Developers > API keys. Paste the secret or restricted key:",
			Check:  checkPrefix("sk_", "rk_"),
		},
		{
			Label:  "Stripe webhook signing secret",
			Key:    "billing/stripe_webhook_secret",
			EnvVar: "STRIPE_WEBHOOK_SECRET",
			Secure: true,
			Prompt: "Stripe Dashboard > Developers > Webhooks > endpoint. Paste the signing secret:",
			Check:  checkPrefix("whsec_"),
		},
		{
			Label:    "SendGrid API key",
			Key:      "email/sendgrid_api_key",
			EnvVar:   "SENDGRID_API_KEY",
			Secure:   true,
			Prompt:   "SendGrid > Settings > API Keys. Paste a Mail Send key (empty to skip):",
			Check:    checkPrefix("SG."),
			Optional: true,
		},
		{
			Label:    "Pushover app token",
			Key:      "push/app_token",
			EnvVar:   "PUSHOVER_APP_TOKEN",
			Secure:   true,
			Prompt:   "Pushover > Your Applications. Paste the API token (empty to skip):",
			Check:    checkPushoverKey,
			Optional: true,
		},
		{
			Label:    "Pushover user key",
			Key:      "push/user_key",
			EnvVar:   "PUSHOVER_USER_KEY",
			Secure:   true,
			Prompt:   "Paste the Pushover user key for admin alerts (empty to skip):",
			Check:    checkPushoverKey,
			Optional: true,
		},
		{
			Label:    "Pushover group key",
			Key:      "push/group_key",
			EnvVar:   "PUSHOVER_GROUP_KEY",
			Secure:   true,
			Prompt:   "Paste the Pushover delivery group key (empty to skip):",
			Check:    checkPushoverKey,
			Optional: true,
		},
		{
			Label:  "Admin API key",
			Key:    "security/admin_api_key",
			EnvVar: "ADMIN_API_KEY",
			Secure: true,
			Source: SourceGenerated,
		},
	}
}

func checkPostgresURL(v string) error {
	u, err := url.Parse(v)
	if err != nil {
		return fmt.Errorf("not a URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("scheme must be postgres or postgresql, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is missing")
	}
	if u.Path == "" || u.Path == "/" {
		return errors.New("database name is missing")
	}
	return nil
}

func checkPrefix(prefixes ...string) func(string) error {
	return func(v string) error {
		for _, p := range prefixes {
			if strings.HasPrefix(v, p) {
				return nil
			}
		}
		return fmt.Errorf("expected a value starting with %s", strings.Join(prefixes, " or "))
	}
}

// Pushover tokens and keys are 30 alphanumeric characters.
func checkPushoverKey(v string) error {
	if len(v) != 30 {
		return fmt.Errorf("expected 30 characters, got %d", len(v))
	}
	for _, r := range v {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return errors.New("only letters and digits are allowed")
		}
	}
	return nil
}
