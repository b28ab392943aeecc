package config

import (
	"mcpchat/model"
	"strings"
)

// Redact masks a secret for display, keeping at most its last four
// characters.
func Redact(secret string) string {
	return model.MaskSecret(secret)
}

// RedactText replaces every occurrence of the given secrets in text. Used on
// error strings that may echo request headers or URLs.
func RedactText(text string, secrets ...string) string {
	for _, s := range secrets {
		if len(s) < 4 {
			continue
		}
		text = strings.ReplaceAll(text, s, Redact(s))
	}
	return text
}

// Secrets returns every API key the config can resolve, for RedactText.
func (c *Config) Secrets() []string {
	var out []string
	for _, p := range c.Providers {
		if key := c.APIKey(p.ID); key != "" {
			out = append(out, key)
		}
	}
	return out
}
