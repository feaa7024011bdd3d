package report

import (
	"fmt"
	"strings"
)

// sensitiveEnvSubstrings lists case-insensitive substrings that mark an
// environment variable's name as sensitive. JWT_ and
// STRIPE_*_KEY are prefix/prefix+suffix rules rather than plain substrings.
var sensitiveEnvSubstrings = []string{
	"_API_KEY",
	"_ACCESS_KEY",
	"_SECRET",
	"PASSWORD",
	"_TOKEN",
	"PRIVATE_KEY",
	"CONNECTION_STRING",
}

// isSensitiveEnvKey reports whether an environment variable name matches any
// of the sensitive-data name patterns.
func isSensitiveEnvKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, substr := range sensitiveEnvSubstrings {
		if strings.Contains(upper, substr) {
			return true
		}
	}
	if strings.HasPrefix(upper, "JWT_") {
		return true
	}
	if strings.HasPrefix(upper, "STRIPE_") && strings.HasSuffix(upper, "_KEY") {
		return true
	}
	return false
}

// RedactSensitiveEnv replaces sensitive environment variable values in place
// with "<KEY>=<redacted>" and sets SensitiveDataFiltered when any redaction
// occurred.
func RedactSensitiveEnv(p *ProcessInfo) {
	if p.EnvironmentVariables == nil {
		return
	}
	redacted := false
	for _, key := range p.EnvOrder {
		if !isSensitiveEnvKey(key) {
			continue
		}
		if _, ok := p.EnvironmentVariables[key]; !ok {
			continue
		}
		p.EnvironmentVariables[key] = fmt.Sprintf("%s=<redacted>", key)
		redacted = true
	}
	if redacted {
		p.SensitiveDataFiltered = true
	}
}
