package privacy

import "regexp"

// redaction pairs a detection pattern with its replacement token. Patterns
// are matched against already-redacted text with no effect, making the
// whole pipeline idempotent: the replacement tokens never themselves match
// a pattern.
type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

var (
	reCreditCard = regexp.MustCompile(`\b(?:\d[ -]?){15,16}\b`)
	reSSN        = regexp.MustCompile(`\b\d{3}[- ]\d{2}[- ]\d{4}\b`)
	reAPIKey     = regexp.MustCompile(`\b(?:sk-[A-Za-z0-9]{16,}|gh[po]_[A-Za-z0-9]{20,}|Bearer\s+[A-Za-z0-9._-]{16,})\b`)
	rePassword   = regexp.MustCompile(`(?i)\bpassword\s*[:=]\s*\S+`)
	reEmail      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	rePhone      = regexp.MustCompile(`\b(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`)
)

var coreRedactions = []redaction{
	{reCreditCard, "[REDACTED_CARD]"},
	{reSSN, "[REDACTED_SSN]"},
	{reAPIKey, "[REDACTED_KEY]"},
	{rePassword, "[REDACTED_PASSWORD]"},
}

// RedactionConfig toggles the optional, off-by-default redaction patterns.
type RedactionConfig struct {
	RedactEmail bool
	RedactPhone bool
}

// Redact applies all configured redaction patterns to text and returns the
// result. Redaction is idempotent: Redact(Redact(x)) == Redact(x), because
// the replacement tokens are bracket-delimited strings no source pattern
// can match.
func Redact(text string, cfg RedactionConfig) string {
	for _, r := range coreRedactions {
		text = r.pattern.ReplaceAllString(text, r.replacement)
	}
	if cfg.RedactEmail {
		text = reEmail.ReplaceAllString(text, "[REDACTED_EMAIL]")
	}
	if cfg.RedactPhone {
		text = rePhone.ReplaceAllString(text, "[REDACTED_PHONE]")
	}
	return text
}
