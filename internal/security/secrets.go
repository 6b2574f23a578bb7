package security

import (
	"errors"
	"regexp"
)

type SecretMatch struct {
	Type  string
	Start int
	End   int
}

type SecretScanner struct {
	patterns []*secretPattern
}

type secretPattern struct {
	name       string
	regex      *regexp.Regexp
	redactWith string
}

// Push channel credentials. Telegram client errors carry the request URL,
// which embeds the bot token.
var defaultSecretPatterns = []struct {
	name       string
	pattern    string
	redactWith string
}{
	{"Telegram Bot URL", `/bot[0-9]{6,12}:[a-zA-Z0-9_-]{30,40}`, "/bot****:****"},
	{"Telegram Bot Token", `[0-9]{6,12}:[a-zA-Z0-9_-]{30,40}`, "****:****"},
	{"Discord Token", `[MNO][a-zA-Z\d_-]{23,27}\.[\w-]{6}\.[\w-]{27,38}`, "DISCORD_TOKEN****"},
	{"Authorization Header", `(?i)authorization:\s*(bot|bearer)\s+[^\s'"]+`, "Authorization: ****"},
	{"Generic Secret", `(?i)(token|secret|password)['"]?\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`, "SECRET****"},
}

func NewSecretScanner() *SecretScanner {
	scanner := &SecretScanner{
		patterns: make([]*secretPattern, 0, len(defaultSecretPatterns)),
	}

	for _, p := range defaultSecretPatterns {
		scanner.patterns = append(scanner.patterns, &secretPattern{
			name:       p.name,
			regex:      regexp.MustCompile(p.pattern),
			redactWith: p.redactWith,
		})
	}

	return scanner
}

func (s *SecretScanner) Scan(input string) []SecretMatch {
	var matches []SecretMatch

	for _, pattern := range s.patterns {
		for _, loc := range pattern.regex.FindAllStringIndex(input, -1) {
			matches = append(matches, SecretMatch{
				Type:  pattern.name,
				Start: loc[0],
				End:   loc[1],
			})
		}
	}

	return matches
}

func (s *SecretScanner) HasSecrets(input string) bool {
	return len(s.Scan(input)) > 0
}

func (s *SecretScanner) Redact(input string) string {
	result := input

	for _, pattern := range s.patterns {
		result = pattern.regex.ReplaceAllString(result, pattern.redactWith)
	}

	return result
}

var defaultScanner = NewSecretScanner()

func HasSecrets(input string) bool {
	return defaultScanner.HasSecrets(input)
}

func RedactSecrets(input string) string {
	return defaultScanner.Redact(input)
}

// redactedError hides credentials in the message but keeps the chain for
// errors.Is
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

// RedactError returns err with any credential in its message masked. It
// returns err unchanged when nothing matched.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	redacted := RedactSecrets(msg)
	if redacted == msg {
		return err
	}
	var re *redactedError
	if errors.As(err, &re) {
		return &redactedError{msg: redacted, err: re.err}
	}
	return &redactedError{msg: redacted, err: err}
}
