package search

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
)

// SanitizeBooleanExpression validates and cleans a boolean-mode search
// expression. Supported syntax: `+term` (must), `-term` (must not),
// `"quoted phrase"` (exact), `term*` (suffix wildcard), and bare terms
// combined with implicit OR. Anything outside that grammar is stripped
// rather than rejected, so a sloppy expression still searches; only an
// expression with no searchable terms at all fails.
func SanitizeBooleanExpression(expr string) (string, error) {
	var sb strings.Builder
	inPhrase := false

	flushSpace := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), " ") {
			sb.WriteByte(' ')
		}
	}

	runes := []rune(expr)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case r == '"':
			if inPhrase {
				sb.WriteRune('"')
				inPhrase = false
			} else {
				flushSpace()
				sb.WriteRune('"')
				inPhrase = true
			}
		case inPhrase:
			// Inside a phrase everything except another quote is literal.
			sb.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			sb.WriteRune(r)
		case r == '+' || r == '-':
			// Operators are only meaningful immediately before a term.
			if i+1 < len(runes) && (unicode.IsLetter(runes[i+1]) || unicode.IsDigit(runes[i+1]) || runes[i+1] == '"') {
				flushSpace()
				sb.WriteRune(r)
			}
		case r == '*':
			// Wildcard is only meaningful immediately after a term.
			if sb.Len() > 0 {
				last := sb.String()[sb.Len()-1]
				if last != ' ' && last != '+' && last != '-' && last != '*' {
					sb.WriteRune('*')
				}
			}
		case unicode.IsSpace(r):
			flushSpace()
		default:
			// Drop unsupported characters, splitting the token.
			flushSpace()
		}
	}

	cleaned := strings.TrimSpace(sb.String())

	// Unterminated phrase: close it rather than send invalid syntax.
	if inPhrase {
		cleaned += `"`
	}

	if !containsSearchableTerm(cleaned) {
		return "", fmt.Errorf("%w: boolean expression contains no searchable terms", apperrors.ErrValidation)
	}
	return cleaned, nil
}

func containsSearchableTerm(expr string) bool {
	for _, r := range expr {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
