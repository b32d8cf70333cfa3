package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
)

func TestSanitizeBooleanExpression(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare terms", "mysql performance", "mysql performance"},
		{"must and must-not", "+mysql -oracle", "+mysql -oracle"},
		{"quoted phrase", `"query cache" tuning`, `"query cache" tuning`},
		{"suffix wildcard", "optim* index", "optim* index"},
		{"collapses whitespace", "  mysql    tuning ", "mysql tuning"},
		{"drops dangling operator", "mysql + -", "mysql"},
		{"drops leading wildcard", "* mysql", "mysql"},
		{"strips unsupported characters", "mysql; DROP(users)", "mysql DROP users"},
		{"closes unterminated phrase", `"query cache`, `"query cache"`},
		{"phrase keeps inner punctuation", `"don't panic"`, `"don't panic"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeBooleanExpression(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeBooleanExpressionEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "+ - *", ";;;"} {
		_, err := SanitizeBooleanExpression(in)
		assert.ErrorIs(t, err, apperrors.ErrValidation, "input %q", in)
	}
}
