package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		expected []string
	}{
		{
			name:     "two statements",
			script:   "CREATE TABLE a (id INTEGER);\nCREATE TABLE b (id INTEGER);",
			expected: []string{"CREATE TABLE a (id INTEGER)", "CREATE TABLE b (id INTEGER)"},
		},
		{
			name:     "no trailing semicolon",
			script:   "CREATE TABLE a (id INTEGER)",
			expected: []string{"CREATE TABLE a (id INTEGER)"},
		},
		{
			name:     "semicolon inside string literal",
			script:   "INSERT INTO t (v) VALUES ('a;b');",
			expected: []string{"INSERT INTO t (v) VALUES ('a;b')"},
		},
		{
			name:     "escaped quote inside string literal",
			script:   "INSERT INTO t (v) VALUES ('it''s;fine');",
			expected: []string{"INSERT INTO t (v) VALUES ('it''s;fine')"},
		},
		{
			name:     "semicolon inside quoted identifier",
			script:   `CREATE TABLE "weird;name" (id INTEGER);`,
			expected: []string{`CREATE TABLE "weird;name" (id INTEGER)`},
		},
		{
			name:     "semicolon inside line comment",
			script:   "CREATE TABLE a (id INTEGER); -- trailing; comment\nCREATE TABLE b (id INTEGER);",
			expected: []string{"CREATE TABLE a (id INTEGER)", "-- trailing; comment\nCREATE TABLE b (id INTEGER)"},
		},
		{
			name:     "semicolon inside block comment",
			script:   "CREATE TABLE a (id INTEGER) /* not; here */;",
			expected: []string{"CREATE TABLE a (id INTEGER) /* not; here */"},
		},
		{
			name:     "empty fragments dropped",
			script:   ";;\n;CREATE TABLE a (id INTEGER);;",
			expected: []string{"CREATE TABLE a (id INTEGER)"},
		},
		{
			name:     "trailing comment-only fragment dropped",
			script:   "DROP TABLE a;\n-- done\n",
			expected: []string{"DROP TABLE a"},
		},
		{
			name:     "block-comment-only fragment dropped",
			script:   "DROP TABLE a;\n/* cleanup\nnotes */",
			expected: []string{"DROP TABLE a"},
		},
		{
			name:   "comment-only script",
			script: "-- nothing to do\n",
		},
		{
			name:   "empty script",
			script: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitStatements(tt.script)
			require.Len(t, got, len(tt.expected))
			assert.Equal(t, tt.expected, got)
		})
	}
}
