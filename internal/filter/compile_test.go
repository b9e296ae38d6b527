// internal/filter/compile_test.go
package filter

import (
	"errors"
	"strings"
	"testing"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

func TestCompile_Valid(t *testing.T) {
	tests := []string{
		"true",
		"$username === 'alice'",
		"$is.moderator || $is.broadcaster",
		"$bits >= 100 && $message.includes('hype')",
		"!($count > 3)",
		"$viewers % 2 == 0 ? true : false",
		"$message.toLowerCase().startsWith(\"!song\")",
		"-$bits < 0",
		"$_points + 1 > 10",
		".5 < 1",
	}

	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			p, err := Compile(src)
			if err != nil {
				t.Fatalf("Compile(%q) error = %v, want nil", src, err)
			}
			if p.Source() != src {
				t.Errorf("Source() = %q, want %q", p.Source(), src)
			}
			if p.Nodes() == 0 {
				t.Errorf("Nodes() = 0, want > 0")
			}
		})
	}
}

func TestCompile_SyntaxErrors(t *testing.T) {
	tests := []string{
		"",
		"$a ===",
		"($a",
		"$a )",
		"'unterminated",
		"$a # $b",
		"$a ? 1",
		"$a.",
		"$a.1",
		"1.2.3",
		"$a.includes('x'",
		"alert`1`",
	}

	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src)
			if !errors.Is(err, types.ErrSyntax) {
				t.Errorf("Compile(%q) error = %v, want ErrSyntax", src, err)
			}
		})
	}
}

func TestCompile_TooLong(t *testing.T) {
	src := strings.Repeat("1", MaxExpressionLength+1)

	_, err := Compile(src)
	if !errors.Is(err, types.ErrExpressionTooLong) {
		t.Errorf("Compile() error = %v, want ErrExpressionTooLong", err)
	}
}

func TestCompile_TooDeep(t *testing.T) {
	src := strings.Repeat("(", MaxExpressionDepth) + "1" + strings.Repeat(")", MaxExpressionDepth)

	_, err := Compile(src)
	if !errors.Is(err, types.ErrExpressionTooDeep) {
		t.Errorf("Compile() error = %v, want ErrExpressionTooDeep", err)
	}
}

func TestCompile_TooManyNodes(t *testing.T) {
	parts := make([]string, MaxExpressionNodes)
	for i := range parts {
		parts[i] = "1"
	}
	src := strings.Join(parts, "+")

	_, err := Compile(src)
	if !errors.Is(err, types.ErrExpressionTooCostly) {
		t.Errorf("Compile() error = %v, want ErrExpressionTooCostly", err)
	}
}

func TestCompile_KeywordLiterals(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{"true", true},
		{"false", false},
		{"null", nil},
		{"undefined", undefined},
		{"'x'", "x"},
		{"42", float64(42)},
	}

	for _, tt := range tests {
		p, err := Compile(tt.src)
		if err != nil {
			t.Fatalf("Compile(%q) error = %v, want nil", tt.src, err)
		}
		lit, ok := p.root.(*literalNode)
		if !ok {
			t.Fatalf("root = %T, want *literalNode", p.root)
		}
		if lit.value != tt.want {
			t.Errorf("%q literal = %v, want %v", tt.src, lit.value, tt.want)
		}
	}
}

func TestLex_StringEscapes(t *testing.T) {
	toks, err := lex(`'it\'s' "a\"b" 'tab\t'`)
	if err != nil {
		t.Fatalf("lex() error = %v, want nil", err)
	}
	want := []string{"it's", `a"b`, "tab\t"}
	for i, w := range want {
		if toks[i].kind != tokString || toks[i].text != w {
			t.Errorf("token %d = %q, want %q", i, toks[i].text, w)
		}
	}
	if toks[len(toks)-1].kind != tokEOF {
		t.Errorf("last token kind = %v, want tokEOF", toks[len(toks)-1].kind)
	}
}
