package gerrit

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseGroupUUID(t *testing.T) {
	output := "Administrators\tad5ad4fbbbd3aee2b9e3e2e7bea64b3a45accc94\tGerrit Site Administrators\t\nalpha-core\tdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef\t\t\nalpha-readers\tcafecafecafecafecafecafecafecafecafecafe\t\t"

	tests := []struct {
		name  string
		group string
		want  string
	}{
		{name: "first row", group: "Administrators", want: "ad5ad4fbbbd3aee2b9e3e2e7bea64b3a45accc94"},
		{name: "middle row", group: "alpha-core", want: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"},
		{name: "absent group", group: "nobody", want: ""},
		{name: "prefix is not a match", group: "alpha", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseGroupUUID(output, tt.group); got != tt.want {
				t.Errorf("parseGroupUUID(%q) = %q, want %q", tt.group, got, tt.want)
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	got := splitLines("infra/alpha\ninfra/beta\n\n  \ninfra/gamma")
	want := []string{"infra/alpha", "infra/beta", "infra/gamma"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("splitLines mismatch (-want +got):\n%s", diff)
	}

	if splitLines("") != nil {
		t.Error("empty output should yield nil")
	}
}

func TestQuote(t *testing.T) {
	if got := quote("plain"); got != "'plain'" {
		t.Errorf("quote(plain) = %q", got)
	}
	if got := quote("it's"); got != `'it'\''s'` {
		t.Errorf("quote(it's) = %q", got)
	}
}
