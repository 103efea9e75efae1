package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"

	logx "wrestfed/pkg/logx"
)

func TestSplitTelegramText(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		limit     int
		parseMode string
		want      int
	}{
		{name: "short", in: "hello", limit: 10, want: 1},
		{name: "exact", in: strings.Repeat("a", 10), limit: 10, want: 1},
		{name: "plain split", in: strings.Repeat("a", 25), limit: 10, want: 3},
		{name: "prefers newline", in: strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6), limit: 10, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitTelegramText(tt.in, tt.limit, tt.parseMode)
			if len(got) != tt.want {
				t.Fatalf("chunks = %d (%q), want %d", len(got), got, tt.want)
			}
			for _, c := range got {
				if utf8.RuneCountInString(c) > tt.limit {
					t.Fatalf("chunk too long: %q", c)
				}
			}
		})
	}
}

func TestSplitTelegramTextNewlineBoundary(t *testing.T) {
	got := splitTelegramText("aaaaaa\nbbbbbb", 10, "")
	if got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextHTMLTag(t *testing.T) {
	got := splitTelegramText("abcdef<b>xyz</b>", 8, "HTML")
	if got[0] != "abcdef" {
		t.Fatalf("first chunk = %q, want tag kept whole", got[0])
	}
}

func TestSplitTelegramTextRunes(t *testing.T) {
	in := strings.Repeat("я", 15)
	got := splitTelegramText(in, 10, "")
	if strings.Join(got, "") != in {
		t.Fatalf("rejoined text differs: %q", got)
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
