package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/timvw/bias-lens/internal/parser"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		limit     int
		want      string
		wantKept  int
		wantTotal int
	}{
		{"under limit", "one two three", 5, "one two three", 3, 3},
		{"exact limit", "one two three", 3, "one two three", 3, 3},
		{"cut on boundary", "one two three four", 2, "one two", 2, 4},
		{"keeps inner whitespace", "one\n\ntwo   three four", 3, "one\n\ntwo   three", 3, 4},
		{"leading whitespace trimmed", "   alpha beta", 1, "alpha", 1, 2},
		{"punctuation is part of word", "well-known, right? yes.", 2, "well-known, right?", 2, 3},
		{"multibyte words", "naïve café über straße", 3, "naïve café über", 3, 4},
		{"empty text", "", 3, "", 0, 0},
		{"whitespace only", " \t\n ", 3, "", 0, 0},
		{"limit one", "single", 1, "single", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, kept, total := Truncate(tt.text, tt.limit)
			if got != tt.want || kept != tt.wantKept || total != tt.wantTotal {
				t.Errorf("Truncate(%q, %d) = (%q, %d, %d), want (%q, %d, %d)",
					tt.text, tt.limit, got, kept, total, tt.want, tt.wantKept, tt.wantTotal)
			}
		})
	}
}

func TestTruncate_NeverExceedsLimitOrSplitsWords(t *testing.T) {
	words := make([]string, 50)
	for i := range words {
		words[i] = fmt.Sprintf("w%dx", i)
	}
	text := strings.Join(words, " \n ")

	for n := 1; n <= 60; n++ {
		got, kept, _ := Truncate(text, n)
		fields := strings.Fields(got)
		if len(fields) > n {
			t.Fatalf("Truncate(_, %d) kept %d words", n, len(fields))
		}
		if len(fields) != kept {
			t.Fatalf("Truncate(_, %d) reported %d kept, text has %d", n, kept, len(fields))
		}
		for i, w := range fields {
			if w != words[i] {
				t.Fatalf("Truncate(_, %d) word %d = %q, want %q (split or reordered)", n, i, w, words[i])
			}
		}
	}
}

func TestBuild(t *testing.T) {
	var b *Builder
	res := b.Build("The senator proposed a new tax plan today.", 4)

	if res.Text != "The senator proposed a" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Words.Original != 8 || res.Words.Kept != 4 || res.Words.Cut() != 4 {
		t.Errorf("Words = %+v, want original 8 kept 4", res.Words)
	}

	for _, want := range []string{
		"media bias analyst",
		`"label": one of "left", "right", "neutral"`,
		`"confidence": a number between 0.0 and 1.0`,
		`"rationale"`,
		ArticleStart + "\nThe senator proposed a\n" + ArticleEnd,
	} {
		if !strings.Contains(res.Prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, res.Prompt)
		}
	}
	if strings.Contains(res.Prompt, "tax plan") {
		t.Error("prompt contains words past the limit")
	}
	if i, j := strings.Index(res.Prompt, "Respond ONLY"), strings.Index(res.Prompt, ArticleStart); i < 0 || i > j {
		t.Error("schema must come before the article section")
	}
}

func TestBuild_DefaultLimit(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("word ", DefaultWordLimit+25))
	for _, limit := range []int{0, -1} {
		res := NewBuilder("", parser.FieldMap{}).Build(text, limit)
		if res.Words.Kept != DefaultWordLimit || res.Words.Original != DefaultWordLimit+25 {
			t.Errorf("Build(_, %d) words = %+v, want default limit %d", limit, res.Words, DefaultWordLimit)
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := NewBuilder("", parser.DefaultFields())
	first := b.Build("Same input every time.", 10).Prompt
	for i := 0; i < 10; i++ {
		if got := b.Build("Same input every time.", 10).Prompt; got != first {
			t.Fatalf("Build not deterministic:\n%s\nvs\n%s", first, got)
		}
	}
}

func TestBuild_CustomHeaderAndFields(t *testing.T) {
	b := NewBuilder("Classify the lean of this op-ed.\n", parser.FieldMap{Label: []string{"lean", "label"}})
	res := b.Build("Text.", 10)

	if !strings.HasPrefix(res.Prompt, "Classify the lean of this op-ed.\n\n") {
		t.Errorf("custom header not used:\n%s", res.Prompt)
	}
	if strings.Contains(res.Prompt, "media bias analyst") {
		t.Error("embedded header should be replaced")
	}
	if !strings.Contains(res.Prompt, `- "lean": one of`) {
		t.Errorf("schema should name first label key:\n%s", res.Prompt)
	}
	if !strings.Contains(res.Prompt, `- "confidence":`) {
		t.Errorf("unset fields should keep default keys:\n%s", res.Prompt)
	}
}

func TestBuild_TextPlaceholder(t *testing.T) {
	b := NewBuilder("Read this:\n{text}\nThen decide its political lean.", parser.DefaultFields())
	res := b.Build("one two three four", 2)

	want := "Read this:\n" + ArticleStart + "\none two\n" + ArticleEnd + "\nThen decide its political lean.\n\n"
	if !strings.HasPrefix(res.Prompt, want) {
		t.Errorf("placeholder not replaced by delimited article:\n%s", res.Prompt)
	}
	if strings.Contains(res.Prompt, TextPlaceholder) {
		t.Error("placeholder left in prompt")
	}
	if !strings.HasSuffix(res.Prompt, "explaining the classification\n") {
		t.Errorf("schema should follow the template:\n%s", res.Prompt)
	}
	if strings.Count(res.Prompt, ArticleStart) != 1 {
		t.Error("article must appear exactly once")
	}
}
