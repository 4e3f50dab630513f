// Package prompt builds the classification prompt sent to the model.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/timvw/bias-lens/internal/model"
	"github.com/timvw/bias-lens/internal/parser"
)

// DefaultWordLimit is how many words of the article reach the model when the
// caller does not say.
const DefaultWordLimit = 200

// Markers around the article text.
const (
	ArticleStart = "=== ARTICLE START ==="
	ArticleEnd   = "=== ARTICLE END ==="
)

// Instructions is the default instruction header.
// Loaded from prompts/instructions.md at compile time.
//
//go:embed prompts/instructions.md
var Instructions string

// Result is a built prompt plus the truncation it applied.
type Result struct {
	Prompt string
	// Text is the article text as embedded in the prompt.
	Text  string
	Words model.WordStats
}

// TextPlaceholder in a custom header marks where the article goes. A header
// without it gets the article appended after the response schema.
const TextPlaceholder = "{text}"

// Builder renders prompts. The zero value uses the embedded instructions and
// the default field names.
type Builder struct {
	header string
	fields parser.FieldMap
}

// NewBuilder returns a builder with a custom instruction header (empty means
// the embedded one) and the field mapping whose first keys the model is
// asked to use.
func NewBuilder(header string, fields parser.FieldMap) *Builder {
	return &Builder{header: header, fields: fields}
}

// Build truncates text to wordLimit words and renders the prompt.
// A wordLimit of zero or less means DefaultWordLimit. Build is pure.
func (b *Builder) Build(text string, wordLimit int) Result {
	if wordLimit <= 0 {
		wordLimit = DefaultWordLimit
	}
	kept, keptCount, total := Truncate(text, wordLimit)

	header := Instructions
	fields := parser.DefaultFields()
	if b != nil {
		if strings.TrimSpace(b.header) != "" {
			header = b.header
		}
		fields = b.fields.WithDefaults()
	}

	var article strings.Builder
	article.WriteString(ArticleStart)
	article.WriteString("\n")
	article.WriteString(kept)
	article.WriteString("\n")
	article.WriteString(ArticleEnd)

	var sb strings.Builder
	header = strings.TrimSpace(header)
	if before, after, ok := strings.Cut(header, TextPlaceholder); ok {
		sb.WriteString(strings.TrimRight(before, " "))
		sb.WriteString(article.String())
		sb.WriteString(strings.TrimLeft(after, " "))
		sb.WriteString("\n\n")
		writeSchema(&sb, fields)
	} else {
		sb.WriteString(header)
		sb.WriteString("\n\n")
		writeSchema(&sb, fields)
		sb.WriteString("\n")
		sb.WriteString(article.String())
		sb.WriteString("\n")
	}

	return Result{
		Prompt: sb.String(),
		Text:   kept,
		Words:  model.WordStats{Original: total, Kept: keptCount},
	}
}

func writeSchema(sb *strings.Builder, f parser.FieldMap) {
	labels := make([]string, len(model.Labels))
	for i, l := range model.Labels {
		labels[i] = fmt.Sprintf("%q", string(l))
	}
	sb.WriteString("Respond ONLY with a single JSON object, no other text, using exactly these keys:\n")
	fmt.Fprintf(sb, "- %q: one of %s\n", f.Label[0], strings.Join(labels, ", "))
	fmt.Fprintf(sb, "- %q: a number between 0.0 and 1.0 for how confident you are\n", f.Confidence[0])
	fmt.Fprintf(sb, "- %q: 1-3 sentences explaining the classification\n", f.Rationale[0])
}

// Truncate keeps the first limit words of text, cutting right after the last
// kept word so that no word is split. It returns the kept text, the number
// of words kept, and the number of words in text. Whitespace inside the kept
// part is preserved; surrounding whitespace is trimmed.
func Truncate(text string, limit int) (string, int, int) {
	total, kept, end := 0, 0, 0
	inWord := false
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			inWord = false
		} else {
			if !inWord {
				inWord = true
				total++
			}
			if total <= limit {
				end = i + size
				kept = total
			}
		}
		i += size
	}
	return strings.TrimSpace(text[:end]), kept, total
}
