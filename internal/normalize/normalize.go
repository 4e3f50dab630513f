// Package normalize turns raw text or HTML into the plain article text that
// is sent to the model.
//
// HTML goes through two passes. Boilerplate is removed and the best content
// container is chosen with goquery (article, then main, then [role=main],
// then body). The container is then walked as an x/net/html tree: block
// elements end a line, inline text is joined, and whitespace collapses.
// When that finds nothing, every visible text node of the document is used
// instead.
package normalize

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/timvw/bias-lens/internal/model"
)

// noiseSelectors are removed from the document before the container is
// chosen. Site headers are handled separately so an article's own header
// (headline, byline) survives.
var noiseSelectors = []string{
	"script", "style", "noscript", "template",
	"nav", "footer", "aside",
	"img", "picture", "figure", "figcaption",
	"iframe", "video", "audio",
	"svg", "canvas",
	"form", "button", "input", "select", "textarea",
	".sidebar", ".menu", ".navigation", ".ads", ".advertisement",
	"[aria-hidden=true]",
}

// containerSelectors in priority order.
var containerSelectors = []string{"article", "main", "[role=main]", "body"}

// Normalize returns the readable text of input.
// It fails with *model.EmptyInputError when nothing readable remains.
func Normalize(input model.RawInput) (string, error) {
	var text string
	switch input.Kind {
	case model.KindHTML:
		text = FromHTML(input.Content)
	default:
		text = strings.TrimSpace(input.Content)
	}
	if text == "" {
		return "", &model.EmptyInputError{Reason: fmt.Sprintf("no readable text in %s input", kindName(input.Kind))}
	}
	return text, nil
}

// FromHTML extracts article text from markup. It never fails; an empty
// result means the document has no visible text.
func FromHTML(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return strings.TrimSpace(markup)
	}

	if content := articleContainer(doc); content != nil {
		if text := collapse(visibleText(content.Nodes[0])); text != "" {
			return text
		}
	}

	// Structured extraction found nothing; fall back to every visible text
	// node of a fresh tree, since the first pass removed elements.
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return strings.TrimSpace(markup)
	}
	return collapse(visibleText(root))
}

// ArticleHTML returns the outer HTML of the content container chosen for
// markup, after boilerplate removal.
func ArticleHTML(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	content := articleContainer(doc)
	if content == nil {
		return "", fmt.Errorf("no content container found in HTML")
	}
	out, err := goquery.OuterHtml(content)
	if err != nil {
		return "", fmt.Errorf("serializing content: %w", err)
	}
	return out, nil
}

// articleContainer strips noise from doc and returns the best container,
// or nil when the document has none.
func articleContainer(doc *goquery.Document) *goquery.Selection {
	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}
	doc.Find("header").Not("article header").Remove()

	for _, sel := range containerSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			return found.First()
		}
	}
	return nil
}

// skipped elements never contribute text, even in the fallback pass.
var skipped = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// blocks end the current line before and after their content.
var blocks = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Body: true, atom.Br: true, atom.Dd: true, atom.Details: true, atom.Div: true,
	atom.Dl: true, atom.Dt: true, atom.Fieldset: true, atom.Figcaption: true,
	atom.Figure: true, atom.Footer: true, atom.Form: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true, atom.Header: true,
	atom.Hr: true, atom.Html: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Summary: true,
	atom.Table: true, atom.Tbody: true, atom.Td: true, atom.Tfoot: true, atom.Th: true,
	atom.Thead: true, atom.Tr: true, atom.Ul: true,
}

// visibleText renders the text under n with a newline at every block
// boundary. Whitespace is left for collapse to clean up.
func visibleText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			// Line breaks in source markup are not line breaks on the page.
			b.WriteString(strings.Map(flattenSpace, n.Data))
			return
		case html.ElementNode:
			if skipped[n.DataAtom] {
				return
			}
		case html.CommentNode, html.DoctypeNode:
			return
		}
		block := n.Type == html.ElementNode && blocks[n.DataAtom]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	walk(n)
	return b.String()
}

// collapse squeezes each line's whitespace to single spaces and drops
// blank lines.
func collapse(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			kept = append(kept, strings.Join(fields, " "))
		}
	}
	return strings.Join(kept, "\n")
}

func flattenSpace(r rune) rune {
	switch r {
	case '\n', '\r', '\t', '\f', '\v':
		return ' '
	}
	return r
}

func kindName(k model.InputKind) string {
	if k == "" {
		return string(model.KindText)
	}
	return string(k)
}
