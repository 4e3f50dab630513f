package normalize

import (
	"fmt"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Markdown renders the chosen article container as Markdown. It is a debug
// view of what the extractor considers the article; the model never sees it.
func Markdown(markup string) (string, error) {
	fragment, err := ArticleHTML(markup)
	if err != nil {
		return "", err
	}
	md, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return "", fmt.Errorf("converting HTML to markdown: %w", err)
	}
	return md, nil
}
