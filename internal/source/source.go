// Package source decides what kind of input the user supplied and, for a
// URL, fetches that one page.
//
// Only the given address is requested. Links are never followed.
package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/timvw/bias-lens/internal/model"
)

// Kind is the detected input type.
type Kind string

const (
	KindText Kind = "text"
	KindHTML Kind = "html"
	KindURL  Kind = "url"
)

// Detect classifies raw input. A lone http(s) address with a host is a URL;
// anything containing both '<' and '>' is HTML; the rest is text.
func Detect(raw string) Kind {
	s := strings.TrimSpace(raw)
	if isURL(s) {
		return KindURL
	}
	if strings.Contains(s, "<") && strings.Contains(s, ">") {
		return KindHTML
	}
	return KindText
}

func isURL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Resolve turns raw user input into a pipeline input, fetching the page
// when raw is a URL. A nil fetcher refuses URL input.
func Resolve(ctx context.Context, raw string, f *Fetcher) (model.RawInput, model.SourceInfo, error) {
	s := strings.TrimSpace(raw)
	switch Detect(s) {
	case KindURL:
		if f == nil {
			return model.RawInput{}, model.SourceInfo{}, fmt.Errorf("URL input is not supported here: %s", s)
		}
		page, err := f.Fetch(ctx, s)
		if err != nil {
			return model.RawInput{}, model.SourceInfo{}, err
		}
		return model.HTML(page), model.SourceInfo{Source: string(KindURL), Extracted: true, URL: s}, nil
	case KindHTML:
		return model.HTML(s), model.SourceInfo{Source: string(KindHTML), Extracted: true}, nil
	default:
		return model.PlainText(s), model.SourceInfo{Source: string(KindText)}, nil
	}
}

// ForKind builds the pipeline input when the caller already knows the type
// (e.g., --html). KindURL is not accepted.
func ForKind(kind Kind, content string) (model.RawInput, model.SourceInfo, error) {
	switch kind {
	case KindHTML:
		return model.HTML(content), model.SourceInfo{Source: string(KindHTML), Extracted: true}, nil
	case KindText:
		return model.PlainText(content), model.SourceInfo{Source: string(KindText)}, nil
	default:
		return model.RawInput{}, model.SourceInfo{}, fmt.Errorf("unsupported input kind: %q", kind)
	}
}
