package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/bias-lens/internal/model"
	"github.com/timvw/bias-lens/internal/source"
	"github.com/timvw/bias-lens/internal/ui"
)

// inputFlags select where the article comes from. Shared by analyze,
// prompt, and extract.
type inputFlags struct {
	file         string
	url          string
	html         bool
	fetchTimeout time.Duration
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "file", "", "read the article from a file (.html/.htm files are treated as HTML)")
	cmd.Flags().StringVar(&f.url, "url", "", "fetch the article from a URL")
	cmd.Flags().BoolVar(&f.html, "html", false, "treat the input as HTML even if it does not look like it")
	cmd.Flags().DurationVar(&f.fetchTimeout, "fetch-timeout", 0, "timeout for --url fetches (default: 10s)")
}

// read resolves the input from flags, arguments, or stdin. With no
// arguments and piped stdin, stdin is read. The argument "-" also means
// stdin.
func (f *inputFlags) read(ctx context.Context, args []string, defaultFetchTimeout time.Duration) (model.RawInput, model.SourceInfo, error) {
	sources := 0
	if f.file != "" {
		sources++
	}
	if f.url != "" {
		sources++
	}
	if len(args) > 0 {
		sources++
	}
	if sources > 1 {
		return model.RawInput{}, model.SourceInfo{}, fmt.Errorf("give the article as an argument, --file, or --url, not several")
	}

	switch {
	case f.url != "":
		if source.Detect(f.url) != source.KindURL {
			return model.RawInput{}, model.SourceInfo{}, fmt.Errorf("not an http(s) URL: %s", f.url)
		}
		timeout := f.fetchTimeout
		if timeout <= 0 {
			timeout = defaultFetchTimeout
		}
		return source.Resolve(ctx, f.url, source.NewFetcher(timeout))

	case f.file != "":
		data, err := os.ReadFile(f.file)
		if err != nil {
			return model.RawInput{}, model.SourceInfo{}, fmt.Errorf("reading input file: %w", err)
		}
		return f.classify(string(data), isHTMLFile(f.file))
	}

	var raw string
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		if len(args) == 0 && ui.IsTerminal(os.Stdin) {
			return model.RawInput{}, model.SourceInfo{}, fmt.Errorf("no input: pass the article text, -, --file, or --url")
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return model.RawInput{}, model.SourceInfo{}, fmt.Errorf("reading stdin: %w", err)
		}
		raw = string(data)
	} else {
		raw = strings.Join(args, " ")
		if !f.html && source.Detect(raw) == source.KindURL {
			timeout := f.fetchTimeout
			if timeout <= 0 {
				timeout = defaultFetchTimeout
			}
			return source.Resolve(ctx, raw, source.NewFetcher(timeout))
		}
	}
	return f.classify(raw, false)
}

// classify picks text or HTML for content that is not a URL.
func (f *inputFlags) classify(content string, htmlHint bool) (model.RawInput, model.SourceInfo, error) {
	if f.html || htmlHint || source.Detect(content) == source.KindHTML {
		return source.ForKind(source.KindHTML, content)
	}
	return source.ForKind(source.KindText, content)
}

func isHTMLFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}
