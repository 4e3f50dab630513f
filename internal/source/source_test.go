package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/timvw/bias-lens/internal/model"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		input string
		want  Kind
	}{
		{"https://example.com/news/1", KindURL},
		{"  http://localhost:8080/a?b=c  ", KindURL},
		{"ftp://example.com/file", KindText},
		{"https://", KindText},
		{"see https://example.com for details", KindText},
		{"<p>Hello</p>", KindHTML},
		{"a < b and c > d", KindHTML},
		{"a < b only", KindText},
		{"Plain article text.", KindText},
		{"", KindText},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Detect(tt.input); got != tt.want {
				t.Errorf("Detect(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolve_TextAndHTML(t *testing.T) {
	in, info, err := Resolve(context.Background(), "  Just text.  ", nil)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if in != model.PlainText("Just text.") || info.Source != "text" || info.Extracted {
		t.Errorf("text input resolved to %+v %+v", in, info)
	}

	in, info, err = Resolve(context.Background(), "<p>Markup</p>", nil)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if in.Kind != model.KindHTML || info.Source != "html" || !info.Extracted {
		t.Errorf("html input resolved to %+v %+v", in, info)
	}
}

func TestResolve_URL(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, "<html><body><p>Fetched story.</p></body></html>")
	}))
	defer srv.Close()

	in, info, err := Resolve(context.Background(), srv.URL+"/story", NewFetcher(time.Second))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if in.Kind != model.KindHTML || !strings.Contains(in.Content, "Fetched story.") {
		t.Errorf("input = %+v, want fetched HTML", in)
	}
	if info.Source != "url" || info.URL != srv.URL+"/story" || !info.Extracted {
		t.Errorf("info = %+v", info)
	}
	if !strings.Contains(gotUA, "BiasLens") {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestResolve_URLWithoutFetcher(t *testing.T) {
	if _, _, err := Resolve(context.Background(), "https://example.com", nil); err == nil {
		t.Error("expected error when no fetcher is available")
	}
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := NewFetcher(0).Fetch(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "410") {
		t.Errorf("error = %v, want status 410", err)
	}
}

func TestFetch_DecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "café" in Latin-1.
		w.Write([]byte{'<', 'p', '>', 'c', 'a', 'f', 0xe9, '<', '/', 'p', '>'})
	}))
	defer srv.Close()

	got, err := NewFetcher(time.Second).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if got != "<p>café</p>" {
		t.Errorf("Fetch() = %q, want UTF-8 decoded body", got)
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	if _, err := NewFetcher(50*time.Millisecond).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("fetch did not honor its timeout")
	}
}

func TestForKind(t *testing.T) {
	in, info, err := ForKind(KindHTML, "<p>x</p>")
	if err != nil || in.Kind != model.KindHTML || info.Source != "html" {
		t.Errorf("ForKind(html) = %+v %+v %v", in, info, err)
	}
	if _, _, err := ForKind(KindURL, "https://example.com"); err == nil {
		t.Error("ForKind(url) should be rejected")
	}
}
