package markup

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testPageExtractor() *PageExtractor {
	return NewPageExtractor(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

// DOMからジャーナル本文が取り出せることを検証
func TestPageExtractor_JournalHTML(t *testing.T) {
	page := `<html><body><section><div><span>` +
		`<h2>Literature Text</h2></span><div><p>the journal body</p></div>` +
		`</section></body></html>`

	e := testPageExtractor()
	body, ok := e.JournalHTML(page)
	if !ok {
		t.Fatal("JournalHTML() ok = false, want true")
	}
	if !strings.Contains(body, "<p>the journal body</p>") {
		t.Errorf("JournalHTML() = %q, want journal body", body)
	}
}

// 本文のないページでfalseが返ることを検証
func TestPageExtractor_JournalHTML_NotFound(t *testing.T) {
	e := testPageExtractor()
	if _, ok := e.JournalHTML("<html><body><p>no journal here</p></body></html>"); ok {
		t.Error("JournalHTML() ok = true, want false")
	}
}

// __INITIAL_STATE__から本文が取り出せることを検証
func TestPageExtractor_InitialStateTextContent(t *testing.T) {
	page := `<script>window.__INITIAL_STATE__ = JSON.parse("` +
		`{\"@@entities\":{\"deviation\":{\"123\":{\"textContent\":` +
		`{\"excerpt\":\"short excerpt\",\"html\":{\"type\":\"tiptap\",\"markup\":\"{}\"}}}}}}` +
		`");</script>`

	e := testPageExtractor()
	tc, err := e.InitialStateTextContent(page)
	if err != nil {
		t.Fatalf("InitialStateTextContent() error = %v", err)
	}
	if tc.Excerpt != "short excerpt" {
		t.Errorf("tc.Excerpt = %q, want %q", tc.Excerpt, "short excerpt")
	}
	if tc.HTML == nil || tc.HTML.Type != "tiptap" {
		t.Errorf("tc.HTML = %+v, want tiptap markup", tc.HTML)
	}
}

// マーカーのないページでエラーになることを検証
func TestPageExtractor_InitialStateTextContent_Missing(t *testing.T) {
	e := testPageExtractor()
	if _, err := e.InitialStateTextContent("<html></html>"); err == nil {
		t.Error("expected error for page without initial state")
	}
}
