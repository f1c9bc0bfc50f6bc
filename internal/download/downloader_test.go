package download

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/BishopRed90/galleryman/internal/model"
)

// allowAllValidator はテスト用にすべてのURLを許可するバリデータ。
type allowAllValidator struct{}

func (allowAllValidator) ValidateURL(string) error { return nil }

type staticArchive struct {
	exists bool
	calls  int
}

func (s *staticArchive) ArtifactExists(context.Context, int64, string) (bool, error) {
	s.calls++
	return s.exists, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestDownloader(t *testing.T, archive ArchiveChecker) (*Downloader, string) {
	t.Helper()
	dir := t.TempDir()
	d := NewDownloader(http.DefaultClient, allowAllValidator{}, archive,
		nil, testLogger(), dir, "{username}/{filename}.{extension}", 0)
	return d, dir
}

func urlEmission(src string) *model.Emission {
	return &model.Emission{
		Kind:      model.EmissionURL,
		Source:    src,
		Index:     42,
		Stem:      "art_by_user-d16",
		Extension: "bin",
		Item: &model.Deviation{
			DeviationID: 42,
			Author:      &model.Author{Username: "user"},
		},
	}
}

// URLからの取得とテンプレート展開先への保存を検証
func TestDownloader_FetchAndStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	d, dir := newTestDownloader(t, nil)
	got, err := d.Download(context.Background(), urlEmission(srv.URL+"/f.bin"))
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	if got.Path != "user/art_by_user-d16.bin" {
		t.Errorf("Path = %q, want templated path", got.Path)
	}
	if got.Bytes != int64(len("payload")) {
		t.Errorf("Bytes = %d, want %d", got.Bytes, len("payload"))
	}

	data, err := os.ReadFile(filepath.Join(dir, "user", "art_by_user-d16.bin"))
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("file content = %q, want %q", data, "payload")
	}
}

// 主ソース失敗時にフォールバックURLで再試行されることを検証
func TestDownloader_FallbackRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/primary" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("fallback payload"))
	}))
	defer srv.Close()

	d, _ := newTestDownloader(t, nil)
	e := urlEmission(srv.URL + "/primary")
	e.Fallbacks = []string{srv.URL + "/fallback"}

	got, err := d.Download(context.Background(), e)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if got.Bytes != int64(len("fallback payload")) {
		t.Errorf("Bytes = %d, want fallback content", got.Bytes)
	}
}

// 全ソース失敗時にエラーになることを検証
func TestDownloader_AllSourcesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d, _ := newTestDownloader(t, nil)
	if _, err := d.Download(context.Background(), urlEmission(srv.URL)); err == nil {
		t.Error("expected error when all sources fail")
	}
}

// アーカイブ済みアーティファクトがHTTP取得なしでスキップされることを検証
func TestDownloader_ArchiveSkip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected HTTP request for archived artifact")
	}))
	defer srv.Close()

	archive := &staticArchive{exists: true}
	d, _ := newTestDownloader(t, archive)

	got, err := d.Download(context.Background(), urlEmission(srv.URL))
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if !got.Skipped {
		t.Error("Skipped = false, want true")
	}
	if archive.calls != 1 {
		t.Errorf("archive calls = %d, want 1", archive.calls)
	}
}

// インライン本文がそのまま書き出されることを検証
func TestDownloader_InlineBody(t *testing.T) {
	d, dir := newTestDownloader(t, nil)
	e := urlEmission("")
	e.Extension = "htm"
	e.Body = []byte("<html>journal</html>")

	got, err := d.Download(context.Background(), e)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(got.Path)))
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if string(data) != "<html>journal</html>" {
		t.Errorf("file content = %q", data)
	}
}

// URL検証に失敗したソースが取得されないことを検証
func TestDownloader_ValidatorBlocks(t *testing.T) {
	d := NewDownloader(http.DefaultClient, blockAllValidator{}, nil,
		nil, testLogger(), t.TempDir(), "{filename}.{extension}", 0)

	if _, err := d.Download(context.Background(), urlEmission("http://10.0.0.1/x")); err == nil {
		t.Error("expected error for blocked URL")
	}
}

type blockAllValidator struct{}

func (blockAllValidator) ValidateURL(string) error {
	return model.NewSSRFBlockedError()
}

// パステンプレート展開を検証
func TestBuildPath(t *testing.T) {
	tests := []struct {
		name     string
		template string
		metadata map[string]any
		want     string
	}{
		{
			"基本形",
			"{username}/{filename}.{extension}",
			map[string]any{"username": "alice", "filename": "art-d1", "extension": "png"},
			"alice/art-d1.png",
		},
		{
			"数値キー",
			"{index}_{num}.{extension}",
			map[string]any{"index": int64(99), "num": 2, "extension": "jpg"},
			"99_2.jpg",
		},
		{
			"未知のキーは空展開",
			"{username}/{nope}.{extension}",
			map[string]any{"username": "a", "extension": "png"},
			"a/.png",
		},
		{
			"区切り文字の無害化",
			"{username}/{filename}.{extension}",
			map[string]any{"username": "../evil", "filename": "a/b", "extension": "png"},
			"__evil/a_b.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildPath(tt.template, tt.metadata); got != tt.want {
				t.Errorf("BuildPath() = %q, want %q", got, tt.want)
			}
		})
	}
}
