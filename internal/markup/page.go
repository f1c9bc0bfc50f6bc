package markup

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/BishopRed90/galleryman/internal/model"
)

// initialStateMarker は詳細ページ中の初期状態JSONの開始マーカー。
const initialStateMarker = `window.__INITIAL_STATE__ = JSON.parse("`

// PageExtractor はHTML詳細ページからジャーナル本文を取り出す。
// API応答に本文ツリーが含まれない場合のフォールバック経路として使う。
type PageExtractor struct {
	logger *slog.Logger
}

// NewPageExtractor はPageExtractorの新しいインスタンスを生成する。
func NewPageExtractor(logger *slog.Logger) *PageExtractor {
	return &PageExtractor{logger: logger}
}

// JournalHTML は詳細ページのDOMからジャーナル本文HTMLを取り出す。
// 本文は「Literature Text」見出しの直後のdivに置かれる。
// 見つからない場合は空文字列とfalseを返す。
func (e *PageExtractor) JournalHTML(page string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		e.logger.Warn("詳細ページのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", false
	}

	var body string
	doc.Find("h2").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.TrimSpace(sel.Text()) != "Literature Text" {
			return true
		}
		div := sel.Parent().Next()
		if !div.Is("div") {
			return true
		}
		if h, err := div.Html(); err == nil {
			body = h
		}
		return false
	})

	if body == "" {
		return "", false
	}
	return body, true
}

// InitialStateTextContent は詳細ページの__INITIAL_STATE__ JSONから
// リッチテキスト本文を取り出す。DOMからの抽出に失敗した場合の最終手段。
func (e *PageExtractor) InitialStateTextContent(page string) (*model.TextContent, error) {
	idx := strings.Index(page, initialStateMarker)
	if idx < 0 {
		return nil, fmt.Errorf("ページ中に__INITIAL_STATE__が見つかりませんでした")
	}
	rest := page[idx+len(initialStateMarker):]
	end := strings.Index(rest, `");`)
	if end < 0 {
		return nil, fmt.Errorf("__INITIAL_STATE__の終端が見つかりませんでした")
	}

	// JSON.parseへ渡される文字列リテラルのエスケープを解除する
	raw := strings.NewReplacer(`\\`, `\`, `\'`, `'`, `\"`, `"`).Replace(rest[:end])

	var state struct {
		Entities struct {
			Deviation map[string]struct {
				TextContent *model.TextContent `json:"textContent"`
			} `json:"deviation"`
		} `json:"@@entities"`
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("__INITIAL_STATE__のパースに失敗しました: %w", err)
	}

	for _, entry := range state.Entities.Deviation {
		if entry.TextContent != nil {
			return entry.TextContent, nil
		}
	}
	return nil, fmt.Errorf("__INITIAL_STATE__に本文が見つかりませんでした")
}
