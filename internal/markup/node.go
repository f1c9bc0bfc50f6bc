// Package markup はリッチテキスト文書ツリーのHTMLレンダリングを提供する。
// tiptap形式のJSON文書を等価なHTMLへ変換するレンダラー、
// 詳細ページからの本文抽出、ジャーナルの出力テンプレートを含む。
package markup

import (
	"encoding/json"
	"fmt"

	"github.com/BishopRed90/galleryman/internal/model"
)

// ノード種別の語彙。これ以外の種別はレンダリング時に警告してスキップされる。
const (
	NodeParagraph      = "paragraph"
	NodeText           = "text"
	NodeHeading        = "heading"
	NodeBulletList     = "bulletList"
	NodeOrderedList    = "orderedList"
	NodeListItem       = "listItem"
	NodeBlockquote     = "blockquote"
	NodeAnchor         = "anchor"
	NodeHardBreak      = "hardBreak"
	NodeHorizontalRule = "horizontalRule"
	NodeDeviation      = "da-deviation"
	NodeMention        = "da-mention"
	NodeGif            = "da-gif"
	NodeVideo          = "da-video"
)

// Attrs はノード種別ごとの属性を表す。
// 種別に応じて使われるフィールドのみが埋まる。
type Attrs struct {
	TextAlign   string           `json:"textAlign"`
	Indentation int              `json:"indentation"`
	IndentType  string           `json:"indentType"` // "line" またはブロックインデント
	Level       int              `json:"level"`      // 見出しレベル
	ID          string           `json:"id"`         // アンカーID
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	Alignment   string           `json:"alignment"`
	URL         string           `json:"url"`
	Src         string           `json:"src"`
	User        *model.Author    `json:"user"`      // da-mention の対象ユーザー
	Deviation   *model.Deviation `json:"deviation"` // da-deviation の埋め込み対象
}

// Mark はテキストランに適用されるインライン装飾1件を表す。
// 属性はマーク種別ごとに異なるため生のまま保持する。
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs"`
}

// AttrString はマーク属性から文字列値を読み取る。欠落時は空文字列。
func (m *Mark) AttrString(key string) string {
	if m.Attrs == nil {
		return ""
	}
	if s, ok := m.Attrs[key].(string); ok {
		return s
	}
	return ""
}

// Node はリッチテキスト文書ツリーの1ノードを表す。
// 閉じた語彙のタグ付きユニオンとして扱い、レンダラーが種別ごとに分岐する。
type Node struct {
	Type    string `json:"type"`
	Attrs   *Attrs `json:"attrs"`
	Marks   []Mark `json:"marks"`
	Text    string `json:"text"`
	Content []Node `json:"content"`
}

// document はtiptapマークアップ文字列のトップレベル構造。
type document struct {
	Document Node `json:"document"`
}

// ParseDocument はtiptapマークアップのJSON文字列から文書ルートノードを取り出す。
func ParseDocument(markup string) (*Node, error) {
	var doc document
	if err := json.Unmarshal([]byte(markup), &doc); err != nil {
		return nil, fmt.Errorf("マークアップのパースに失敗しました: %w", err)
	}
	return &doc.Document, nil
}
