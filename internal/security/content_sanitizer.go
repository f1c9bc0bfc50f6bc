// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はジャーナルや説明文のHTMLコンテンツをサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// ページから取り出したジャーナル本文をテンプレートへ埋め込む前、
// およびAPI応答に説明文を含める際に使用される。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// ジャーナル本文が使用するタグ（段落、見出し、リスト、整形、リンク、画像、動画）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// imgとvideoのsrc属性はhttpsスキームのみ許可される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// ポリシーはレンダラーが生成するジャーナルHTMLをそのまま通すよう調整されている:
//   - ブロック要素: p, div, span, h1〜h6, ul, ol, li, blockquote, figure, hr, br
//   - インライン整形: strong, em, u, s, sub, sup, code, pre
//   - div/span/p/h1〜h6 のclass属性とstyle属性（インデント指定に使用）
//   - aタグ: href, id, target, rel, data-testid, data-da-type, data-user
//   - img/videoタグ: srcはhttpsスキームのみ
//   - script, iframe, styleタグとon*イベント属性は許可リスト外のため除去される
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "u", "s", "sub", "sup",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"div", "span", "figure", "hr",
	)

	// レンダラーはインデントをstyle属性、装飾をclass属性で表現する
	p.AllowAttrs("class").OnElements("div", "span", "p", "figure", "h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("data-editor-viewer").OnElements("div")
	p.AllowAttrs("style").OnElements("p", "span", "h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowStyles("text-align", "text-indent", "margin-inline-start").Globally()

	// aタグ: アンカーとメンションのdata属性を保持する
	p.AllowAttrs("href", "id", "target", "rel").OnElements("a")
	p.AllowAttrs("data-testid", "data-da-type", "data-user").OnElements("a")
	p.AllowRelativeURLs(false)
	p.RequireNoReferrerOnLinks(true)

	// img/videoタグ: srcはhttpsスキームのみ許可（http, javascript, data等は拒否）
	p.AllowAttrs("src", "alt", "width", "height", "class").OnElements("img")
	p.AllowAttrs("src", "width", "height", "autoplay", "loop", "muted", "controls").OnElements("video")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
