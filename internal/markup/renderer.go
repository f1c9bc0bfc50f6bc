package markup

import (
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BishopRed90/galleryman/internal/model"
)

// serviceRoot はメンションのリンク先に使うサービスルートURL。
const serviceRoot = "https://www.deviantart.com"

// defaultLinkRel はリンクマークのrel属性デフォルト値。
const defaultLinkRel = "noopener noreferrer nofollow ugc"

// Renderer はリッチテキスト文書ツリーをHTMLへ変換する。
// 状態を持たず、同一入力に対して常に同一出力を返す。
// 未知のノード/マーク種別は警告ログを出してスキップし、処理を続行する。
type Renderer struct {
	logger *slog.Logger
}

// NewRenderer はRendererの新しいインスタンスを生成する。
func NewRenderer(logger *slog.Logger) *Renderer {
	return &Renderer{logger: logger}
}

// Render は文書ルートノードをHTML文字列へ変換する。
// 出力はビューワ互換のラッパーdivで包まれる。
func (r *Renderer) Render(doc *Node) string {
	var b strings.Builder
	b.WriteString(`<div data-editor-viewer="1" class="_83r8m _2CKTq _3NjDa mDnFl">`)
	for i := range doc.Content {
		r.renderNode(&b, &doc.Content[i])
	}
	b.WriteString("</div>")
	return b.String()
}

// renderNode はノード種別ごとの分岐でHTMLを出力バッファへ追記する。
// 単一パスの再帰下降で、バックトラックは行わない。
func (r *Renderer) renderNode(b *strings.Builder, n *Node) {
	switch n.Type {
	case NodeParagraph:
		if len(n.Content) == 0 {
			b.WriteString(`<p class="empty-p"><br/></p>`)
			return
		}
		b.WriteString(`<p style="`)
		if n.Attrs != nil {
			if n.Attrs.TextAlign != "" {
				b.WriteString("text-align:")
				b.WriteString(n.Attrs.TextAlign)
				b.WriteString(";")
			}
			writeIndentation(b, n.Attrs)
		}
		b.WriteString(`">`)
		r.renderChildren(b, n)
		b.WriteString("</p>")

	case NodeText:
		r.renderText(b, n)

	case NodeHeading:
		level := "3"
		align := "left"
		if n.Attrs != nil {
			if n.Attrs.Level != 0 {
				level = strconv.Itoa(n.Attrs.Level)
			}
			if n.Attrs.TextAlign != "" {
				align = n.Attrs.TextAlign
			}
		}
		b.WriteString("<h")
		b.WriteString(level)
		b.WriteString(` style="text-align:`)
		b.WriteString(align)
		b.WriteString(`"><span style="`)
		writeIndentation(b, n.Attrs)
		b.WriteString(`">`)
		r.renderChildren(b, n)
		b.WriteString("</span></h")
		b.WriteString(level)
		b.WriteString(">")

	case NodeBulletList:
		b.WriteString("<ul>")
		r.renderChildren(b, n)
		b.WriteString("</ul>")

	case NodeOrderedList:
		b.WriteString("<ol>")
		r.renderChildren(b, n)
		b.WriteString("</ol>")

	case NodeListItem:
		b.WriteString("<li>")
		r.renderChildren(b, n)
		b.WriteString("</li>")

	case NodeBlockquote:
		b.WriteString("<blockquote>")
		r.renderChildren(b, n)
		b.WriteString("</blockquote>")

	case NodeAnchor:
		id := ""
		if n.Attrs != nil {
			id = n.Attrs.ID
		}
		b.WriteString(`<a id="`)
		b.WriteString(html.EscapeString(id))
		b.WriteString(`" data-testid="anchor"></a>`)

	case NodeHardBreak:
		b.WriteString("<br/><br/>")

	case NodeHorizontalRule:
		b.WriteString("<hr/>")

	case NodeDeviation:
		r.renderDeviation(b, n)

	case NodeMention:
		r.renderMention(b, n)

	case NodeGif:
		r.renderGif(b, n)

	case NodeVideo:
		r.renderVideo(b, n)

	default:
		r.logger.Warn("未対応のコンテンツ種別です",
			slog.String("type", n.Type),
		)
	}
}

// renderChildren は子ノード列を順にレンダリングする。
func (r *Renderer) renderChildren(b *strings.Builder, n *Node) {
	for i := range n.Content {
		r.renderNode(b, &n.Content[i])
	}
}

// renderText はテキストノードをマーク付きでレンダリングする。
// マークは列挙順に開きタグを出力し、閉じタグは逆順に出力する。
// これによりソース中のマーク順序に関わらず整形式のネストが保たれる。
func (r *Renderer) renderText(b *strings.Builder, n *Node) {
	if len(n.Marks) == 0 {
		b.WriteString(html.EscapeString(n.Text))
		return
	}

	var close []string
	for i := range n.Marks {
		mark := &n.Marks[i]
		switch mark.Type {
		case "link":
			b.WriteString(`<a href="`)
			b.WriteString(html.EscapeString(mark.AttrString("href")))
			if target := mark.AttrString("target"); target != "" {
				b.WriteString(`" target="`)
				b.WriteString(target)
			}
			b.WriteString(`" rel="`)
			if rel := mark.AttrString("rel"); rel != "" {
				b.WriteString(rel)
			} else {
				b.WriteString(defaultLinkRel)
			}
			b.WriteString(`">`)
			close = append(close, "</a>")
		case "bold":
			b.WriteString("<strong>")
			close = append(close, "</strong>")
		case "italic":
			b.WriteString("<em>")
			close = append(close, "</em>")
		case "underline":
			b.WriteString("<u>")
			close = append(close, "</u>")
		case "strike":
			b.WriteString("<s>")
			close = append(close, "</s>")
		case "textStyle":
			// 属性を持たないtextStyleは見た目に影響しないため素通しする
			if len(mark.Attrs) != 0 {
				r.logger.Warn("未対応のテキストマークです",
					slog.String("type", mark.Type),
				)
			}
		default:
			r.logger.Warn("未対応のテキストマークです",
				slog.String("type", mark.Type),
			)
		}
	}

	b.WriteString(html.EscapeString(n.Text))
	for i := len(close) - 1; i >= 0; i-- {
		b.WriteString(close[i])
	}
}

// renderMention はユーザーメンションをプロフィールへのリンクとしてレンダリングする。
func (r *Renderer) renderMention(b *strings.Builder, n *Node) {
	if n.Attrs == nil || n.Attrs.User == nil {
		r.logger.Warn("メンションノードにユーザーがありません")
		return
	}
	username := n.Attrs.User.Username
	b.WriteString(`<a href="`)
	b.WriteString(serviceRoot)
	b.WriteString("/")
	b.WriteString(html.EscapeString(strings.ToLower(username)))
	b.WriteString(`" data-da-type="da-mention" data-user="">@<!-- -->`)
	b.WriteString(html.EscapeString(username))
	b.WriteString("</a>")
}

// renderGif は埋め込みアニメーションをループ再生のvideoタグとしてレンダリングする。
func (r *Renderer) renderGif(b *strings.Builder, n *Node) {
	var width, height, alignment, url string
	if n.Attrs != nil {
		if n.Attrs.Width != 0 {
			width = strconv.Itoa(n.Attrs.Width)
		}
		if n.Attrs.Height != 0 {
			height = strconv.Itoa(n.Attrs.Height)
		}
		alignment = n.Attrs.Alignment
		url = html.EscapeString(n.Attrs.URL)
	}

	b.WriteString(`<div data-da-type="da-gif" data-width="`)
	b.WriteString(width)
	b.WriteString(`" data-height="`)
	b.WriteString(height)
	b.WriteString(`" data-alignment="`)
	b.WriteString(alignment)
	b.WriteString(`" data-url="`)
	b.WriteString(url)
	b.WriteString(`" class="t61qu"><video role="img" autoPlay="" muted="" ` +
		`loop="" style="pointer-events:none" controlsList="nofullscreen" ` +
		`playsInline="" aria-label="gif" data-da-type="da-gif" width="`)
	b.WriteString(width)
	b.WriteString(`" height="`)
	b.WriteString(height)
	b.WriteString(`" src="`)
	b.WriteString(url)
	b.WriteString(`" class="_1Fkk6"></video></div>`)
}

// renderVideo は埋め込み動画をvideoタグとしてレンダリングする。
func (r *Renderer) renderVideo(b *strings.Builder, n *Node) {
	var src string
	if n.Attrs != nil {
		src = html.EscapeString(n.Attrs.Src)
	}
	b.WriteString(`<div data-testid="video" data-da-type="da-video" data-src="`)
	b.WriteString(src)
	b.WriteString(`" class="_1Uxvs"><div data-canfs="yes" data-testid="video-inner" ` +
		`class="main-video" style="width:780px;height:438px">` +
		`<div style="width:780px;height:438px"><video src="`)
	b.WriteString(src)
	b.WriteString(`" style="width:100%;height:100%;" preload="auto" controls="">` +
		`</video></div></div></div>`)
}

// renderDeviation は埋め込み作品をレンダリングする。
// 解決可能なメディアを持つ場合は画像figure（幅780px基準のアスペクト比で
// 高さを計算）、メディアを持たないジャーナルの場合は抜粋カードを出力する。
func (r *Renderer) renderDeviation(b *strings.Builder, n *Node) {
	if n.Attrs == nil || n.Attrs.Deviation == nil {
		r.logger.Warn("埋め込みノードに作品がありません")
		return
	}
	dev := n.Attrs.Deviation

	b.WriteString(`<div class="jjNX2">`)
	b.WriteString(`<figure class="Qf-HY" data-da-type="da-deviation" ` +
		`data-deviation="" data-width="" data-link="" data-alignment="center">`)

	switch {
	case dev.Media != nil && dev.Media.BaseURI != "":
		url := embeddedMediaURL(dev.Media)
		full, _ := dev.Media.Variant("fullview")

		b.WriteString(`<a href="`)
		b.WriteString(html.EscapeString(dev.URL))
		b.WriteString(`" class="_3ouD5" style="margin:0 auto;display:flex;` +
			`align-items:center;justify-content:center;overflow:hidden;` +
			`width:780px;height:`)
		if full.W > 0 {
			height := 780 * float64(full.H) / float64(full.W)
			b.WriteString(strconv.FormatFloat(height, 'g', -1, 64))
		} else {
			b.WriteString("0")
		}
		b.WriteString(`px">`)

		b.WriteString(`<img src="`)
		b.WriteString(html.EscapeString(url))
		b.WriteString(`" alt="`)
		b.WriteString(html.EscapeString(dev.Title))
		b.WriteString(`" style="width:100%;max-width:100%;display:block"/>`)
		b.WriteString("</a>")

	case dev.TextContent != nil:
		b.WriteString(`<div class="_32Hs4" style="width:350px">`)
		b.WriteString(`<a href="`)
		b.WriteString(html.EscapeString(dev.URL))
		b.WriteString(`" class="_3ouD5">`)
		b.WriteString(excerptCardHead)
		b.WriteString(html.EscapeString(dev.Title))
		b.WriteString(`</h3><div class="_2CPLm">`)
		b.WriteString(html.EscapeString(dev.TextContent.Excerpt))
		b.WriteString("</div></section></a></div>")
	}

	b.WriteString("</figure></div>")
}

// excerptCardHead はジャーナル抜粋カードの定型部分。
const excerptCardHead = `<section class="Q91qI aG7Yi" style="width:350px;height:313px">` +
	`<div class="_16ECM _1xMkk" aria-hidden="true">` +
	`<svg height="100%" viewBox="0 0 15 12" preserveAspectRatio="xMidYMin slice" fill-rule="evenodd">` +
	`<linearGradient x1="87.8481761%" y1="16.3690766%" x2="45.4107524%" y2="71.4898596%" id="app-root-3">` +
	`<stop stop-color="#00FF62" offset="0%"></stop>` +
	`<stop stop-color="#3197EF" stop-opacity="0" offset="100%"></stop>` +
	`</linearGradient>` +
	`<text class="_2uqbc" fill="url(#app-root-3)" text-anchor="end" x="15" y="11">J</text>` +
	`</svg></div><div class="_1xz9u">Literature</div><h3 class="_2WvKD">`

// embeddedMediaURL は埋め込み作品のプレビュー表示URLを組み立てる。
// トークンが1つだけの場合はpreviewバリエーションのテンプレートを適用し、
// 末尾トークンをクエリとして付与する。
func embeddedMediaURL(m *model.Media) string {
	var b strings.Builder
	b.WriteString(m.BaseURI)

	if len(m.Token) > 0 {
		if len(m.Token) == 1 {
			if v, ok := m.Variant("preview"); ok && v.C != "" {
				b.WriteString(strings.ReplaceAll(v.C, "<prettyName>", m.PrettyName))
			}
		}
		b.WriteString("?token=")
		b.WriteString(m.Token[len(m.Token)-1])
	}

	return b.String()
}

// writeIndentation はインデント属性をCSSプロパティとして出力する。
// インデント量は1段あたり24px。indentTypeが"line"の場合はtext-indent、
// それ以外はmargin-inline-startを使う。
func writeIndentation(b *strings.Builder, attrs *Attrs) {
	indent := 0
	itype := "margin-inline-start"
	if attrs != nil {
		indent = attrs.Indentation
		if attrs.IndentType == "line" {
			itype = "text-indent"
		}
	}
	b.WriteString(itype)
	b.WriteString(":")
	b.WriteString(strconv.Itoa(indent * 24))
	b.WriteString("px")
}
