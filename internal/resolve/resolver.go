// Package resolve はコンテンツ解決パイプラインを提供する。
// 1つのデビエーションを入力として、どのメディアソースをどの優先順位で
// 出力するかを決定し、順序付きのEmission列を生成する。
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"regexp"
	"strconv"
	"strings"

	"github.com/BishopRed90/galleryman/internal/comments"
	"github.com/BishopRed90/galleryman/internal/deviantart"
	"github.com/BishopRed90/galleryman/internal/markup"
	"github.com/BishopRed90/galleryman/internal/model"
)

// wixmpCDNPrefix は書き換え対象となる配信CDNのURLプレフィックス。
const wixmpCDNPrefix = "https://images-wixmp-"

// JournalSource はジャーナル本文抽出に使うページ取得機能のインターフェース。
type JournalSource interface {
	FetchPage(ctx context.Context, rawurl string) (string, error)
}

// SanitizerService はアーカイブへ渡す前のHTMLサニタイズ機能のインターフェース。
type SanitizerService interface {
	Sanitize(rawHTML string) string
}

// Options は解決パイプラインの動作設定。
type Options struct {
	JournalMode             string // html / text / markdown / none
	Quality                 string // 画質書き換え: 数値文字列、"png"、空で無効
	OriginalQuality         bool   // 合成トークンによる解像度制限の解除
	FetchOriginal           bool   // ダウンロード記述子による原寸取得
	IncludePreviews         bool
	PreviewsImages          bool
	UseIntermediary         bool
	IntermediaryIDThreshold int64
	ExtractComments         bool
}

// Sequence はマルチ画像作品内での連番情報。単一作品の場合はnilを渡す。
type Sequence struct {
	Num      int
	Count    int
	FileID   int64
	Filename string
}

var (
	reNonWord      = regexp.MustCompile(`\W`)
	reQualityParam = regexp.MustCompile(`,q_\d+`)
	reFullviewExt  = regexp.MustCompile(`-fullview\.[a-z0-9]+\?`)
	reIntermediary = regexp.MustCompile(`(/f/[^/]+/[^/]+)/v\d+/.*`)
)

// Resolver はデビエーション1件をEmission列へ解決する。
// 生のデビエーションは変更せず、解決時に決まる値はEmissionへ蓄積する。
type Resolver struct {
	source    JournalSource
	premium   *PremiumCoordinator
	renderer  *markup.Renderer
	pages     *markup.PageExtractor
	flattener *comments.Flattener
	sanitizer SanitizerService
	logger    *slog.Logger
	opts      Options
}

// NewResolver はResolverの新しいインスタンスを生成する。
// premium・flattener・sanitizerはnil可（対応する段が無効になる）。
func NewResolver(
	source JournalSource,
	premium *PremiumCoordinator,
	renderer *markup.Renderer,
	pages *markup.PageExtractor,
	flattener *comments.Flattener,
	sanitizer SanitizerService,
	logger *slog.Logger,
	opts Options,
) *Resolver {
	return &Resolver{
		source:    source,
		premium:   premium,
		renderer:  renderer,
		pages:     pages,
		flattener: flattener,
		sanitizer: sanitizer,
		logger:    logger,
		opts:      opts,
	}
}

// Resolve はデビエーション1件を順序付きEmission列へ解決する。
//
// 段階ごとに最初に一致した規則が適用され、複数の段がそれぞれ出力できる。
// Directoryは必ずメディアより先に、各アイテムにつき1回だけ出力される。
// 解決途中で必須フィールドの欠落を検出した場合、そのアイテムの残りの
// 段だけを中断し、それまでのEmissionと分類済みエラーを返す。
func (r *Resolver) Resolve(ctx context.Context, dev *model.Deviation, seq *Sequence) ([]model.Emission, error) {
	if dev.IsDeleted {
		r.logger.Debug("削除済みアイテムをスキップします",
			slog.Int64("deviation_id", dev.DeviationID),
		)
		return nil, nil
	}

	// 子要素未解決のギャラリー親は詳細取得後の再処理に回す
	if dev.IsMultiImage && dev.Extended == nil {
		return []model.Emission{{Kind: model.EmissionQueue, Item: dev}}, nil
	}

	if dev.TierAccess == "locked" {
		r.logger.Debug("アクセスロック中のアイテムをスキップします",
			slog.Int64("deviation_id", dev.DeviationID),
		)
		return nil, nil
	}

	if dev.IsAccessGated() {
		if r.premium == nil {
			return nil, nil
		}
		resolved, err := r.premium.ResolveGated(ctx, dev)
		if err != nil {
			return nil, err
		}
		if resolved == nil {
			return nil, nil
		}
		dev = resolved
	}

	index := dev.Index()
	base36 := model.Base36FromID(index)
	stem := filenameStem(dev, base36, seq)

	var emissions []model.Emission

	dir := model.Emission{
		Kind:        model.EmissionDirectory,
		Index:       index,
		IndexBase36: base36,
		Stem:        stem,
		Item:        dev,
	}
	if seq != nil {
		dir.Num = seq.Num
		dir.Count = seq.Count
		dir.FileID = seq.FileID
	}
	if r.opts.ExtractComments && r.flattener != nil &&
		dev.Stats != nil && dev.Stats.Comments > 0 {
		cs, err := r.flattener.Flatten(ctx, index)
		if err != nil {
			r.logger.Warn("コメントの取得に失敗しました",
				slog.Int64("deviation_id", index),
				slog.String("error", err.Error()),
			)
		} else {
			dir.Comments = cs
		}
	}
	emissions = append(emissions, dir)

	primary, err := r.resolvePrimary(dev, index, base36, stem, seq)
	if err != nil {
		return emissions, err
	}
	if primary != nil {
		emissions = append(emissions, *primary)
	}

	if len(dev.Videos) > 0 {
		if e := r.resolveVideo(dev, index, base36, stem, seq); e != nil {
			emissions = append(emissions, *e)
		}
	}

	if dev.Flash != nil && dev.Flash.Src != "" {
		emissions = append(emissions, r.newURLEmission(
			dev, dev.Flash.Src, nil, true, index, base36, stem, seq))
	}

	if r.opts.JournalMode != "" && r.opts.JournalMode != "none" {
		journal, err := r.resolveJournal(ctx, dev, index, base36, stem)
		if err != nil {
			return emissions, err
		}
		if journal != nil {
			emissions = append(emissions, *journal)
		}
	}

	if r.opts.IncludePreviews && dev.Preview != nil && dev.Preview.Src != "" {
		if e := r.resolvePreview(dev, primary, index, base36, stem, seq); e != nil {
			emissions = append(emissions, *e)
		}
	}

	return emissions, nil
}

// resolvePrimary は主メディアのEmissionを解決する。
// 原寸取得が有効な場合のダウンロード記述子 → インラインメディア →
// コンテンツ記述子の優先順。原寸取得が無効な場合、ダウンロード可能な
// アイテムもインラインメディアとして解決される。
func (r *Resolver) resolvePrimary(dev *model.Deviation, index int64, base36, stem string, seq *Sequence) (*model.Emission, error) {
	if r.opts.FetchOriginal && dev.IsDownloadable && dev.DeviationUUID() != "" {
		if dev.Extended == nil || dev.Extended.Download == nil {
			return nil, model.NewMalformedItemError("extended.download")
		}
		dl := dev.Extended.Download
		e := r.newURLEmission(dev, dl.URL, nil, true, index, base36, stem, seq)
		e.Filesize = dl.Filesize
		e.Extension = model.DeriveExt(dl.Type, dl.URL)
		return &e, nil
	}

	if dev.Media != nil && dev.Media.BaseURI != "" {
		src := dev.Media.Source()
		if src == "" {
			return nil, model.NewMalformedItemError("media.baseUri")
		}
		src, fallbacks, original := r.transformMedia(src, index)
		e := r.newURLEmission(dev, src, fallbacks, original, index, base36, stem, seq)
		e.Filesize = dev.Media.Filesize()
		return &e, nil
	}

	if dev.Content != nil && dev.Content.Src != "" {
		src, fallbacks, original := r.transformMedia(dev.Content.Src, index)
		e := r.newURLEmission(dev, src, fallbacks, original, index, base36, stem, seq)
		e.Filesize = dev.Content.Filesize
		return &e, nil
	}

	return nil, nil
}

// transformMedia はメディアソースURLへ書き換え規則を適用する。
// 戻り値は (書き換え後URL, フォールバックURL列, 原寸フラグ)。
//
// 合成トークンが有効な場合は短命トークンを解像度制限のないトークンへ
// 差し替える。無効な場合、旧世代の数値IDを持つ作品には中間CDNパスへの
// 切り替えを、さらに画質パラメータの書き換えを適用する。
// 書き換え前のURLはフォールバック列に記録され、取得失敗時の再試行に使う。
func (r *Resolver) transformMedia(src string, index int64) (string, []string, bool) {
	if r.opts.OriginalQuality {
		if rewritten, ok := r.rewriteToken(src); ok {
			return rewritten, []string{src}, true
		}
	}

	if !strings.HasPrefix(src, wixmpCDNPrefix) {
		return src, nil, !strings.Contains(src, "/v1/")
	}

	original := !strings.Contains(src, "/v1/")
	var fallbacks []string

	if r.opts.UseIntermediary && index <= r.opts.IntermediaryIDThreshold {
		rewritten := reIntermediary.ReplaceAllString(src, "/intermediary$1")
		if rewritten != src {
			fallbacks = append(fallbacks, src)
			src = rewritten
			original = false
		}
	}

	switch {
	case r.opts.Quality == "png":
		src = replaceFirst(reFullviewExt, src, "-fullview.png?")
	case r.opts.Quality != "":
		src = replaceFirst(reQualityParam, src, ",q_"+r.opts.Quality)
	}

	return src, fallbacks, original
}

// rewriteToken は配信CDNのURLのトークンを合成トークンへ差し替える。
// "/v1/"セグメントを持たないURLは対象外としてfalseを返す。
func (r *Resolver) rewriteToken(src string) (string, bool) {
	base, _, found := strings.Cut(src, "/v1/")
	if !found {
		return "", false
	}

	// images-wixmpホストは合成トークンで401を返すが、wixmpホストは受け付ける
	base = strings.Replace(base, "//images-wixmp", "//wixmp", 1)

	_, path, found := strings.Cut(base, "/f/")
	if !found {
		return "", false
	}

	token, err := deviantart.SynthesizeToken("/f/" + path)
	if err != nil {
		r.logger.Warn("合成トークンの生成に失敗しました",
			slog.String("error", err.Error()),
		)
		return "", false
	}
	return base + "?token=" + token, true
}

// resolveVideo は動画リストから画質ラベルが数値最大のものを選んで出力する。
func (r *Resolver) resolveVideo(dev *model.Deviation, index int64, base36, stem string, seq *Sequence) *model.Emission {
	best := -1
	bestQuality := -1
	for i, v := range dev.Videos {
		if q := parseQuality(v.Quality); q > bestQuality {
			bestQuality = q
			best = i
		}
	}
	if best < 0 || dev.Videos[best].Src == "" {
		return nil
	}

	video := dev.Videos[best]
	e := r.newURLEmission(dev, video.Src, nil, false, index, base36, stem, seq)
	e.Filesize = video.Filesize
	return &e
}

// parseQuality は"1080p"のような画質ラベルの先頭数値部を読み取る。
func parseQuality(label string) int {
	end := 0
	for end < len(label) && label[end] >= '0' && label[end] <= '9' {
		end++
	}
	if end == 0 {
		return -1
	}
	n, _ := strconv.Atoi(label[:end])
	return n
}

// resolvePreview はプレビューのEmissionを解決する。
// プレビューが画像MIME以外に限定されている場合、主出力が既に画像なら出力しない。
func (r *Resolver) resolvePreview(dev *model.Deviation, primary *model.Emission, index int64, base36, stem string, seq *Sequence) *model.Emission {
	if !r.opts.PreviewsImages {
		ext := ""
		if primary != nil {
			ext = primary.Extension
		}
		// 主出力が既に画像ならプレビューは冗長なので出力しない
		if strings.HasPrefix(mime.TypeByExtension("."+ext), "image/") {
			return nil
		}
	}

	e := r.newURLEmission(dev, dev.Preview.Src, nil, false, index, base36, stem, seq)
	e.IsPreview = true
	e.Filesize = dev.Preview.Filesize
	return &e
}

// newURLEmission はURL出力のEmissionを組み立てる。
// 拡張子はソースURLの末尾セグメントから導出する。導出できない場合は
// 空のままとし、ダウンロード側で明示指定を要求する。
func (r *Resolver) newURLEmission(dev *model.Deviation, src string, fallbacks []string, original bool, index int64, base36, stem string, seq *Sequence) model.Emission {
	e := model.Emission{
		Kind:        model.EmissionURL,
		Source:      src,
		Fallbacks:   fallbacks,
		Index:       index,
		IndexBase36: base36,
		Stem:        stem,
		Extension:   model.ExtFromURL(src),
		IsOriginal:  original,
		Item:        dev,
	}
	if seq != nil {
		e.Num = seq.Num
		e.Count = seq.Count
		e.FileID = seq.FileID
	}
	return e
}

// resolveJournal はリッチテキスト本文を抽出・レンダリングして出力する。
// 本文ツリーはインラインのマークアップ → 詳細ページ → 抜粋の順で探す。
// ジャーナルを持たないアイテムでは何も出力しない。
func (r *Resolver) resolveJournal(ctx context.Context, dev *model.Deviation, index int64, base36, stem string) (*model.Emission, error) {
	if dev.TextContent == nil {
		return nil, nil
	}

	body, err := r.journalHTML(ctx, dev, index)
	if err != nil {
		return nil, err
	}
	if body == "" {
		r.logger.Warn("ジャーナル本文が空です",
			slog.Int64("deviation_id", index),
		)
	}
	if r.sanitizer != nil {
		body = r.sanitizer.Sanitize(body)
	}

	meta := markup.JournalMeta{
		Title:    dev.Title,
		URL:      dev.URL,
		Username: dev.Username(),
		UserURL:  "https://www.deviantart.com/" + strings.ToLower(dev.Username()) + "/",
		Date:     dev.PublishedAt(),
	}

	e := model.Emission{
		Kind:        model.EmissionURL,
		Index:       index,
		IndexBase36: base36,
		Stem:        stem,
		IsOriginal:  true,
		Item:        dev,
	}

	switch r.opts.JournalMode {
	case "text":
		e.Body = []byte(markup.WrapText(meta, markup.ToPlainText(body)))
		e.Extension = "txt"
		e.ContentType = "text/plain; charset=utf-8"
	case "markdown":
		md, err := markup.ToMarkdown(body)
		if err != nil {
			return nil, model.NewMalformedItemError("textContent.html")
		}
		e.Body = []byte(md)
		e.Extension = "md"
		e.ContentType = "text/markdown; charset=utf-8"
	default:
		e.Body = []byte(markup.WrapHTML(meta, body))
		e.Extension = "htm"
		e.ContentType = "text/html; charset=utf-8"
	}

	return &e, nil
}

// journalHTML はジャーナル本文のHTML断片を取得する。
func (r *Resolver) journalHTML(ctx context.Context, dev *model.Deviation, index int64) (string, error) {
	// インラインのマークアップがあればページ取得を省略できる
	html, ok, err := r.textContentToHTML(dev.TextContent, index)
	if err != nil {
		return "", err
	}
	if ok {
		return html, nil
	}

	if dev.URL == "" || r.source == nil {
		return "", model.NewMalformedItemError("url")
	}
	page, err := r.source.FetchPage(ctx, dev.URL)
	if err != nil {
		return "", err
	}

	if html, ok := r.pages.JournalHTML(page); ok {
		return html, nil
	}

	r.logger.Debug("ページからのジャーナル抽出に失敗したため__INITIAL_STATE__へフォールバックします",
		slog.Int64("deviation_id", index),
	)

	tc, err := r.pages.InitialStateTextContent(page)
	if err != nil {
		return "", model.NewMalformedItemError("textContent")
	}
	html, ok, err = r.textContentToHTML(tc, index)
	if err != nil {
		return "", err
	}
	if ok {
		return html, nil
	}
	return strings.ReplaceAll(tc.Excerpt, "\n", "<br />"), nil
}

// textContentToHTML は本文記述子をHTML断片へ変換する。
// マークアップがJSONでない場合はHTML文字列としてそのまま返す。
// tiptap形式はレンダラーへ渡し、それ以外のJSON形式は
// 未対応マークアップの分類済みエラーを返す。
func (r *Resolver) textContentToHTML(tc *model.TextContent, index int64) (string, bool, error) {
	if tc == nil || tc.HTML == nil || tc.HTML.Markup == "" {
		return "", false, nil
	}
	m := tc.HTML
	if m.Markup[0] != '{' {
		return m.Markup, true, nil
	}

	if m.Type == "tiptap" {
		doc, err := markup.ParseDocument(m.Markup)
		if err != nil {
			r.logger.Warn("ジャーナルマークアップのパースに失敗しました",
				slog.Int64("deviation_id", index),
				slog.String("error", err.Error()),
			)
			return "", false, nil
		}
		return r.renderer.Render(doc), true, nil
	}

	return "", false, model.NewUnsupportedMarkupError(m.Type)
}

// filenameStem はファイル名語幹をメタデータから組み立てる。
// 英数字以外をアンダースコアへ正規化した "題名_by_作者-d識別子" 形式。
func filenameStem(dev *model.Deviation, base36 string, seq *Sequence) string {
	if seq != nil && seq.Filename != "" {
		return seq.Filename
	}
	title := reNonWord.ReplaceAllString(strings.ToLower(dev.Title), "_")
	author := reNonWord.ReplaceAllString(strings.ToLower(dev.Username()), "_")
	return fmt.Sprintf("%s_by_%s-d%s", title, author, base36)
}

// replaceFirst は正規表現の最初の一致だけを置換する。
func replaceFirst(re *regexp.Regexp, s, repl string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + repl + s[loc[1]:]
}
