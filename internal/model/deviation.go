// Package model はドメインモデルを定義する。
package model

import (
	"strconv"
	"strings"
	"time"
)

// Author は作品の作者を表す。
type Author struct {
	UserID   int64  `json:"userId"`
	UserUUID string `json:"useridUuid"`
	Username string `json:"username"`
	UserIcon string `json:"usericon"`
	Type     string `json:"type"`
}

// Stats は作品の統計情報を表す。
type Stats struct {
	Comments   int `json:"comments"`
	Favourites int `json:"favourites"`
}

// PremiumFolder はプレミアムフォルダのアクセスゲート記述子を表す。
// 閲覧権限のない作品にのみ付与される。
type PremiumFolder struct {
	Type        string `json:"type"` // "watchers" / "paid" など
	HasAccess   bool   `json:"hasAccess"`
	GalleryID   int64  `json:"galleryId"`
	GalleryURL  string `json:"galleryUrl"`
	GalleryName string `json:"galleryName"`
}

// VideoVariant は動画の画質バリエーションを表す。
type VideoVariant struct {
	Quality  string `json:"quality"` // "1080p" のような画質ラベル
	Src      string `json:"src"`
	Filesize int64  `json:"filesize"`
	Duration int    `json:"duration"`
}

// FlashAsset はレガシーFlash形式の添付を表す。
type FlashAsset struct {
	Src    string `json:"src"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// FileContent は src キー形式の単一ファイル記述子を表す。
// content / preview フィールドおよびダウンロードAPIの応答がこの形式をとる。
type FileContent struct {
	Src          string `json:"src"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Filesize     int64  `json:"filesize"`
	Transparency bool   `json:"transparency"`
}

// TextMarkup は本文マークアップとその形式を表す。
// Markup はtiptap形式の場合JSON文字列、それ以外はHTML文字列。
type TextMarkup struct {
	Type   string `json:"type"` // "tiptap" / "draft" / "writer"
	Markup string `json:"markup"`
}

// TextContent はリッチテキスト本文を表す。
type TextContent struct {
	Excerpt string      `json:"excerpt"`
	HTML    *TextMarkup `json:"html"`
}

// Download は詳細応答の拡張データに含まれる原寸ファイル記述子を表す。
type Download struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Filesize int64  `json:"filesize"`
}

// AdditionalMedia はマルチ画像作品の追加ファイルを表す。
type AdditionalMedia struct {
	FileID   int64  `json:"fileId"`
	Position int    `json:"position"`
	Filename string `json:"filename"`
	Media    *Media `json:"media"`
}

// Tag は作品に付与されたタグを表す。
type Tag struct {
	Name string `json:"name"`
}

// Extended は詳細取得時のみ付与される拡張データを表す。
type Extended struct {
	DeviationUUID   string            `json:"deviationUuid"`
	Download        *Download         `json:"download"`
	AdditionalMedia []AdditionalMedia `json:"additionalMedia"`
	DescriptionText *TextContent      `json:"descriptionText"`
	Tags            []Tag             `json:"tags"`
}

// Deviation は1つの抽出対象アイテムを表す。
// APIの応答から復元された後は不変として扱い、解決時の付加情報は
// すべてEmission側に蓄積する。
type Deviation struct {
	DeviationID    int64          `json:"deviationId"`
	UUID           string         `json:"uuid"`
	Type           string         `json:"type"`
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	PublishedTime  string         `json:"publishedTime"`
	IsJournal      bool           `json:"isJournal"`
	IsVideo        bool           `json:"isVideo"`
	IsDeleted      bool           `json:"isDeleted"`
	IsDownloadable bool           `json:"isDownloadable"`
	IsBlocked      bool           `json:"isBlocked"`
	IsMature       bool           `json:"isMature"`
	IsPublished    bool           `json:"isPublished"`
	IsMultiImage   bool           `json:"isMultiImage"`
	TierAccess     string         `json:"tierAccess"` // "unlocked" / "locked"
	Author         *Author        `json:"author"`
	Media          *Media         `json:"media"`
	Stats          *Stats         `json:"stats"`
	PremiumFolder  *PremiumFolder `json:"premiumFolderData"`
	TextContent    *TextContent   `json:"textContent"`
	Videos         []VideoVariant `json:"videos"`
	Flash          *FlashAsset    `json:"flash"`
	Content        *FileContent   `json:"content"`
	Preview        *FileContent   `json:"preview"`
	Extended       *Extended      `json:"extended"`
}

// Index は作品の安定識別子を返す。
// ペイロードにdeviationIdがあればそれを使い、なければ正規URLの末尾
// セグメント（10進数またはbase36）から決定的に導出する。両方を混ぜて
// 使うことはない。導出できない場合は0を返す。
func (d *Deviation) Index() int64 {
	if d.DeviationID != 0 {
		return d.DeviationID
	}
	return IndexFromURL(d.URL)
}

// IndexFromURL は正規URLの末尾セグメントから数値識別子を導出する。
// "https://.../art/title-12345" 形式は末尾の10進数、
// "https://fav.me/dXXXXX" 形式はbase36として解釈する。
func IndexFromURL(rawurl string) int64 {
	rawurl = strings.TrimSuffix(rawurl, "/")
	if i := strings.IndexAny(rawurl, "?#"); i >= 0 {
		rawurl = rawurl[:i]
	}

	last := rawurl
	if i := strings.LastIndexByte(rawurl, '/'); i >= 0 {
		last = rawurl[i+1:]
	}

	// fav.me形式: 末尾セグメントは "d" + base36
	if strings.Contains(rawurl, "fav.me/") && len(last) > 1 && last[0] == 'd' {
		if id, err := IDFromBase36(last[1:]); err == nil {
			return id
		}
		return 0
	}

	// タイトル付きURL: 末尾の "-" 以降が10進数
	if i := strings.LastIndexByte(last, '-'); i >= 0 {
		last = last[i+1:]
	}
	id, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// PublishedAt は公開日時を返す。
// UNIX秒の数値文字列とISO 8601形式の両方を受け付ける。
// 解釈できない場合はゼロ値を返す。
func (d *Deviation) PublishedAt() time.Time {
	s := d.PublishedTime
	if s == "" {
		return time.Time{}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC()
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05-0700",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Username は作品メタデータに使う作者名を返す。authorが無い場合は空文字列。
func (d *Deviation) Username() string {
	if d.Author == nil {
		return ""
	}
	return d.Author.Username
}

// DeviationUUID は詳細応答から得たUUIDを返す。
// トップレベルのuuidを優先し、なければ拡張データから探す。
func (d *Deviation) DeviationUUID() string {
	if d.UUID != "" {
		return d.UUID
	}
	if d.Extended != nil {
		return d.Extended.DeviationUUID
	}
	return ""
}

// IsAccessGated はプレミアムゲートが付与され閲覧権限がないことを返す。
func (d *Deviation) IsAccessGated() bool {
	return d.PremiumFolder != nil && !d.PremiumFolder.HasAccess
}
