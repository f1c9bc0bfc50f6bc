// Package model はドメインモデルを定義する。
package model

import (
	"time"
)

// EmissionKind は解決結果の出力種別を表す。
type EmissionKind string

const (
	// EmissionDirectory はアイテムのメタデータを運ぶグループ通知。
	// 各アイテムにつき必ず1件、メディアより先に出力される。
	EmissionDirectory EmissionKind = "directory"
	// EmissionURL はダウンロード対象ソース1件の出力。
	EmissionURL EmissionKind = "url"
	// EmissionQueue は子要素未解決のギャラリー親の再キュー通知。
	EmissionQueue EmissionKind = "queue"
)

// Emission は解決パイプラインが生成する1件の出力を表す。
// 生のDeviationは不変のまま参照し、解決時に決まる値はすべて
// この構造体に蓄積する。
type Emission struct {
	Kind        EmissionKind
	Source      string
	Fallbacks   []string // ソース書き換え前のURL。取得失敗時の再試行に使う
	Index       int64
	IndexBase36 string
	Num         int // マルチ画像作品内の連番（1始まり）
	Count       int // マルチ画像作品の総ファイル数
	FileID      int64
	Stem        string // ファイル名語幹
	Extension   string
	IsOriginal  bool
	IsPreview   bool
	ContentType string
	Body        []byte // レンダリング済みジャーナル等のインライン本文
	Filesize    int64
	Comments    []Comment
	Item        *Deviation
}

// Metadata はパステンプレート置換およびアーカイブ用のメタデータ対応表を返す。
func (e *Emission) Metadata() map[string]any {
	m := map[string]any{
		"index":        e.Index,
		"index_base36": e.IndexBase36,
		"filename":     e.Stem,
		"extension":    e.Extension,
		"is_original":  e.IsOriginal,
		"num":          e.Num,
		"count":        e.Count,
	}
	if e.Item != nil {
		m["title"] = e.Item.Title
		m["username"] = e.Item.Username()
		m["url"] = e.Item.URL
		if t := e.Item.PublishedAt(); !t.IsZero() {
			m["date"] = t.Format(time.RFC3339)
		}
	}
	return m
}
