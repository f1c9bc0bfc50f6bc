// Package model はドメインモデルを定義する。
package model

import (
	"strings"
)

// MediaType はメディアの形式バリエーション1件を表す。
// Cは "<prettyName>" プレースホルダを含むURLテンプレート。
type MediaType struct {
	T string `json:"t"` // "fullview" / "preview" などのタグ
	C string `json:"c"`
	H int    `json:"h"`
	W int    `json:"w"`
	R int    `json:"r"`
	F int64  `json:"f"` // バイトサイズ
}

// Media は1つのバイナリソース候補を表す。
type Media struct {
	BaseURI    string      `json:"baseUri"`
	PrettyName string      `json:"prettyName"`
	Token      []string    `json:"token"`
	Types      []MediaType `json:"types"`
}

// Variant はタグが一致する形式バリエーションを返す。
func (m *Media) Variant(tag string) (MediaType, bool) {
	for _, t := range m.Types {
		if t.T == tag {
			return t, true
		}
	}
	return MediaType{}, false
}

// Source は表示用ソースURLを組み立てて返す。
// トークンと "fullview" バリエーションの両方がある場合は
// baseUri + テンプレート置換結果 + "?token=" + 先頭トークン、
// トークンのみの場合は baseUri + "?token=" + 先頭トークン、
// それ以外は baseUri をそのまま返す。
func (m *Media) Source() string {
	if len(m.Token) == 0 {
		return m.BaseURI
	}
	if v, ok := m.Variant("fullview"); ok && v.C != "" {
		view := strings.ReplaceAll(v.C, "<prettyName>", m.PrettyName)
		return m.BaseURI + view + "?token=" + m.Token[0]
	}
	return m.BaseURI + "?token=" + m.Token[0]
}

// Filesize は fullview バリエーションのバイトサイズを返す。不明なら0。
func (m *Media) Filesize() int64 {
	if v, ok := m.Variant("fullview"); ok {
		return v.F
	}
	return 0
}

// ExtFromURL はURLの末尾パスセグメントから拡張子を導出する。
// クエリとフラグメントは無視する。ドットが無ければ空文字列を返す。
// 同じURLに対して何度呼んでも結果は変わらない。
func ExtFromURL(rawurl string) string {
	if i := strings.IndexAny(rawurl, "?#"); i >= 0 {
		rawurl = rawurl[:i]
	}
	if i := strings.LastIndexByte(rawurl, '/'); i >= 0 {
		rawurl = rawurl[i+1:]
	}
	i := strings.LastIndexByte(rawurl, '.')
	if i < 0 {
		return ""
	}
	return NormalizeExt(strings.ToLower(rawurl[i+1:]))
}

// extensionMap はダウンロード時に正規化する拡張子の対応表。
var extensionMap = map[string]string{
	"jpeg": "jpg",
	"jpe":  "jpg",
	"jfif": "jpg",
	"webm": "webm",
}

// NormalizeExt は拡張子の別表記を正規形へ揃える。対応表に無いものはそのまま返す。
func NormalizeExt(ext string) string {
	if n, ok := extensionMap[ext]; ok {
		return n
	}
	return ext
}

// DeriveExt は宣言済み拡張子を優先し、無い場合のみURLから導出する。
// 宣言値は小文字へ揃えたうえで別表記を正規形へ正規化する。
// すでに値がある場合の再導出は no-op となる。
func DeriveExt(declared, rawurl string) string {
	if declared != "" {
		return NormalizeExt(strings.ToLower(declared))
	}
	return ExtFromURL(rawurl)
}
