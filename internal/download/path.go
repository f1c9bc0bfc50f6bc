package download

import (
	"fmt"
	"strings"
)

// BuildPath はパステンプレートへメタデータを展開して相対パスを返す。
// テンプレートは "{username}/{filename}.{extension}" のように
// 波括弧のプレースホルダでメタデータキーを参照する。
// 対応する値がないプレースホルダは空文字列に展開される。
//
// 置換値はパス区切り文字と親ディレクトリ参照を無害化してから埋め込む。
// テンプレート自体の区切り文字はそのままディレクトリ構造になる。
func BuildPath(template string, metadata map[string]any) string {
	var b strings.Builder
	b.Grow(len(template))

	rest := template
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}

		b.WriteString(rest[:start])
		key := rest[start+1 : start+end]
		if v, ok := metadata[key]; ok {
			b.WriteString(sanitizeSegment(fmt.Sprint(v)))
		}
		rest = rest[start+end+1:]
	}

	return cleanPath(b.String())
}

// sanitizeSegment は置換値からディレクトリ脱出に使える文字列を除去する。
func sanitizeSegment(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "..", "_")
	return s
}

// cleanPath は展開後のパスから空セグメントと先頭の区切り文字を取り除く。
func cleanPath(p string) string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return strings.Join(out, "/")
}
