package markup

import (
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
)

// StripTags はHTML文字列からタグを除去し、テキストだけを返す。
// 文字参照は復号される。
func StripTags(s string) string {
	var b strings.Builder
	tok := xhtml.NewTokenizer(strings.NewReader(s))
	for {
		tt := tok.Next()
		if tt == xhtml.ErrorToken {
			break
		}
		if tt == xhtml.TextToken {
			b.Write(tok.Text())
		}
	}
	return strings.TrimSpace(b.String())
}

// ToPlainText はジャーナル本文HTMLをプレーンテキストへ変換する。
// 先頭のスタイルブロックと末尾のスクリプト以降を捨て、
// 改行タグを行区切りとして各行のタグを除去する。
func ToPlainText(body string) string {
	if strings.HasPrefix(body, "<style") {
		if _, rest, ok := strings.Cut(body, "</style>"); ok {
			body = rest
		}
	}
	if head, _, ok := cutLast(body, "<script"); ok {
		body = head
	}

	lines := strings.Split(body, "<br />")
	for i, line := range lines {
		lines[i] = html.UnescapeString(StripTags(line))
	}
	return strings.Join(lines, "\n")
}

// cutLast は最後に現れるsepで文字列を分割する。
func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
