package markup

import (
	"fmt"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// ToMarkdown はレンダリング済みジャーナルHTMLをMarkdownへ変換する。
// journal=markdown設定時の出力形式として使う。
func ToMarkdown(body string) (string, error) {
	md, err := htmltomarkdown.ConvertString(body)
	if err != nil {
		return "", fmt.Errorf("Markdownへの変換に失敗しました: %w", err)
	}
	return md, nil
}
