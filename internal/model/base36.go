// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// base36Alphabet は識別子のbase36表現に使う文字集合。
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// IDFromBase36 はbase36文字列を数値識別子へ復号する。
func IDFromBase36(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("base36文字列が空です")
	}
	var id int64
	for _, r := range strings.ToLower(s) {
		i := strings.IndexRune(base36Alphabet, r)
		if i < 0 {
			return 0, fmt.Errorf("base36として解釈できない文字です: %q", r)
		}
		id = id*36 + int64(i)
	}
	return id, nil
}

// Base36FromID は数値識別子をbase36文字列へ符号化する。
func Base36FromID(id int64) string {
	if id <= 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = base36Alphabet[id%36]
		id /= 36
	}
	return string(buf[i:])
}
