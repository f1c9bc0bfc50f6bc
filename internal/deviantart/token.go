// Package deviantart はDeviantArt Eclipse APIのクライアントを提供する。
// CSRFトークンのブートストラップ、結果リストのページング、
// プロセス全体で共有される最小間隔スロットルを含む。
package deviantart

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// pathClaim はトークンが対象とするメディアパスを表す。
type pathClaim struct {
	Path string `json:"path"`
}

// downloadClaims は配信CDNのダウンロードトークンのクレーム。
type downloadClaims struct {
	jwt.RegisteredClaims
	Obj [][]pathClaim `json:"obj"`
}

// SynthesizeToken は寸法制限のない閲覧用アクセストークンを合成する。
// 配信CDNはalg=noneの未署名JWT（署名部が空、末尾ドット付き）を
// 受け付けるため、メディアパスを対象とするトークンをローカルで構築できる。
// pathは "/f/" で始まるメディアパス。
func SynthesizeToken(path string) (string, error) {
	claims := downloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "urn:app:",
			Subject:  "urn:app:",
			Audience: jwt.ClaimStrings{"urn:service:file.download"},
		},
		Obj: [][]pathClaim{{{Path: path}}},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		return "", fmt.Errorf("アクセストークンの生成に失敗しました: %w", err)
	}
	return signed, nil
}
