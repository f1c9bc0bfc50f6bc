// Package extract は抽出ランのバックグラウンド実行を提供する。
// 対象URLの解釈、ランナー、スケジューラ、リトライ/バックオフ戦略を含む。
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/BishopRed90/galleryman/internal/model"
)

// TargetKind は抽出対象の種別を表す。
type TargetKind string

const (
	// TargetGallery はユーザーのギャラリー全体またはフォルダ。
	TargetGallery TargetKind = "gallery"
	// TargetScraps はユーザーのスクラップフォルダ。
	TargetScraps TargetKind = "scraps"
	// TargetCollection はユーザーのお気に入りコレクション。
	TargetCollection TargetKind = "collection"
	// TargetDeviation は単一の作品。
	TargetDeviation TargetKind = "deviation"
)

// Target は解釈済みの抽出対象を表す。
type Target struct {
	Kind        TargetKind
	Username    string
	FolderID    string // ギャラリー/コレクションのフォルダID。空は全体
	DeviationID int64  // 単一作品の識別子
	URL         string // 元の対象URL
}

// ParseTarget は対象URLを抽出対象へ解釈する。
// 対応形式:
//
//	https://www.deviantart.com/<user>/gallery[/all]
//	https://www.deviantart.com/<user>/gallery/scraps
//	https://www.deviantart.com/<user>/gallery/<folderid>/<name>
//	https://www.deviantart.com/<user>/favourites[/<folderid>/<name>]
//	https://www.deviantart.com/<user>/art/<title>-<id>
//	https://fav.me/d<base36>
func ParseTarget(rawurl string) (*Target, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, model.NewInvalidTargetError(err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, model.NewInvalidTargetError(fmt.Sprintf("スキームが不正です: %q", u.Scheme))
	}

	host := strings.ToLower(u.Hostname())
	path := strings.Trim(u.Path, "/")
	segments := strings.Split(path, "/")

	if host == "fav.me" {
		id := model.IndexFromURL(rawurl)
		if id == 0 {
			return nil, model.NewInvalidTargetError("作品識別子を導出できません")
		}
		return &Target{Kind: TargetDeviation, DeviationID: id, URL: rawurl}, nil
	}

	if host != "www.deviantart.com" && host != "deviantart.com" {
		return nil, model.NewInvalidTargetError(fmt.Sprintf("対応していないホストです: %q", host))
	}
	if len(segments) < 2 || segments[0] == "" {
		return nil, model.NewInvalidTargetError("ユーザー名とセクションが必要です")
	}

	username := segments[0]
	section := segments[1]
	rest := segments[2:]

	switch section {
	case "gallery":
		if len(rest) > 0 && rest[0] == "scraps" {
			return &Target{Kind: TargetScraps, Username: username, URL: rawurl}, nil
		}
		t := &Target{Kind: TargetGallery, Username: username, URL: rawurl}
		if len(rest) > 0 && rest[0] != "all" {
			t.FolderID = rest[0]
		}
		return t, nil

	case "favourites":
		t := &Target{Kind: TargetCollection, Username: username, URL: rawurl}
		if len(rest) > 0 && rest[0] != "all" {
			t.FolderID = rest[0]
		}
		return t, nil

	case "art":
		id := model.IndexFromURL(rawurl)
		if id == 0 {
			return nil, model.NewInvalidTargetError("作品識別子を導出できません")
		}
		return &Target{
			Kind:        TargetDeviation,
			Username:    username,
			DeviationID: id,
			URL:         rawurl,
		}, nil
	}

	return nil, model.NewInvalidTargetError(fmt.Sprintf("対応していないセクションです: %q", section))
}
