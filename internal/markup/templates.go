package markup

import (
	"html"
	"strings"
	"time"
)

// JournalMeta はジャーナルテンプレートへ埋め込むメタデータ。
type JournalMeta struct {
	Title    string
	URL      string
	Username string
	UserURL  string
	Date     time.Time
}

// headerTemplate は標準ジャーナルのヘッダーブロック。
const headerTemplate = `<div usr class="gr">
<div class="metadata">
    <h2><a href="%URL%">%TITLE%</a></h2>
    <ul>
        <li class="author">
            by <span class="name"><span class="username-with-symbol u">
            <a class="u regular username" href="%USERURL%">%USERNAME%</a><span class="user-symbol regular"></span></span></span>,
            <span>%DATE%</span>
        </li>
    </ul>
</div>
`

// headerCustomTemplate はカスタムスキン付きジャーナルのヘッダーブロック。
const headerCustomTemplate = `<div class='boxtop journaltop'>
<h2>
    <img src="https://st.deviantart.net/minish/gruzecontrol/icons/journal.gif?2" style="vertical-align:middle" alt=""/>
    <a href="%URL%">%TITLE%</a>
</h2>
Journal Entry: <span>%DATE%</span>
`

// journalTemplateHTML はジャーナル全体を包むHTMLスキン。
const journalTemplateHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>%TITLE%</title>
    <link rel="stylesheet" href="https://st.deviantart.net/css/deviantart-network_lc.css?3843780832"/>
    <link rel="stylesheet" href="https://st.deviantart.net/css/group_secrets_lc.css?3250492874"/>
    <link rel="stylesheet" href="https://st.deviantart.net/css/v6core_lc.css?4246581581"/>
    <link rel="stylesheet" href="https://st.deviantart.net/css/sidebar_lc.css?1490570941"/>
    <link rel="stylesheet" href="https://st.deviantart.net/css/writer_lc.css?3090682151"/>
    <link rel="stylesheet" href="https://st.deviantart.net/css/v6loggedin_lc.css?3001430805"/>
    <style>%CSS%</style>
    <link rel="stylesheet" href="https://st.deviantart.net/roses/cssmin/core.css?1488405371919"/>
    <link rel="stylesheet" href="https://st.deviantart.net/roses/cssmin/peeky.css?1487067424177"/>
    <link rel="stylesheet" href="https://st.deviantart.net/roses/cssmin/desktop.css?1491362542749"/>
</head>
<body id="deviantART-v7" class="bubble no-apps loggedout w960 deviantart">
    <div id="output">
    <div class="dev-page-container bubbleview">
    <div class="dev-page-view view-mode-normal">
    <div class="dev-view-main-content">
    <div class="dev-view-deviation">
    <div class="journal-wrapper tt-a">
    <div class="journal-wrapper2">
    <div class="journal %CLS% journalcontrol">
    %HTML%
    </div>
    </div>
    </div>
    </div>
    </div>
    </div>
    </div>
    </div>
</body>
</html>
`

// journalTemplateHTMLExtra はヘッダーの挿入先がない本文を包む汎用ボックス。
const journalTemplateHTMLExtra = `<div id="devskin0"><div class="negate-box-margin" style="">` +
	`<div usr class="gr-box gr-genericbox"
        ><i usr class="gr1"><i></i></i
        ><i usr class="gr2"><i></i></i
        ><i usr class="gr3"><i></i></i
        ><div usr class="gr-top">
            <i usr class="tri"></i>
            %HEADER%
            </div>
    </div><div usr class="gr-body"><div usr class="gr">
            <div class="grf-indent">
            <div class="text">
                %HTML%            </div>
        </div>
                </div></div>
        <i usr class="gr3 gb"></i>
        <i usr class="gr2 gb"></i>
        <i usr class="gr1 gb gb1"></i>    </div>
    </div></div>`

// journalTemplateText はプレーンテキスト出力のテンプレート。
const journalTemplateText = `%TITLE%
by %USERNAME%, %DATE%

%CONTENT%
`

// templateDate はテンプレートへ埋め込む日時の表記。
func templateDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

// expand はテンプレート中の%KEY%プレースホルダを置換する。
func expand(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "%"+k+"%", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// WrapHTML はレンダリング済みジャーナル本文をHTMLスキンで包む。
// 本文が<style>で始まる場合はCSSを取り出してスキンへ移す。
// 本文中にヘッダー挿入位置があればヘッダーで置換し、
// なければ汎用ボックステンプレートで本文ごと包む。
func WrapHTML(meta JournalMeta, body string) string {
	title := html.EscapeString(meta.Title)
	date := templateDate(meta.Date)

	css := ""
	cls := "journal-green"
	if strings.HasPrefix(body, "<style") {
		if i := strings.Index(body, "</style>"); i >= 0 {
			css = body[:i]
			if j := strings.IndexByte(css, '>'); j >= 0 {
				css = css[j+1:]
			}
			body = body[i+len("</style>"):]
			cls = "withskin"
		}
	}

	var needle, header string
	if pos := strings.Index(body, `<div class="boxtop journaltop">`); pos >= 0 && pos < 250 {
		needle = `<div class="boxtop journaltop">`
		header = expand(headerCustomTemplate, map[string]string{
			"TITLE": title,
			"URL":   meta.URL,
			"DATE":  date,
		})
	} else {
		needle = `<div usr class="gr">`
		header = expand(headerTemplate, map[string]string{
			"TITLE":    title,
			"URL":      meta.URL,
			"USERURL":  meta.UserURL,
			"USERNAME": meta.Username,
			"DATE":     date,
		})
	}

	if strings.Contains(body, needle) {
		body = strings.Replace(body, needle, header, 1)
	} else {
		body = expand(journalTemplateHTMLExtra, map[string]string{
			"HEADER": header,
			"HTML":   body,
		})
	}

	return expand(journalTemplateHTML, map[string]string{
		"TITLE": title,
		"HTML":  body,
		"CSS":   css,
		"CLS":   cls,
	})
}

// WrapText はジャーナル本文をプレーンテキストのテンプレートで包む。
// 本文のHTMLタグ除去はToPlainTextで行ってから渡すこと。
func WrapText(meta JournalMeta, content string) string {
	return expand(journalTemplateText, map[string]string{
		"TITLE":    meta.Title,
		"USERNAME": meta.Username,
		"DATE":     templateDate(meta.Date),
		"CONTENT":  content,
	})
}
