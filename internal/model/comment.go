// Package model はドメインモデルを定義する。
package model

// Comment は作品に付いたコメント1件を表す。
// ParentIDが空のものがルートコメントで、全体として森を構成する。
type Comment struct {
	CommentID string  `json:"commentid"`
	ParentID  string  `json:"parentid"`
	Replies   int     `json:"replies"`
	Posted    string  `json:"posted"`
	Body      string  `json:"body"`
	User      *Author `json:"user"`
}
