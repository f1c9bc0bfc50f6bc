// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ExtractErrorKind は抽出パイプラインのエラー分類を表す。
type ExtractErrorKind string

const (
	// ErrKindTransientNetwork は一時的なネットワーク失敗。呼び出し側が再試行する。
	ErrKindTransientNetwork ExtractErrorKind = "transient_network"
	// ErrKindMalformedItem は解決中の必須フィールド欠落。そのアイテムの残り手順のみ中断する。
	ErrKindMalformedItem ExtractErrorKind = "malformed_item"
	// ErrKindAccessDenied はプレミアムゲートによるアクセス拒否。
	ErrKindAccessDenied ExtractErrorKind = "access_denied"
	// ErrKindUnsupportedMarkup は未対応のマークアップノード/マーク種別。
	ErrKindUnsupportedMarkup ExtractErrorKind = "unsupported_markup"
	// ErrKindExhaustedCredential はプレミアム経路に必要な認証情報の不足。
	ErrKindExhaustedCredential ExtractErrorKind = "exhausted_credential"
)

// ExtractError は抽出パイプラインの分類済みエラーを表す。
// 致命的なものはなく、呼び出し側は分類に応じてアイテム単位で
// スキップまたは再試行する。
type ExtractError struct {
	Kind    ExtractErrorKind
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap はラップされた原因エラーを返す。
func (e *ExtractError) Unwrap() error {
	return e.Err
}

// NewTransientNetworkError は一時的なネットワークエラーを生成する。
func NewTransientNetworkError(err error) *ExtractError {
	return &ExtractError{
		Kind:    ErrKindTransientNetwork,
		Message: "一時的なネットワークエラーが発生しました",
		Err:     err,
	}
}

// NewMalformedItemError は必須フィールド欠落エラーを生成する。
func NewMalformedItemError(field string) *ExtractError {
	return &ExtractError{
		Kind:    ErrKindMalformedItem,
		Message: fmt.Sprintf("必須フィールド %s が欠落しています", field),
	}
}

// NewAccessDeniedError はプレミアムゲートによるアクセス拒否エラーを生成する。
func NewAccessDeniedError(gateType string) *ExtractError {
	return &ExtractError{
		Kind:    ErrKindAccessDenied,
		Message: fmt.Sprintf("プレミアムコンテンツにアクセスできません（種別: %s）", gateType),
	}
}

// NewUnsupportedMarkupError は未対応マークアップエラーを生成する。
func NewUnsupportedMarkupError(nodeType string) *ExtractError {
	return &ExtractError{
		Kind:    ErrKindUnsupportedMarkup,
		Message: fmt.Sprintf("未対応のマークアップ種別です: %s", nodeType),
	}
}

// NewExhaustedCredentialError は認証情報不足エラーを生成する。
func NewExhaustedCredentialError() *ExtractError {
	return &ExtractError{
		Kind:    ErrKindExhaustedCredential,
		Message: "プレミアムコンテンツへのアクセスに必要な認証情報がありません",
	}
}

// IsExtractKind はエラーが指定分類のExtractErrorかどうかを判定する。
func IsExtractKind(err error, kind ExtractErrorKind) bool {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee.Kind == kind
	}
	return false
}

// APIError は管理APIの統一エラーフォーマットを表す。
// 応答に含める原因カテゴリと対処方法を持つ。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, target, run, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidTarget   = "INVALID_TARGET"
	ErrCodeDuplicateTarget = "DUPLICATE_TARGET"
	ErrCodeTargetNotFound  = "TARGET_NOT_FOUND"
	ErrCodeRunNotFound     = "RUN_NOT_FOUND"
	ErrCodeInvalidInterval = "INVALID_INTERVAL"
	ErrCodeSSRFBlocked     = "SSRF_BLOCKED"
	ErrCodeFetchFailed     = "FETCH_FAILED"
)

// NewInvalidTargetError は無効な抽出対象エラーを生成する。
func NewInvalidTargetError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTarget,
		Message:  fmt.Sprintf("無効な抽出対象です: %s", reason),
		Category: "validation",
		Action:   "ギャラリーURL・フォルダURL・作品URLのいずれかを指定してください。",
	}
}

// NewDuplicateTargetError は登録済み対象の重複エラーを生成する。
func NewDuplicateTargetError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateTarget,
		Message:  "この抽出対象は既に登録されています。",
		Category: "target",
		Action:   "登録一覧から該当対象を確認してください。",
	}
}

// NewTargetNotFoundError は抽出対象が見つからない場合のエラーを生成する。
func NewTargetNotFoundError(targetID string) *APIError {
	return &APIError{
		Code:     ErrCodeTargetNotFound,
		Message:  fmt.Sprintf("指定された抽出対象が見つかりません: %s", targetID),
		Category: "target",
		Action:   "対象IDを確認してください。",
	}
}

// NewRunNotFoundError は抽出ランが見つからない場合のエラーを生成する。
func NewRunNotFoundError(runID string) *APIError {
	return &APIError{
		Code:     ErrCodeRunNotFound,
		Message:  fmt.Sprintf("指定された抽出ランが見つかりません: %s", runID),
		Category: "run",
		Action:   "ランIDを確認してください。",
	}
}

// NewInvalidIntervalError は抽出間隔が無効な場合のエラーを生成する。
func NewInvalidIntervalError(seconds int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInterval,
		Message:  fmt.Sprintf("無効な抽出間隔です: %d秒", seconds),
		Category: "validation",
		Action:   "抽出間隔は300秒から86400秒の範囲で指定してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを指定してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "system",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}
