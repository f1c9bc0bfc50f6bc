// Package deviantart はDeviantArt Eclipse APIのクライアントを提供する。
// CSRFトークンのブートストラップ、結果リストのページング、
// プロセス全体で共有される最小間隔スロットルを含む。
package deviantart

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle はHTTPリクエストの最小間隔を強制するスロットル。
// 詳細取得エンドポイントはレート制限に敏感なため、
// プロセス内の全リクエストが1つのThrottleを共有する。
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle は指定された最小間隔のThrottleを生成する。
// 間隔が0以下の場合はスロットルなしとして動作する。
func NewThrottle(minInterval time.Duration) *Throttle {
	if minInterval <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Wait は次のリクエストが許可されるまでブロックする。
// コンテキストがキャンセルされた場合はそのエラーを返す。
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
