// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーや抽出層から利用する。
type MetricsCollector interface {
	RecordRunSuccess(target string)
	RecordRunFailure(target string, reason string)
	RecordItemsSeen(count int)
	RecordEmission(kind string)
	RecordHTTPStatus(statusCode int)
	RecordAPILatency(duration time.Duration)
	RecordDownloadBytes(n int64)
	RecordPremiumUnlock(username string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	runSuccess     prometheus.Counter
	runFail        prometheus.Counter
	itemsSeen      prometheus.Counter
	emissions      *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	apiLatency     prometheus.Histogram
	downloadBytes  prometheus.Counter
	premiumUnlocks prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "galleryman_run_success_total",
			Help: "抽出ラン成功の合計数",
		}),
		runFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "galleryman_run_fail_total",
			Help: "抽出ラン失敗の合計数",
		}),
		itemsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "galleryman_items_seen_total",
			Help: "列挙されたデビエーションの合計数",
		}),
		emissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "galleryman_emissions_total",
			Help: "種別ごとの出力レコード数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "galleryman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "galleryman_api_latency_seconds",
			Help:    "Eclipse APIコールのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "galleryman_download_bytes_total",
			Help: "ダウンロードされたバイト数の合計",
		}),
		premiumUnlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "galleryman_premium_unlocks_total",
			Help: "ウォッチによるプレミアムフォルダ解除の合計数",
		}),
	}

	reg.MustRegister(
		c.runSuccess,
		c.runFail,
		c.itemsSeen,
		c.emissions,
		c.httpStatus,
		c.apiLatency,
		c.downloadBytes,
		c.premiumUnlocks,
	)

	return c
}

// RecordRunSuccess はラン成功を記録する。
func (c *Collector) RecordRunSuccess(target string) {
	c.runSuccess.Inc()
}

// RecordRunFailure はラン失敗を記録する。
func (c *Collector) RecordRunFailure(target string, reason string) {
	c.runFail.Inc()
}

// RecordItemsSeen は列挙されたデビエーション数を記録する。
func (c *Collector) RecordItemsSeen(count int) {
	c.itemsSeen.Add(float64(count))
}

// RecordEmission は出力レコードを種別ラベル付きで記録する。
func (c *Collector) RecordEmission(kind string) {
	c.emissions.WithLabelValues(kind).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAPILatency はAPIコールのレイテンシを記録する。
func (c *Collector) RecordAPILatency(duration time.Duration) {
	c.apiLatency.Observe(duration.Seconds())
}

// RecordDownloadBytes はダウンロードされたバイト数を記録する。
func (c *Collector) RecordDownloadBytes(n int64) {
	c.downloadBytes.Add(float64(n))
}

// RecordPremiumUnlock はプレミアムフォルダ解除を記録する。
func (c *Collector) RecordPremiumUnlock(username string) {
	c.premiumUnlocks.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
