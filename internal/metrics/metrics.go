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
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordStorySubmitted()
	RecordVoteCast(voteType string)
	RecordVoteRejected(reason string)
	RecordBoostActivated(durationHours int)
	RecordBoostExpired(count int)
	RecordPurchaseCompleted(kind string)
	RecordHTTPStatus(statusCode int)
	RecordRankingLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	storySubmitted prometheus.Counter
	voteCast       *prometheus.CounterVec
	voteRejected   *prometheus.CounterVec
	boostActivated *prometheus.CounterVec
	boostExpired   prometheus.Counter
	purchaseDone   *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	rankingLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		storySubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyrank_story_submitted_total",
			Help: "投稿されたストーリーの合計数",
		}),
		voteCast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyrank_vote_cast_total",
			Help: "確定した投票の合計数（投票種別ごと）",
		}, []string{"vote_type"}),
		voteRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyrank_vote_rejected_total",
			Help: "拒否された投票の合計数（理由ごと）",
		}, []string{"reason"}),
		boostActivated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyrank_boost_activated_total",
			Help: "有効化されたブーストの合計数（期間ごと）",
		}, []string{"duration_hours"}),
		boostExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyrank_boost_expired_total",
			Help: "期限切れとなったブーストの合計数",
		}),
		purchaseDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyrank_purchase_completed_total",
			Help: "完了した購入の合計数（種別ごと）",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyrank_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		rankingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storyrank_ranking_latency_seconds",
			Help:    "ランキングクエリのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.storySubmitted,
		c.voteCast,
		c.voteRejected,
		c.boostActivated,
		c.boostExpired,
		c.purchaseDone,
		c.httpStatus,
		c.rankingLatency,
	)

	return c
}

// RecordStorySubmitted はストーリー投稿を記録する。
func (c *Collector) RecordStorySubmitted() {
	c.storySubmitted.Inc()
}

// RecordVoteCast は投票の確定を記録する。
func (c *Collector) RecordVoteCast(voteType string) {
	c.voteCast.WithLabelValues(voteType).Inc()
}

// RecordVoteRejected は投票の拒否を記録する。
func (c *Collector) RecordVoteRejected(reason string) {
	c.voteRejected.WithLabelValues(reason).Inc()
}

// RecordBoostActivated はブーストの有効化を記録する。
func (c *Collector) RecordBoostActivated(durationHours int) {
	c.boostActivated.WithLabelValues(strconv.Itoa(durationHours)).Inc()
}

// RecordBoostExpired は期限切れとなったブースト数を記録する。
func (c *Collector) RecordBoostExpired(count int) {
	c.boostExpired.Add(float64(count))
}

// RecordPurchaseCompleted は購入の完了を記録する。
func (c *Collector) RecordPurchaseCompleted(kind string) {
	c.purchaseDone.WithLabelValues(kind).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRankingLatency はランキングクエリのレイテンシを記録する。
func (c *Collector) RecordRankingLatency(duration time.Duration) {
	c.rankingLatency.Observe(duration.Seconds())
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
