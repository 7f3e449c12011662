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
// スクレイパー、リコンサイラー、通知エンジンから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordPageFetched(regionCode string)
	RecordFetchRetry()
	RecordDealsParsed(regionCode string, count int)
	RecordDealsChanged(regionCode string, count int)
	RecordStaleRemoved(regionCode string, count int)
	RecordScrapeLatency(regionCode string, duration time.Duration)
	RecordNotificationSent(kind string)
	RecordNotificationFailure(kind string)
	RecordAlertTriggered()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus    *prometheus.CounterVec
	pagesFetched  *prometheus.CounterVec
	fetchRetries  prometheus.Counter
	dealsParsed   *prometheus.CounterVec
	dealsChanged  *prometheus.CounterVec
	staleRemoved  *prometheus.CounterVec
	scrapeLatency *prometheus.HistogramVec
	notifySent    *prometheus.CounterVec
	notifyFail    *prometheus.CounterVec
	alertsFired   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealhunter_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealhunter_pages_fetched_total",
			Help: "取得したカタログページの合計数",
		}, []string{"region"}),
		fetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealhunter_fetch_retries_total",
			Help: "ページ取得リトライの合計数",
		}),
		dealsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealhunter_deals_parsed_total",
			Help: "パースしたセール情報の合計数",
		}, []string{"region"}),
		dealsChanged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealhunter_deals_changed_total",
			Help: "新規または価格変動として記録されたセールの合計数",
		}, []string{"region"}),
		staleRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealhunter_stale_deals_removed_total",
			Help: "掲載終了として削除されたセールの合計数",
		}, []string{"region"}),
		scrapeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealhunter_scrape_latency_seconds",
			Help:    "リージョン単位のスクレイプ所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"region"}),
		notifySent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealhunter_notifications_sent_total",
			Help: "送信に成功した通知の合計数",
		}, []string{"kind"}),
		notifyFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealhunter_notifications_failed_total",
			Help: "送信に失敗した通知の合計数",
		}, []string{"kind"}),
		alertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealhunter_price_alerts_fired_total",
			Help: "発火した価格アラートの合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.pagesFetched,
		c.fetchRetries,
		c.dealsParsed,
		c.dealsChanged,
		c.staleRemoved,
		c.scrapeLatency,
		c.notifySent,
		c.notifyFail,
		c.alertsFired,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordPageFetched はページ取得成功を記録する。
func (c *Collector) RecordPageFetched(regionCode string) {
	c.pagesFetched.WithLabelValues(regionCode).Inc()
}

// RecordFetchRetry はページ取得リトライを記録する。
func (c *Collector) RecordFetchRetry() {
	c.fetchRetries.Inc()
}

// RecordDealsParsed はパースしたセール数を記録する。
func (c *Collector) RecordDealsParsed(regionCode string, count int) {
	c.dealsParsed.WithLabelValues(regionCode).Add(float64(count))
}

// RecordDealsChanged は新規・変動セール数を記録する。
func (c *Collector) RecordDealsChanged(regionCode string, count int) {
	c.dealsChanged.WithLabelValues(regionCode).Add(float64(count))
}

// RecordStaleRemoved は削除された掲載終了セール数を記録する。
func (c *Collector) RecordStaleRemoved(regionCode string, count int) {
	c.staleRemoved.WithLabelValues(regionCode).Add(float64(count))
}

// RecordScrapeLatency はリージョンのスクレイプ所要時間を記録する。
func (c *Collector) RecordScrapeLatency(regionCode string, duration time.Duration) {
	c.scrapeLatency.WithLabelValues(regionCode).Observe(duration.Seconds())
}

// RecordNotificationSent は通知送信成功を記録する。
func (c *Collector) RecordNotificationSent(kind string) {
	c.notifySent.WithLabelValues(kind).Inc()
}

// RecordNotificationFailure は通知送信失敗を記録する。
func (c *Collector) RecordNotificationFailure(kind string) {
	c.notifyFail.WithLabelValues(kind).Inc()
}

// RecordAlertTriggered は価格アラートの発火を記録する。
func (c *Collector) RecordAlertTriggered() {
	c.alertsFired.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector実装。テスト用。
type Nop struct{}

var _ MetricsCollector = (*Nop)(nil)

func (Nop) RecordHTTPStatus(int)                        {}
func (Nop) RecordPageFetched(string)                    {}
func (Nop) RecordFetchRetry()                           {}
func (Nop) RecordDealsParsed(string, int)               {}
func (Nop) RecordDealsChanged(string, int)              {}
func (Nop) RecordStaleRemoved(string, int)              {}
func (Nop) RecordScrapeLatency(string, time.Duration)   {}
func (Nop) RecordNotificationSent(string)               {}
func (Nop) RecordNotificationFailure(string)            {}
func (Nop) RecordAlertTriggered()                       {}
