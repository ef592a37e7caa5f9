package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "blogsync"

// PrometheusRecorder implements Recorder with client_golang collectors.
type PrometheusRecorder struct {
	reg             *prom.Registry
	exportDuration  *prom.HistogramVec
	publishDuration *prom.HistogramVec
	pushRetries     *prom.CounterVec
	forgeRequests   *prom.CounterVec
	syncActions     *prom.CounterVec
	syncDuration    *prom.HistogramVec
}

// NewPrometheusRecorder registers the collectors on reg (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		exportDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Duration of post exports to the local site repository",
			Buckets:   prom.DefBuckets,
		}, []string{"site", "outcome"}),
		publishDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Duration of remote publishes through the forge API",
			Buckets:   prom.DefBuckets,
		}, []string{"site", "outcome"}),
		pushRetries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "push_retries_total",
			Help:      "Pushes retried after a non-fast-forward rejection",
		}, []string{"site"}),
		forgeRequests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "forge_requests_total",
			Help:      "Forge API requests by method and status code",
		}, []string{"method", "status"}),
		syncActions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sync_actions_total",
			Help:      "Repository sync plan items by site and action",
		}, []string{"site", "action"}),
		syncDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of repository sync runs",
			Buckets:   prom.DefBuckets,
		}, []string{"mode"}),
	}
	reg.MustRegister(pr.exportDuration, pr.publishDuration, pr.pushRetries, pr.forgeRequests, pr.syncActions, pr.syncDuration)
	return pr
}

// Registry returns the registry the collectors live on.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) ObserveExportDuration(site string, d time.Duration, outcome Outcome) {
	p.exportDuration.WithLabelValues(site, string(outcome)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObservePublishDuration(site string, d time.Duration, outcome Outcome) {
	p.publishDuration.WithLabelValues(site, string(outcome)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPushRetry(site string) {
	p.pushRetries.WithLabelValues(site).Inc()
}

func (p *PrometheusRecorder) IncForgeRequest(method string, status int) {
	p.forgeRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (p *PrometheusRecorder) IncSyncAction(site, action string, n int) {
	if n <= 0 {
		return
	}
	p.syncActions.WithLabelValues(site, action).Add(float64(n))
}

func (p *PrometheusRecorder) ObserveSyncDuration(d time.Duration, applied bool) {
	mode := "dry_run"
	if applied {
		mode = "apply"
	}
	p.syncDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// WriteTextfile dumps the registry in the textfile collector format.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	return prom.WriteToTextfile(path, p.reg)
}
