package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	runsStartedTotal   atomic.Uint64
	runsCompletedTotal atomic.Uint64
	runsRejectedTotal  atomic.Uint64
	runsFailedTotal    atomic.Uint64

	recommendationTotal = newLabeledCounter()
	stageErrorTotal     = newLabeledCounter()

	riskScore   = newHistogram([]float64{5, 15, 30, 50, 80, 100, 150, 200})
	runDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})

	reportJobsReceivedTotal  atomic.Uint64
	reportJobsCompletedTotal atomic.Uint64
	reportJobsFailedTotal    atomic.Uint64
	reportJobsDroppedTotal   atomic.Uint64
)

// IncRunStarted increments the started-runs counter.
func IncRunStarted() {
	runsStartedTotal.Add(1)
}

// IncRunCompleted increments the completed-runs counter.
func IncRunCompleted() {
	runsCompletedTotal.Add(1)
}

// IncRunRejected increments the rejected-runs counter.
func IncRunRejected() {
	runsRejectedTotal.Add(1)
}

// IncRunFailed increments the failed-runs counter.
func IncRunFailed() {
	runsFailedTotal.Add(1)
}

// IncRecommendation counts a final verdict (APPROVE, NEGOTIATE, REJECT).
func IncRecommendation(verdict string) {
	recommendationTotal.Inc(verdict)
}

// IncStageError counts a degraded stage failure by stage name.
func IncStageError(stage string) {
	stageErrorTotal.Inc(stage)
}

// ObserveRiskScore records a final risk score.
func ObserveRiskScore(score int) {
	if score < 0 {
		score = 0
	}
	riskScore.Observe(float64(score))
}

// ObserveRunDurationMs records a pipeline run duration in milliseconds.
func ObserveRunDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	runDuration.Observe(value)
}

// IncReportJobReceived counts a report-dispatch job picked up from the queue.
func IncReportJobReceived() {
	reportJobsReceivedTotal.Add(1)
}

// IncReportJobCompleted counts a successfully delivered report job.
func IncReportJobCompleted() {
	reportJobsCompletedTotal.Add(1)
}

// IncReportJobFailed counts a retryable report job failure.
func IncReportJobFailed() {
	reportJobsFailedTotal.Add(1)
}

// IncReportJobDropped counts an unrecoverable report job deleted from the queue.
func IncReportJobDropped() {
	reportJobsDroppedTotal.Add(1)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "pipeline_runs_started_total", "Total pipeline runs started", runsStartedTotal.Load())
	writeCounter(&buf, "pipeline_runs_completed_total", "Total pipeline runs completed", runsCompletedTotal.Load())
	writeCounter(&buf, "pipeline_runs_rejected_total", "Total pipeline runs rejected by classification", runsRejectedTotal.Load())
	writeCounter(&buf, "pipeline_runs_failed_total", "Total pipeline runs failed", runsFailedTotal.Load())
	writeLabeledCounter(&buf, "pipeline_recommendation_total", "Final recommendations by verdict", "verdict", recommendationTotal.Snapshot())
	writeLabeledCounter(&buf, "pipeline_stage_error_total", "Degraded stage failures by stage", "stage", stageErrorTotal.Snapshot())
	writeHistogram(&buf, "pipeline_risk_score", "Final risk score distribution", riskScore.Snapshot())
	writeHistogram(&buf, "pipeline_run_duration_ms", "Pipeline run duration in milliseconds", runDuration.Snapshot())
	writeCounter(&buf, "report_jobs_received_total", "Report dispatch jobs received from the queue", reportJobsReceivedTotal.Load())
	writeCounter(&buf, "report_jobs_completed_total", "Report dispatch jobs delivered", reportJobsCompletedTotal.Load())
	writeCounter(&buf, "report_jobs_failed_total", "Report dispatch jobs failed (retryable)", reportJobsFailedTotal.Load())
	writeCounter(&buf, "report_jobs_dropped_total", "Report dispatch jobs dropped as unrecoverable", reportJobsDroppedTotal.Load())
	return buf.String()
}

type labeledCounter struct {
	mu     sync.Mutex
	counts map[string]uint64
}

func newLabeledCounter() *labeledCounter {
	return &labeledCounter{counts: make(map[string]uint64)}
}

func (c *labeledCounter) Inc(label string) {
	c.mu.Lock()
	c.counts[label]++
	c.mu.Unlock()
}

func (c *labeledCounter) Snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeLabeledCounter(buf *bytes.Buffer, name, help, label string, counts map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, label, k, counts[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
