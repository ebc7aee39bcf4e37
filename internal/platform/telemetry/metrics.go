// Package telemetry records HTTP and translation metrics and serves them in
// the Prometheus text exposition format.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// durationBuckets are request duration bucket boundaries in seconds.
var durationBuckets = []float64{
	0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0,
}

// sizeBuckets are body size bucket boundaries in bytes. HL7 messages are
// small; anything past a megabyte is already over the default body limit.
var sizeBuckets = []float64{
	256, 1_024, 4_096, 16_384, 65_536, 262_144, 1_048_576,
}

// unmatchedRoute labels requests that did not resolve to a registered route,
// so arbitrary paths cannot grow the label set.
const unmatchedRoute = "unmatched"

type histogram struct {
	mu         sync.Mutex
	boundaries []float64
	counts     []int64 // non-cumulative, one per boundary
	count      int64
	sum        float64
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{boundaries: boundaries, counts: make([]int64, len(boundaries))}
}

func (h *histogram) observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.boundaries {
		if v <= b {
			h.counts[i]++
			return
		}
	}
}

// write emits the _bucket, _sum and _count series with cumulative buckets.
func (h *histogram) write(b *strings.Builder, name, labels string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prefix, suffix := "", ""
	if labels != "" {
		prefix = labels + ","
		suffix = "{" + labels + "}"
	}
	var running int64
	for i, bound := range h.boundaries {
		running += h.counts[i]
		fmt.Fprintf(b, "%s_bucket{%sle=\"%g\"} %d\n", name, prefix, bound, running)
	}
	fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, h.count)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, suffix, h.sum)
	fmt.Fprintf(b, "%s_count%s %d\n", name, suffix, h.count)
}

type requestLabels struct {
	method string
	route  string
	status string
}

func (l requestLabels) String() string {
	return fmt.Sprintf("method=%q,route=%q,status_code=%q", l.method, l.route, l.status)
}

// Metrics holds the process-wide metric state. The zero value is not usable;
// call New.
type Metrics struct {
	mu           sync.RWMutex
	durations    map[requestLabels]*histogram
	translations map[string]*int64

	requestSize  *histogram
	responseSize *histogram
	active       int64
}

// New creates an empty Metrics.
func New() *Metrics {
	return &Metrics{
		durations:    make(map[requestLabels]*histogram),
		translations: make(map[string]*int64),
		requestSize:  newHistogram(sizeBuckets),
		responseSize: newHistogram(sizeBuckets),
	}
}

// Middleware records duration, body sizes and in-flight count for each
// request. It reads the final status from the response, so it belongs
// outside the middleware that renders handler errors.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.active, 1)
			defer atomic.AddInt64(&m.active, -1)

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()

			req := c.Request()
			res := c.Response()
			route := c.Path()
			if route == "" {
				route = unmatchedRoute
			}
			labels := requestLabels{method: req.Method, route: route, status: strconv.Itoa(statusOf(res, err))}
			m.duration(labels).observe(elapsed)

			if req.ContentLength > 0 {
				m.requestSize.observe(float64(req.ContentLength))
			}
			if res.Size > 0 {
				m.responseSize.observe(float64(res.Size))
			}
			return err
		}
	}
}

// statusOf returns the status the client will see. An error that has not
// been rendered yet is attributed its HTTP code, or 500.
func statusOf(res *echo.Response, err error) int {
	if err == nil || res.Committed {
		return res.Status
	}
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return http.StatusInternalServerError
}

func (m *Metrics) duration(l requestLabels) *histogram {
	m.mu.RLock()
	h, ok := m.durations[l]
	m.mu.RUnlock()
	if ok {
		return h
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.durations[l]; ok {
		return h
	}
	h = newHistogram(durationBuckets)
	m.durations[l] = h
	return h
}

// CountTranslation increments the translation counter for outcome.
func (m *Metrics) CountTranslation(outcome string) {
	m.mu.RLock()
	p, ok := m.translations[outcome]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if p, ok = m.translations[outcome]; !ok {
			p = new(int64)
			m.translations[outcome] = p
		}
		m.mu.Unlock()
	}
	atomic.AddInt64(p, 1)
}

// Translations returns the current count for outcome.
func (m *Metrics) Translations(outcome string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.translations[outcome]; ok {
		return atomic.LoadInt64(p)
	}
	return 0
}

// ActiveRequests returns the number of requests in flight.
func (m *Metrics) ActiveRequests() int64 {
	return atomic.LoadInt64(&m.active)
}

// Handler serves GET /metrics.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, m.Render())
	}
}

// Render returns every metric in Prometheus text format. Series are sorted
// so consecutive scrapes diff cleanly.
func (m *Metrics) Render() string {
	var b strings.Builder

	m.mu.RLock()
	durations := make([]requestLabels, 0, len(m.durations))
	for l := range m.durations {
		durations = append(durations, l)
	}
	outcomes := make([]string, 0, len(m.translations))
	for o := range m.translations {
		outcomes = append(outcomes, o)
	}
	m.mu.RUnlock()

	sort.Slice(durations, func(i, j int) bool { return durations[i].String() < durations[j].String() })
	sort.Strings(outcomes)

	header(&b, "http_server_request_duration_seconds", "Duration of HTTP requests in seconds.", "histogram")
	for _, l := range durations {
		m.duration(l).write(&b, "http_server_request_duration_seconds", l.String())
	}
	b.WriteByte('\n')

	header(&b, "http_server_active_requests", "Number of HTTP requests in flight.", "gauge")
	fmt.Fprintf(&b, "http_server_active_requests %d\n\n", m.ActiveRequests())

	header(&b, "http_server_request_size_bytes", "Size of HTTP request bodies in bytes.", "histogram")
	m.requestSize.write(&b, "http_server_request_size_bytes", "")
	b.WriteByte('\n')

	header(&b, "http_server_response_size_bytes", "Size of HTTP response bodies in bytes.", "histogram")
	m.responseSize.write(&b, "http_server_response_size_bytes", "")
	b.WriteByte('\n')

	header(&b, "hl7_translations_total", "HL7v2 messages processed by outcome.", "counter")
	for _, o := range outcomes {
		fmt.Fprintf(&b, "hl7_translations_total{outcome=%q} %d\n", o, m.Translations(o))
	}

	return b.String()
}

func header(b *strings.Builder, name, help, typ string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
}
