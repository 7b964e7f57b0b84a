package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmdatafocus/anomaly_backend/config"
	"github.com/mmdatafocus/anomaly_backend/metrics"
	"github.com/mmdatafocus/anomaly_backend/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnavailable is the only failure the client returns. Timeouts, connection
// errors, non-2xx statuses and undecodable bodies all collapse into it.
var ErrUnavailable = errors.New("upstream unavailable")

const (
	OpList   = "list"
	OpReport = "report"
	OpDetect = "detect"

	pathAnomalies = "/api/v1/anomalies"
	pathReport    = "/api/v1/anomalies/report"
	pathDetect    = "/api/v1/anomalies/detect"

	maxBodyBytes = 10 << 20
)

var tracer = otel.Tracer("github.com/mmdatafocus/anomaly_backend/upstream")

// Anomaly is one record as the upstream service reports it.
type Anomaly struct {
	ID          string                 `json:"id" validate:"required,max=64"`
	Type        models.AnomalyType     `json:"type" validate:"required,oneof=ledger_divergence dao_vote_failure commit_anomaly node_desync network_latency data_corruption"`
	Description string                 `json:"description"`
	Severity    models.AnomalySeverity `json:"severity" validate:"required,oneof=low medium high critical"`
	Status      string                 `json:"status"`
	Source      string                 `json:"source" validate:"max=255"`
	Metadata    models.Metadata        `json:"metadata"`
	DetectedAt  time.Time              `json:"detected_at"`
	ResolvedAt  *time.Time             `json:"resolved_at,omitempty"`
	Resolution  string                 `json:"resolution,omitempty"`
}

// Client talks to the upstream anomaly service. It never retries; a single
// failed attempt is reported as ErrUnavailable.
type Client struct {
	baseURL       string
	http          *http.Client
	listTimeout   time.Duration
	reportTimeout time.Duration
	detectTimeout time.Duration
	logger        *logrus.Logger
}

func NewClient(cfg config.UpstreamSettings, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Client{
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:          &http.Client{},
		listTimeout:   orDefault(cfg.ListTimeout, 5*time.Second),
		reportTimeout: orDefault(cfg.ReportTimeout, 5*time.Second),
		detectTimeout: orDefault(cfg.DetectTimeout, 10*time.Second),
		logger:        logger,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// FetchAnomalyList returns the upstream's current anomaly list.
func (c *Client) FetchAnomalyList(ctx context.Context) ([]Anomaly, error) {
	var anomalies []Anomaly
	if err := c.do(ctx, OpList, http.MethodGet, pathAnomalies, c.listTimeout, &anomalies); err != nil {
		return nil, err
	}
	return anomalies, nil
}

// FetchReport returns the upstream's own aggregate report.
func (c *Client) FetchReport(ctx context.Context) (models.StatsSnapshot, error) {
	var report models.StatsSnapshot
	if err := c.do(ctx, OpReport, http.MethodGet, pathReport, c.reportTimeout, &report); err != nil {
		return models.StatsSnapshot{}, err
	}
	return report, nil
}

// TriggerDetect asks upstream to run detection and returns its acknowledgement as is.
func (c *Client) TriggerDetect(ctx context.Context) (json.RawMessage, error) {
	var ack json.RawMessage
	if err := c.do(ctx, OpDetect, http.MethodPost, pathDetect, c.detectTimeout, &ack); err != nil {
		return nil, err
	}
	return ack, nil
}

func (c *Client) do(ctx context.Context, op string, method string, path string, timeout time.Duration, dest any) (err error) {
	ctx, span := tracer.Start(ctx, "upstream."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("http.method", method), attribute.String("upstream.path", path))
	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeUnavailable
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(op, outcome).Inc()
		metrics.UpstreamRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		span.End()
	}()

	if c.baseURL == "" {
		return c.unavailable(op, errors.New("UPSTREAM_BASE_URL not set"))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader("{}")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return c.unavailable(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.unavailable(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.unavailable(op, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.unavailable(op, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(raw)), 512)))
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return c.unavailable(op, fmt.Errorf("decode body: %w", err))
	}
	return nil
}

// unavailable logs the transport detail and drops it.
func (c *Client) unavailable(op string, cause error) error {
	c.logger.WithFields(logrus.Fields{
		"module":   "upstream",
		"funcName": op,
		"context":  "upstream call failed",
	}).Warn(cause.Error())
	return fmt.Errorf("%s: %w", op, ErrUnavailable)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
