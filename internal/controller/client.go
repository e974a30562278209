package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/calderhq/calder/internal/platform/logger"
)

// QueueMetrics mirrors the orchestrator's /queue/metrics payload.
type QueueMetrics struct {
	PendingFragments int64 `json:"pending_fragments"`
	RunningFragments int64 `json:"running_fragments"`
	ActiveWorkers    int64 `json:"active_workers"`
}

// MetricsClient fetches queue depth from the orchestrator.
type MetricsClient struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

func NewMetricsClient(orchestratorURL string, timeout time.Duration, baseLog *logger.Logger) *MetricsClient {
	return &MetricsClient{
		baseURL: strings.TrimRight(orchestratorURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     baseLog.With("component", "MetricsClient"),
	}
}

func (c *MetricsClient) GetQueueMetrics(ctx context.Context, machineGroup string) (*QueueMetrics, error) {
	endpoint := c.baseURL + "/queue/metrics"
	if machineGroup != "" {
		endpoint += "?machine_group=" + url.QueryEscape(machineGroup)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch queue metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("queue metrics returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var metrics QueueMetrics
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		return nil, fmt.Errorf("decode queue metrics: %w", err)
	}
	return &metrics, nil
}
