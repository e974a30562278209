package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/platform/logger"
)

// APIError is an error envelope returned by the orchestrator.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("orchestrator returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("orchestrator returned %d: %s", e.StatusCode, e.Message)
}

// HTTPStatusCode implements httpx.HTTPStatusCoder so retry helpers can
// classify the failure.
func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

// RegisterResponse is the orchestrator's answer to a registration.
type RegisterResponse struct {
	WorkerID uuid.UUID `json:"worker_id"`
	Status   string    `json:"status"`
}

// Work is one fragment assignment received from /work/request.
type Work struct {
	FragmentID uuid.UUID `json:"fragment_id"`
	ChainID    uuid.UUID `json:"chain_id"`
	RunScript  *string   `json:"run_script"`
	Attempt    int       `json:"attempt"`
}

// Client is the worker's typed HTTP client for the orchestrator API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(cfg Config, baseLog *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.OrchestratorURL, "/"),
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		log:     baseLog.With("component", "OrchestratorClient"),
	}
}

func (c *Client) Register(ctx context.Context, tenantID uuid.UUID, machineGroup *string) (*RegisterResponse, error) {
	body := map[string]any{"tenant_id": tenantID}
	if machineGroup != nil {
		body["machine_group"] = *machineGroup
	}
	var resp RegisterResponse
	if err := c.post(ctx, "/workers/register", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Heartbeat(ctx context.Context, workerID uuid.UUID) error {
	return c.post(ctx, "/workers/heartbeat", map[string]any{"worker_id": workerID}, nil)
}

// RequestWork asks for the next fragment. Returns (nil, nil) when the
// orchestrator has nothing ready (204).
func (c *Client) RequestWork(ctx context.Context, workerID uuid.UUID) (*Work, error) {
	req, err := c.newRequest(ctx, "/work/request", map[string]any{"worker_id": workerID})
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request work: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var work Work
	if err := json.NewDecoder(resp.Body).Decode(&work); err != nil {
		return nil, fmt.Errorf("decode work payload: %w", err)
	}
	return &work, nil
}

func (c *Client) ReportResult(ctx context.Context, workerID, fragmentID uuid.UUID, success bool, exitCode *int, errorMessage *string) error {
	body := map[string]any{
		"worker_id":   workerID,
		"fragment_id": fragmentID,
		"success":     success,
	}
	if exitCode != nil {
		body["exit_code"] = *exitCode
	}
	if errorMessage != nil {
		body["error_message"] = *errorMessage
	}
	return c.post(ctx, "/work/result", body, nil)
}

func (c *Client) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	req, err := c.newRequest(ctx, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Code = envelope.Error.Code
	}
	return apiErr
}
