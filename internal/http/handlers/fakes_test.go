package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/compiler"
	"github.com/calderhq/calder/internal/pkg/dbctx"
	"github.com/calderhq/calder/internal/services"
	"github.com/calderhq/calder/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// doJSON runs one request through the engine and decodes the response body
// into a generic map for assertions.
func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func errCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

type fakeWorkerService struct {
	registerWorker *types.Worker
	registerErr    error
	heartbeatAt    *time.Time
	heartbeatErr   error
	busy           bool
	busyFragmentID *uuid.UUID
	busyErr        error

	registerTenant uuid.UUID
	registerGroup  *string
	heartbeatID    uuid.UUID
	busyID         uuid.UUID
}

func (f *fakeWorkerService) Register(dbc dbctx.Context, tenantID uuid.UUID, machineGroup *string) (*types.Worker, error) {
	f.registerTenant = tenantID
	f.registerGroup = machineGroup
	return f.registerWorker, f.registerErr
}

func (f *fakeWorkerService) Heartbeat(dbc dbctx.Context, workerID uuid.UUID) (*time.Time, error) {
	f.heartbeatID = workerID
	return f.heartbeatAt, f.heartbeatErr
}

func (f *fakeWorkerService) Busy(dbc dbctx.Context, workerID uuid.UUID) (bool, *uuid.UUID, error) {
	f.busyID = workerID
	return f.busy, f.busyFragmentID, f.busyErr
}

type fakeSchedulerService struct {
	assignment *services.WorkAssignment
	claimErr   error
	status     types.FragmentStatus
	reportErr  error

	claimWorkerID  uuid.UUID
	reportWorkerID uuid.UUID
	reportFragID   uuid.UUID
	reportSuccess  bool
	reportExitCode *int
	reportMessage  *string
}

func (f *fakeSchedulerService) FindAndClaimWork(dbc dbctx.Context, workerID uuid.UUID) (*services.WorkAssignment, error) {
	f.claimWorkerID = workerID
	return f.assignment, f.claimErr
}

func (f *fakeSchedulerService) ReportResult(dbc dbctx.Context, workerID, fragmentID uuid.UUID, success bool, exitCode *int, errorMessage *string) (types.FragmentStatus, error) {
	f.reportWorkerID = workerID
	f.reportFragID = fragmentID
	f.reportSuccess = success
	f.reportExitCode = exitCode
	f.reportMessage = errorMessage
	return f.status, f.reportErr
}

func (f *fakeSchedulerService) SettleAbandoned(dbc dbctx.Context, workerID, fragmentID uuid.UUID, maxAttempts int) (types.FragmentStatus, error) {
	return f.status, nil
}

type fakeQueueService struct {
	metrics *services.QueueMetrics
	err     error

	machineGroup *string
	called       bool
}

func (f *fakeQueueService) Metrics(dbc dbctx.Context, machineGroup *string) (*services.QueueMetrics, error) {
	f.called = true
	f.machineGroup = machineGroup
	return f.metrics, f.err
}

type fakeChainService struct {
	intake    *services.IntakeResult
	intakeErr error
	chain     *types.Chain
	fragments []*types.Fragment
	getErr    error

	content string
	wctx    *compiler.WorkflowContext
	getID   uuid.UUID
}

func (f *fakeChainService) CompileAndStore(dbc dbctx.Context, content string, wctx *compiler.WorkflowContext) (*services.IntakeResult, error) {
	f.content = content
	f.wctx = wctx
	return f.intake, f.intakeErr
}

func (f *fakeChainService) Get(dbc dbctx.Context, chainID uuid.UUID) (*types.Chain, []*types.Fragment, error) {
	f.getID = chainID
	return f.chain, f.fragments, f.getErr
}
