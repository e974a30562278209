package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	pkgerrors "github.com/calderhq/calder/internal/pkg/errors"
	"github.com/calderhq/calder/internal/types"
)

func workerRouter(svc *fakeWorkerService) *gin.Engine {
	h := NewWorkerHandler(svc, nil)
	r := gin.New()
	r.POST("/workers/register", h.Register)
	r.POST("/workers/heartbeat", h.Heartbeat)
	r.GET("/workers/:id/busy", h.Busy)
	return r
}

func TestWorkerRegisterEndpoint(t *testing.T) {
	tenantID := uuid.New()
	group := "gpu-large"
	worker := types.NewWorker(tenantID, &group)
	svc := &fakeWorkerService{registerWorker: worker}
	r := workerRouter(svc)

	rec, body := doJSON(t, r, http.MethodPost, "/workers/register", map[string]any{
		"tenant_id":     tenantID.String(),
		"machine_group": group,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := body["worker_id"]; got != worker.ID.String() {
		t.Fatalf("unexpected worker_id: got=%v want=%s", got, worker.ID)
	}
	if got := body["status"]; got != string(types.WorkerStatusActive) {
		t.Fatalf("unexpected status field: got=%v", got)
	}
	if svc.registerTenant != tenantID {
		t.Fatalf("service saw tenant %s, want %s", svc.registerTenant, tenantID)
	}
	if svc.registerGroup == nil || *svc.registerGroup != group {
		t.Fatalf("service saw machine group %v, want %q", svc.registerGroup, group)
	}
}

func TestWorkerRegisterRejectsBadTenant(t *testing.T) {
	svc := &fakeWorkerService{}
	r := workerRouter(svc)

	rec, body := doJSON(t, r, http.MethodPost, "/workers/register", map[string]any{
		"tenant_id": "not-a-uuid",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
	if code := errCode(t, body); code != "INVALID_REQUEST" {
		t.Fatalf("unexpected error code: got=%q", code)
	}
}

func TestWorkerHeartbeatEndpoint(t *testing.T) {
	now := time.Now().UTC()
	svc := &fakeWorkerService{heartbeatAt: &now}
	r := workerRouter(svc)
	workerID := uuid.New()

	rec, body := doJSON(t, r, http.MethodPost, "/workers/heartbeat", map[string]any{
		"worker_id": workerID.String(),
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := body["status"]; got != "ok" {
		t.Fatalf("unexpected status field: got=%v", got)
	}
	if body["timestamp"] == nil {
		t.Fatalf("expected timestamp, got %v", body)
	}
	if svc.heartbeatID != workerID {
		t.Fatalf("service saw worker %s, want %s", svc.heartbeatID, workerID)
	}
}

func TestWorkerHeartbeatUnknownWorker(t *testing.T) {
	svc := &fakeWorkerService{heartbeatErr: pkgerrors.ErrWorkerNotFound}
	r := workerRouter(svc)

	rec, body := doJSON(t, r, http.MethodPost, "/workers/heartbeat", map[string]any{
		"worker_id": uuid.New().String(),
	})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNotFound)
	}
	if code := errCode(t, body); code != "WORKER_NOT_FOUND" {
		t.Fatalf("unexpected error code: got=%q", code)
	}
}

func TestWorkerBusyEndpoint(t *testing.T) {
	fragID := uuid.New()
	svc := &fakeWorkerService{busy: true, busyFragmentID: &fragID}
	r := workerRouter(svc)

	rec, body := doJSON(t, r, http.MethodGet, "/workers/"+uuid.New().String()+"/busy", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := body["busy"]; got != true {
		t.Fatalf("unexpected busy field: got=%v", got)
	}
	if got := body["fragment_id"]; got != fragID.String() {
		t.Fatalf("unexpected fragment_id: got=%v want=%s", got, fragID)
	}
}

func TestWorkerBusyBadID(t *testing.T) {
	svc := &fakeWorkerService{}
	r := workerRouter(svc)

	rec, body := doJSON(t, r, http.MethodGet, "/workers/nope/busy", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
	if code := errCode(t, body); code != "INVALID_REQUEST" {
		t.Fatalf("unexpected error code: got=%q", code)
	}
}
