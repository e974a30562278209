package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/compiler"
	pkgerrors "github.com/calderhq/calder/internal/pkg/errors"
	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/types"
)

const intakeWorkflow = `version "0.1"

triggers "push" "tag"

chain {
    machine "default-x86"

    fragment {
        run "make build"
    }

    fragment {
        run "make test"
    }
}
`

func chainHarness(t *testing.T) (*fakeStore, ChainService) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	store := newFakeStore()
	compilerSvc := compiler.NewService(compiler.RejectFetcher{}, log)
	svc := NewChainService(log, compilerSvc,
		&fakeChainRepo{s: store},
		&fakeFragmentRepo{s: store})
	return store, svc
}

func TestCompileAndStorePersistsChain(t *testing.T) {
	store, svc := chainHarness(t)
	tenantID := uuid.New()
	trigger := types.TriggerPush

	result, err := svc.CompileAndStore(testCtx(), intakeWorkflow, &compiler.WorkflowContext{
		TenantID:   tenantID,
		Trigger:    &trigger,
		TriggerRef: strP("refs/heads/main"),
		Branch:     strP("main"),
	})
	if err != nil {
		t.Fatalf("CompileAndStore: %v", err)
	}
	if result.FragmentCount != 2 {
		t.Fatalf("fragment count: want=2 got=%d", result.FragmentCount)
	}

	stored := store.chain(result.ChainID)
	if stored.TenantID != tenantID {
		t.Fatalf("tenant: want=%s got=%s", tenantID, stored.TenantID)
	}
	if stored.Status != types.ChainStatusActive {
		t.Fatalf("status: want=active got=%s", stored.Status)
	}
	if stored.Trigger == nil || *stored.Trigger != types.TriggerPush {
		t.Fatalf("trigger: got=%v", stored.Trigger)
	}
	if stored.DefaultMachine == nil || *stored.DefaultMachine != "default-x86" {
		t.Fatalf("default machine: got=%v", stored.DefaultMachine)
	}

	if len(store.fragments) != 2 {
		t.Fatalf("stored fragments: want=2 got=%d", len(store.fragments))
	}
	for _, f := range store.fragments {
		if f.ChainID != result.ChainID {
			t.Fatalf("fragment chain: want=%s got=%s", result.ChainID, f.ChainID)
		}
		if f.Status != types.FragmentStatusPending {
			t.Fatalf("fragment status: want=pending got=%s", f.Status)
		}
	}
}

func TestCompileAndStoreRejectsUndeclaredTrigger(t *testing.T) {
	store, svc := chainHarness(t)
	trigger := types.TriggerSchedule

	_, err := svc.CompileAndStore(testCtx(), intakeWorkflow, &compiler.WorkflowContext{
		TenantID: uuid.New(),
		Trigger:  &trigger,
	})
	if err == nil {
		t.Fatalf("CompileAndStore: want error for undeclared trigger")
	}
	if !compiler.IsError(err) {
		t.Fatalf("CompileAndStore: want compiler error, got %v", err)
	}
	if len(store.chains) != 0 || len(store.fragments) != 0 {
		t.Fatalf("rejected workflow must not be stored")
	}
}

func TestCompileAndStoreWithoutTriggerSkipsValidation(t *testing.T) {
	_, svc := chainHarness(t)

	result, err := svc.CompileAndStore(testCtx(), intakeWorkflow, &compiler.WorkflowContext{
		TenantID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("CompileAndStore: %v", err)
	}
	if result.FragmentCount != 2 {
		t.Fatalf("fragment count: want=2 got=%d", result.FragmentCount)
	}
}

func TestChainGet(t *testing.T) {
	_, svc := chainHarness(t)
	trigger := types.TriggerPush

	result, err := svc.CompileAndStore(testCtx(), intakeWorkflow, &compiler.WorkflowContext{
		TenantID: uuid.New(),
		Trigger:  &trigger,
	})
	if err != nil {
		t.Fatalf("CompileAndStore: %v", err)
	}

	chain, fragments, err := svc.Get(testCtx(), result.ChainID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if chain.ID != result.ChainID {
		t.Fatalf("chain id: want=%s got=%s", result.ChainID, chain.ID)
	}
	if len(fragments) != 2 {
		t.Fatalf("fragments: want=2 got=%d", len(fragments))
	}
	if fragments[0].SequenceOrder != 0 || fragments[1].SequenceOrder != 1 {
		t.Fatalf("fragment order: got=%d,%d", fragments[0].SequenceOrder, fragments[1].SequenceOrder)
	}
}

func TestChainGetUnknown(t *testing.T) {
	_, svc := chainHarness(t)

	_, _, err := svc.Get(testCtx(), uuid.New())
	if !errors.Is(err, pkgerrors.ErrChainNotFound) {
		t.Fatalf("Get: want=ErrChainNotFound got=%v", err)
	}
}
