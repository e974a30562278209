package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/pkg/dbctx"
	"github.com/calderhq/calder/internal/repos/testutil"
	"github.com/calderhq/calder/internal/types"
)

func TestChainRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.WithTx(ctx, tx)
	repo := NewChainRepo(db, testutil.Logger(t))

	chain := testutil.SeedChain(t, ctx, tx, uuid.New())

	if err := repo.MarkStarted(dbc, chain.ID); err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	got, err := repo.GetByID(dbc, chain.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ChainStatusRunning {
		t.Fatalf("status after start: want=running got=%s", got.Status)
	}
	if got.StartedAt == nil {
		t.Fatal("started_at: expected timestamp")
	}
	firstStart := *got.StartedAt

	// A later claim on the same chain must not move started_at.
	if err := repo.MarkStarted(dbc, chain.ID); err != nil {
		t.Fatalf("MarkStarted repeat: %v", err)
	}
	got, err = repo.GetByID(dbc, chain.ID)
	if err != nil {
		t.Fatalf("GetByID repeat: %v", err)
	}
	if !got.StartedAt.Equal(firstStart) {
		t.Fatalf("started_at moved: want=%v got=%v", firstStart, got.StartedAt)
	}

	if err := repo.MarkCompleted(dbc, chain.ID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	got, err = repo.GetByID(dbc, chain.ID)
	if err != nil {
		t.Fatalf("GetByID completed: %v", err)
	}
	if got.Status != types.ChainStatusCompleted || got.CompletedAt == nil {
		t.Fatalf("completed: status=%s completed_at=%v", got.Status, got.CompletedAt)
	}
}

func TestChainRepoCreateWithFragments(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.WithTx(ctx, tx)
	chains := NewChainRepo(db, testutil.Logger(t))
	fragments := NewFragmentRepo(db, testutil.Logger(t))

	chain := types.NewChain(uuid.New())
	machine := "default-worker"
	chain.DefaultMachine = &machine
	frags := []*types.Fragment{
		types.NewInlineFragment(chain.ID, 0, "echo build"),
		types.NewInlineFragment(chain.ID, 1, "echo test"),
	}

	if err := chains.CreateWithFragments(dbc, chain, frags); err != nil {
		t.Fatalf("CreateWithFragments: %v", err)
	}

	stored, err := fragments.FindByChain(dbc, chain.ID)
	if err != nil {
		t.Fatalf("FindByChain: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored fragments: want=2 got=%d", len(stored))
	}
	for _, f := range stored {
		if f.Status != types.FragmentStatusPending {
			t.Fatalf("fragment %v status: want=pending got=%s", f.ID, f.Status)
		}
	}

	got, err := chains.GetByID(dbc, chain.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ChainStatusActive || got.Attempt != 1 {
		t.Fatalf("new chain: status=%s attempt=%d", got.Status, got.Attempt)
	}
}
