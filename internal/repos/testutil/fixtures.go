package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calderhq/calder/internal/types"
)

func SeedChain(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) *types.Chain {
	tb.Helper()
	c := types.NewChain(tenantID)
	machine := "default-worker"
	c.DefaultMachine = &machine
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chain: %v", err)
	}
	return c
}

func SeedFragment(tb testing.TB, ctx context.Context, tx *gorm.DB, chainID uuid.UUID, sequence int, script string) *types.Fragment {
	tb.Helper()
	f := types.NewInlineFragment(chainID, sequence, script)
	machine := "default-worker"
	f.MachineGroup = &machine
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed fragment: %v", err)
	}
	return f
}

func SeedGroup(tb testing.TB, ctx context.Context, tx *gorm.DB, chainID uuid.UUID, sequence int) *types.Fragment {
	tb.Helper()
	f := types.NewGroupFragment(chainID, sequence)
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed group: %v", err)
	}
	return f
}

func SeedWorker(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, machineGroup *string) *types.Worker {
	tb.Helper()
	w := types.NewWorker(tenantID, machineGroup)
	if err := tx.WithContext(ctx).Create(w).Error; err != nil {
		tb.Fatalf("seed worker: %v", err)
	}
	return w
}
