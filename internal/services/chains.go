package services

import (
	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/compiler"
	"github.com/calderhq/calder/internal/pkg/dbctx"
	pkgerrors "github.com/calderhq/calder/internal/pkg/errors"
	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/repos"
	"github.com/calderhq/calder/internal/types"
)

// IntakeResult is returned after a workflow document has been compiled and
// persisted.
type IntakeResult struct {
	ChainID       uuid.UUID
	FragmentCount int
}

// ChainService turns workflow documents into stored chains and reads them
// back for status queries.
type ChainService interface {
	CompileAndStore(dbc dbctx.Context, content string, wctx *compiler.WorkflowContext) (*IntakeResult, error)
	Get(dbc dbctx.Context, chainID uuid.UUID) (*types.Chain, []*types.Fragment, error)
}

type chainService struct {
	log       *logger.Logger
	compiler  *compiler.Service
	chains    repos.ChainRepo
	fragments repos.FragmentRepo
}

func NewChainService(log *logger.Logger, compilerSvc *compiler.Service, chains repos.ChainRepo, fragments repos.FragmentRepo) ChainService {
	return &chainService{
		log:       log.With("service", "ChainService"),
		compiler:  compilerSvc,
		chains:    chains,
		fragments: fragments,
	}
}

// CompileAndStore compiles the document and writes the chain with all of its
// fragments in one transaction. When the context carries a trigger the
// workflow must declare it; without one the declared triggers are not
// checked, which is how stored workflows are re-submitted on later events.
func (s *chainService) CompileAndStore(dbc dbctx.Context, content string, wctx *compiler.WorkflowContext) (*IntakeResult, error) {
	var (
		compiled *compiler.Compiled
		err      error
	)
	if wctx.Trigger != nil {
		compiled, err = s.compiler.Compile(dbc.Ctx, content, wctx)
	} else {
		compiled, err = s.compiler.CompileAnyTrigger(dbc.Ctx, content, wctx)
	}
	if err != nil {
		return nil, err
	}

	if err := s.chains.CreateWithFragments(dbc, compiled.Chain, compiled.Fragments); err != nil {
		return nil, err
	}

	s.log.Info("workflow stored",
		"chain_id", compiled.Chain.ID,
		"tenant_id", wctx.TenantID,
		"fragments", len(compiled.Fragments))

	return &IntakeResult{
		ChainID:       compiled.Chain.ID,
		FragmentCount: len(compiled.Fragments),
	}, nil
}

func (s *chainService) Get(dbc dbctx.Context, chainID uuid.UUID) (*types.Chain, []*types.Fragment, error) {
	chain, err := s.chains.GetByID(dbc, chainID)
	if err != nil {
		return nil, nil, err
	}
	if chain == nil {
		return nil, nil, pkgerrors.ErrChainNotFound
	}
	fragments, err := s.fragments.FindByChain(dbc, chainID)
	if err != nil {
		return nil, nil, err
	}
	return chain, fragments, nil
}
