package compiler

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/types"
)

// WorkflowContext carries request provenance recorded onto the compiled chain.
type WorkflowContext struct {
	TenantID       uuid.UUID
	SourceFilePath *string
	RepositoryURL  *string
	CommitSHA      *string
	Branch         *string
	Trigger        *types.TriggerType
	TriggerRef     *string
}

// Compiled is a chain and its fragments ready for storage.
type Compiled struct {
	Chain     *types.Chain
	Fragments []*types.Fragment
}

// Service compiles workflow documents into storable chains.
type Service struct {
	parser *Parser
	log    *logger.Logger
}

func NewService(fetcher Fetcher, baseLog *logger.Logger) *Service {
	return &Service{
		parser: NewParser(fetcher),
		log:    baseLog.With("service", "compiler"),
	}
}

// Compile parses content and validates that the document declares the
// trigger named in wctx. A nil trigger skips the check.
func (s *Service) Compile(ctx context.Context, content string, wctx *WorkflowContext) (*Compiled, error) {
	parsed, err := s.parser.ParseWorkflow(ctx, content, wctx.SourceFilePath)
	if err != nil {
		return nil, err
	}

	if wctx.Trigger != nil {
		want := string(*wctx.Trigger)
		if !slices.Contains(parsed.Triggers, want) {
			return nil, &InvalidTriggerError{Trigger: want, Supported: parsed.Triggers}
		}
	}

	return s.assemble(parsed, wctx)
}

// CompileAnyTrigger parses content regardless of which triggers the
// document declares.
func (s *Service) CompileAnyTrigger(ctx context.Context, content string, wctx *WorkflowContext) (*Compiled, error) {
	parsed, err := s.parser.ParseWorkflow(ctx, content, wctx.SourceFilePath)
	if err != nil {
		return nil, err
	}
	return s.assemble(parsed, wctx)
}

func (s *Service) assemble(parsed *ParsedChain, wctx *WorkflowContext) (*Compiled, error) {
	chain := types.NewChain(wctx.TenantID)
	chain.ID = parsed.ID
	defaultMachine := parsed.DefaultMachine
	chain.DefaultMachine = &defaultMachine
	chain.SourceFilePath = wctx.SourceFilePath
	chain.RepositoryURL = wctx.RepositoryURL
	chain.CommitSHA = wctx.CommitSHA
	chain.Branch = wctx.Branch
	chain.Trigger = wctx.Trigger
	chain.TriggerRef = wctx.TriggerRef

	fragments := make([]*types.Fragment, 0, len(parsed.Fragments))
	for _, pf := range parsed.Fragments {
		frag, err := convertFragment(pf, chain.ID)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, frag)
	}

	s.log.Debug("compiled workflow",
		"chain_id", chain.ID,
		"fragments", len(fragments),
		"triggers", parsed.Triggers,
	)
	return &Compiled{Chain: chain, Fragments: fragments}, nil
}

func convertFragment(pf *ParsedFragment, chainID uuid.UUID) (*types.Fragment, error) {
	var frag *types.Fragment
	switch pf.Type {
	case types.FragmentTypeGroup:
		frag = types.NewGroupFragment(chainID, pf.Sequence)
	default:
		if pf.RunScript == nil {
			return nil, ErrNoContent
		}
		if pf.Machine == nil {
			return nil, ErrNoMachine
		}
		frag = types.NewInlineFragment(chainID, pf.Sequence, *pf.RunScript)
	}

	frag.ID = pf.ID
	frag.ParentFragmentID = pf.ParentID
	frag.IsParallel = pf.IsParallel
	frag.MachineGroup = pf.Machine
	frag.Condition = pf.Condition
	frag.SourceURL = pf.SourceURL
	return frag, nil
}
