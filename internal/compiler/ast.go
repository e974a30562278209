package compiler

import (
	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/types"
)

// ParsedChain is the flattened result of compiling a workflow document.
// Imports are already resolved, so only inline fragments and groups remain.
type ParsedChain struct {
	ID             uuid.UUID
	Triggers       []string
	DefaultMachine string
	Fragments      []*ParsedFragment
}

// ParsedFragment is one executable unit or parallel group before it is
// converted into a storable fragment row.
type ParsedFragment struct {
	ID         uuid.UUID
	ParentID   *uuid.UUID
	Sequence   int
	Type       types.FragmentType
	RunScript  *string
	Machine    *string
	Condition  *string
	IsParallel bool
	SourceURL  *string
}

func newInlineParsed(runScript string) *ParsedFragment {
	return &ParsedFragment{
		ID:        uuid.New(),
		Type:      types.FragmentTypeInline,
		RunScript: &runScript,
	}
}

func newGroupParsed() *ParsedFragment {
	return &ParsedFragment{
		ID:         uuid.New(),
		Type:       types.FragmentTypeGroup,
		IsParallel: true,
	}
}
