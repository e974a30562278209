package types

import (
	"time"

	"github.com/google/uuid"
)

type FragmentStatus string

const (
	FragmentStatusPending   FragmentStatus = "pending"
	FragmentStatusRunning   FragmentStatus = "running"
	FragmentStatusCompleted FragmentStatus = "completed"
	FragmentStatusFailed    FragmentStatus = "failed"
	FragmentStatusActive    FragmentStatus = "active"
	FragmentStatusSuspended FragmentStatus = "suspended"
	FragmentStatusError     FragmentStatus = "error"
)

// Terminal reports whether the fragment has finished executing. Sequential
// siblings become eligible once everything before them is terminal.
func (s FragmentStatus) Terminal() bool {
	return s == FragmentStatusCompleted || s == FragmentStatusFailed
}

type FragmentType string

const (
	// FragmentTypeInline carries a script and is what workers execute.
	FragmentTypeInline FragmentType = "inline"
	// FragmentTypeGroup is the container produced by a parallel block. It is
	// never claimed; its status rolls up from its children.
	FragmentTypeGroup FragmentType = "group"
)

// Fragment is one schedulable unit of a chain.
type Fragment struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ChainID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"chain_id"`
	ParentFragmentID *uuid.UUID     `gorm:"type:uuid;column:parent_fragment_id;index" json:"parent_fragment_id,omitempty"`
	SequenceOrder    int            `gorm:"column:sequence_order;not null" json:"sequence_order"`
	FragmentType     FragmentType   `gorm:"column:fragment_type;not null" json:"fragment_type"`
	RunScript        *string        `gorm:"column:run_script" json:"run_script,omitempty"`
	MachineGroup     *string        `gorm:"column:machine_group;index" json:"machine_group,omitempty"`
	IsParallel       bool           `gorm:"column:is_parallel;not null;default:false" json:"is_parallel"`
	Condition        *string        `gorm:"column:condition" json:"condition,omitempty"`
	SourceURL        *string        `gorm:"column:source_url" json:"source_url,omitempty"`
	Status           FragmentStatus `gorm:"column:status;not null;index" json:"status"`
	Attempt          int            `gorm:"column:attempt;not null;default:1" json:"attempt"`
	AssignedWorkerID *uuid.UUID     `gorm:"type:uuid;column:assigned_worker_id;index" json:"assigned_worker_id,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	StartedAt        *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ExitCode         *int           `gorm:"column:exit_code" json:"exit_code,omitempty"`
	ErrorMessage     *string        `gorm:"column:error_message" json:"error_message,omitempty"`
}

func (Fragment) TableName() string { return "fragments" }

// NewInlineFragment returns a claimable script fragment.
func NewInlineFragment(chainID uuid.UUID, sequence int, runScript string) *Fragment {
	return &Fragment{
		ID:            uuid.New(),
		ChainID:       chainID,
		SequenceOrder: sequence,
		FragmentType:  FragmentTypeInline,
		RunScript:     &runScript,
		Status:        FragmentStatusPending,
		Attempt:       1,
	}
}

// NewGroupFragment returns the container row for a parallel block.
func NewGroupFragment(chainID uuid.UUID, sequence int) *Fragment {
	return &Fragment{
		ID:            uuid.New(),
		ChainID:       chainID,
		SequenceOrder: sequence,
		FragmentType:  FragmentTypeGroup,
		IsParallel:    true,
		Status:        FragmentStatusPending,
		Attempt:       1,
	}
}
