package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ChainStatus string

const (
	ChainStatusActive    ChainStatus = "active"
	ChainStatusRunning   ChainStatus = "running"
	ChainStatusCompleted ChainStatus = "completed"
	ChainStatusFailed    ChainStatus = "failed"
	ChainStatusSuspended ChainStatus = "suspended"
	ChainStatusError     ChainStatus = "error"
)

// Terminal reports whether the chain will make no further progress.
func (s ChainStatus) Terminal() bool {
	return s == ChainStatusCompleted || s == ChainStatusFailed
}

type TriggerType string

const (
	TriggerTag         TriggerType = "tag"
	TriggerPush        TriggerType = "push"
	TriggerPullRequest TriggerType = "pull_request"
	TriggerSchedule    TriggerType = "schedule"
	TriggerManual      TriggerType = "manual"
)

// ParseTriggerType validates a wire-format trigger string, ignoring case.
func ParseTriggerType(s string) (TriggerType, error) {
	t := TriggerType(strings.ToLower(s))
	switch t {
	case TriggerTag, TriggerPush, TriggerPullRequest, TriggerSchedule, TriggerManual:
		return t, nil
	}
	return "", fmt.Errorf("invalid trigger type: %s", s)
}

// Chain is one compiled workflow run: the unit a document becomes when it is
// parsed, and the unit whose fragments the scheduler hands to workers.
type Chain struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID       uuid.UUID    `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Status         ChainStatus  `gorm:"column:status;not null;index" json:"status"`
	Attempt        int          `gorm:"column:attempt;not null;default:1" json:"attempt"`
	SourceFilePath *string      `gorm:"column:source_file_path" json:"source_file_path,omitempty"`
	RepositoryURL  *string      `gorm:"column:repository_url" json:"repository_url,omitempty"`
	CommitSHA      *string      `gorm:"column:commit_sha" json:"commit_sha,omitempty"`
	Branch         *string      `gorm:"column:branch" json:"branch,omitempty"`
	Trigger        *TriggerType `gorm:"column:trigger" json:"trigger,omitempty"`
	TriggerRef     *string      `gorm:"column:trigger_ref" json:"trigger_ref,omitempty"`
	DefaultMachine *string      `gorm:"column:default_machine" json:"default_machine,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:now()" json:"updated_at"`
	StartedAt      *time.Time   `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time   `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Chain) TableName() string { return "chains" }

// NewChain returns a chain ready for insertion: queued and on its first attempt.
func NewChain(tenantID uuid.UUID) *Chain {
	return &Chain{
		ID:       uuid.New(),
		TenantID: tenantID,
		Status:   ChainStatusActive,
		Attempt:  1,
	}
}
