package types

import (
	"time"

	"github.com/google/uuid"
)

type WorkerStatus string

const (
	WorkerStatusActive    WorkerStatus = "active"
	WorkerStatusSuspended WorkerStatus = "suspended"
	WorkerStatusError     WorkerStatus = "error"
)

// Worker is one registered execution agent. A nil MachineGroup means the
// worker accepts fragments from any group.
type Worker struct {
	ID                uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          uuid.UUID    `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Status            WorkerStatus `gorm:"column:status;not null;index" json:"status"`
	MachineGroup      *string      `gorm:"column:machine_group;index" json:"machine_group,omitempty"`
	CurrentFragmentID *uuid.UUID   `gorm:"type:uuid;column:current_fragment_id" json:"current_fragment_id,omitempty"`
	LastHeartbeatAt   *time.Time   `gorm:"column:last_heartbeat_at;index" json:"last_heartbeat_at,omitempty"`
	CreatedAt         time.Time    `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null;default:now()" json:"updated_at"`
}

func (Worker) TableName() string { return "workers" }

// NewWorker returns an active worker with a fresh heartbeat.
func NewWorker(tenantID uuid.UUID, machineGroup *string) *Worker {
	now := time.Now().UTC()
	return &Worker{
		ID:              uuid.New(),
		TenantID:        tenantID,
		Status:          WorkerStatusActive,
		MachineGroup:    machineGroup,
		LastHeartbeatAt: &now,
	}
}
