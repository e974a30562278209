package controller

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/platform/envutil"
)

// Config is the controller's environment-driven configuration.
type Config struct {
	OrchestratorURL     string
	TenantID            uuid.UUID
	MachineGroup        string
	DeploymentName      string
	DeploymentNamespace string

	MinReplicas            int32
	MaxReplicas            int32
	TargetPendingPerWorker float64
	ScaleDownDelay         time.Duration
	PollInterval           time.Duration

	LogMode string
}

// LoadConfig reads the controller configuration. The orchestrator URL,
// tenant, machine group and deployment coordinates are required; scaling
// knobs default to a small fleet.
func LoadConfig() (Config, error) {
	orchestratorURL, err := envutil.Require("ORCHESTRATOR_URL")
	if err != nil {
		return Config{}, err
	}
	tenantID, err := envutil.RequireUUID("TENANT_ID")
	if err != nil {
		return Config{}, err
	}
	machineGroup, err := envutil.Require("MACHINE_GROUP")
	if err != nil {
		return Config{}, err
	}
	deploymentName, err := envutil.Require("DEPLOYMENT_NAME")
	if err != nil {
		return Config{}, err
	}
	deploymentNamespace, err := envutil.Require("DEPLOYMENT_NAMESPACE")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		OrchestratorURL:        orchestratorURL,
		TenantID:               tenantID,
		MachineGroup:           machineGroup,
		DeploymentName:         deploymentName,
		DeploymentNamespace:    deploymentNamespace,
		MinReplicas:            int32(envutil.Int("MIN_REPLICAS", 0)),
		MaxReplicas:            int32(envutil.Int("MAX_REPLICAS", 10)),
		TargetPendingPerWorker: envutil.Float("TARGET_PENDING_PER_WORKER", 1.0),
		ScaleDownDelay:         envutil.Seconds("SCALE_DOWN_DELAY_SECONDS", 300*time.Second),
		PollInterval:           envutil.Seconds("POLL_INTERVAL_SECONDS", 30*time.Second),
		LogMode:                envutil.Str("LOG_MODE", "dev"),
	}

	if cfg.MinReplicas < 0 {
		return Config{}, fmt.Errorf("MIN_REPLICAS must not be negative, got %d", cfg.MinReplicas)
	}
	if cfg.MaxReplicas < cfg.MinReplicas {
		return Config{}, fmt.Errorf("MAX_REPLICAS (%d) must be >= MIN_REPLICAS (%d)", cfg.MaxReplicas, cfg.MinReplicas)
	}
	return cfg, nil
}
