package worker

import (
	"time"

	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/platform/envutil"
)

// SandboxConfig controls optional bubblewrap isolation for scripts.
type SandboxConfig struct {
	Enabled     bool
	Network     bool
	WritableDir string
}

// Config is the worker's environment-driven configuration.
type Config struct {
	OrchestratorURL string
	TenantID        uuid.UUID
	MachineGroup    *string

	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	RequestTimeout    time.Duration
	ScriptTimeout     time.Duration

	LogMode string

	Sandbox SandboxConfig
}

// LoadConfig reads the worker configuration. ORCHESTRATOR_URL and TENANT_ID
// are required; everything else has a default.
func LoadConfig() (Config, error) {
	orchestratorURL, err := envutil.Require("ORCHESTRATOR_URL")
	if err != nil {
		return Config{}, err
	}
	tenantID, err := envutil.RequireUUID("TENANT_ID")
	if err != nil {
		return Config{}, err
	}

	var machineGroup *string
	if mg := envutil.Str("MACHINE_GROUP", ""); mg != "" {
		machineGroup = &mg
	}

	return Config{
		OrchestratorURL:   orchestratorURL,
		TenantID:          tenantID,
		MachineGroup:      machineGroup,
		HeartbeatInterval: envutil.Seconds("HEARTBEAT_INTERVAL_SECS", 10*time.Second),
		PollInterval:      envutil.Seconds("POLL_INTERVAL_SECS", 5*time.Second),
		RequestTimeout:    envutil.Seconds("REQUEST_TIMEOUT_SECS", 30*time.Second),
		ScriptTimeout:     envutil.Seconds("SCRIPT_TIMEOUT_SECS", 300*time.Second),
		LogMode:           envutil.Str("LOG_MODE", "dev"),
		Sandbox: SandboxConfig{
			Enabled:     envutil.Bool("SANDBOX_ENABLED", false),
			Network:     envutil.Bool("SANDBOX_NETWORK", false),
			WritableDir: envutil.Str("SANDBOX_WRITABLE_DIR", ""),
		},
	}, nil
}
