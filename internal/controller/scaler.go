package controller

import "math"

// ScalingConfig are the bounds for the replica calculation.
type ScalingConfig struct {
	MinReplicas            int32
	MaxReplicas            int32
	TargetPendingPerWorker float64
}

// DesiredReplicas computes ceil(pending / target) clamped to [min, max].
// A target of zero or below always yields the minimum.
func DesiredReplicas(cfg ScalingConfig, pendingFragments int64) int32 {
	if cfg.TargetPendingPerWorker <= 0 {
		return cfg.MinReplicas
	}
	ratio := math.Ceil(float64(pendingFragments) / cfg.TargetPendingPerWorker)
	// Clamp before converting: float-to-int32 overflow is
	// implementation-defined and must not wrap below the maximum.
	if ratio >= float64(cfg.MaxReplicas) {
		return cfg.MaxReplicas
	}
	raw := int32(ratio)
	if raw < cfg.MinReplicas {
		return cfg.MinReplicas
	}
	return raw
}
