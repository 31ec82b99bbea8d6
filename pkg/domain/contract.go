package domain

import (
	"context"
	"time"
)

// Contract exposes the supervisor's current status to the control plane and
// the telemetry endpoint.
type Contract interface {
	Status(ctx context.Context) (*Status, error)
}

// Status is a point-in-time view of the supervised node.
type Status struct {
	State            string        `json:"state"`
	Running          bool          `json:"running"`
	PID              int           `json:"pid,omitempty"`
	Uptime           time.Duration `json:"uptime,omitempty"`
	Synced           bool          `json:"synced"`
	Height           int64         `json:"height"`
	NetworkHeight    int64         `json:"network_height"`
	Percent          float64       `json:"percent"`
	ConsecutiveFails int           `json:"consecutive_failures"`
	TriggerArmed     bool          `json:"trigger_armed"`
}

// Healthy reports whether the node is monitored and passing checks.
func (s *Status) Healthy() bool {
	return s.Running && s.State == "monitoring"
}
