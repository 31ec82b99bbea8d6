package monitoring

import (
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/rpc"
)

type HealthState int

const (
	StateStarting HealthState = iota
	StateAwaitingSync
	StateSynced
	StateMonitoring
	StateDesynced
	StateDown
	StateStopped
)

func (s HealthState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateAwaitingSync:
		return "awaiting_sync"
	case StateSynced:
		return "synced"
	case StateMonitoring:
		return "monitoring"
	case StateDesynced:
		return "desynced"
	case StateDown:
		return "down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SyncSnapshot is the latest view of the node's chain position.
type SyncSnapshot struct {
	LocalHeight   int64     `json:"height"`
	NetworkHeight int64     `json:"network_height"`
	Percent       float64   `json:"percent"`
	Status        string    `json:"status"`
	Updated       time.Time `json:"updated"`
}

// CheckState counts health check outcomes since the last start.
type CheckState struct {
	LastCheck            time.Time
	Message              string
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	FirstCheckPassed     bool
	TriggerArmed         bool
}

// ReadyInfo is the payload of the ready event.
type ReadyInfo struct {
	rpc.Info
	GlobalHashRate int64 `json:"globalHashRate"`
}
