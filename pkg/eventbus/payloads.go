package eventbus

// StartInfo is the payload of EventStart.
type StartInfo struct {
	CommandLine string `json:"command_line"`
}

// SyncStatus is the payload of EventSyncing.
type SyncStatus struct {
	Height        int64   `json:"height"`
	NetworkHeight int64   `json:"network_height"`
	Percent       float64 `json:"percent"`
}

// DesyncInfo is the payload of EventDesync.
type DesyncInfo struct {
	Height        int64 `json:"height"`
	NetworkHeight int64 `json:"network_height"`
	Deviance      int64 `json:"deviance"`
}

// StoppedInfo is the payload of EventStopped.
type StoppedInfo struct {
	ExitCode int `json:"exit_code"`
}

// TopBlock is the payload of EventTopBlock.
type TopBlock struct {
	Height int64 `json:"height"`
}
