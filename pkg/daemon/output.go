package daemon

import (
	"strconv"
	"strings"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
)

// Output markers printed by the node.
const (
	MarkerStarted  = "P2p server initialized OK"
	MarkerHelp     = "Show this help"
	MarkerTopBlock = "New Top Block Detected:"
)

// Signal is the meaning recognised in one output line.
type Signal int

const (
	SignalNone Signal = iota
	SignalStarted
	SignalHelp
	SignalTopBlock
)

func (s Signal) String() string {
	switch s {
	case SignalStarted:
		return "started"
	case SignalHelp:
		return "help"
	case SignalTopBlock:
		return "topblock"
	default:
		return "none"
	}
}

// ParseLine looks for the output markers in line. For SignalTopBlock the
// height following the marker is returned; a malformed height yields a
// parse error together with SignalTopBlock.
func ParseLine(line string) (Signal, int64, error) {
	switch {
	case strings.Contains(line, MarkerStarted):
		return SignalStarted, 0, nil
	case strings.Contains(line, MarkerHelp):
		return SignalHelp, 0, nil
	case strings.Contains(line, MarkerTopBlock):
		parts := strings.SplitN(line, MarkerTopBlock, 2)
		fields := strings.Fields(parts[1])
		if len(fields) == 0 {
			return SignalTopBlock, 0, errors.NewParseError("top block line carries no height", nil).WithContext("line", line)
		}
		height, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return SignalTopBlock, 0, errors.NewParseError("invalid top block height", err).WithContext("line", line)
		}
		return SignalTopBlock, height, nil
	default:
		return SignalNone, 0, nil
	}
}
