package daemon

import (
	"os"
	"strconv"
	"strings"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/config"
)

// BuildArgs turns the daemon configuration into the node's command line.
// The flag order is fixed; unset options contribute nothing and list options
// repeat their flag once per entry.
func BuildArgs(d config.DaemonConfig) []string {
	var b argBuilder

	b.value("--data-dir", d.DataDir)
	b.value("--log-file", d.LogFile)
	if d.LogLevel != nil {
		b.value("--log-level", strconv.Itoa(*d.LogLevel))
	}
	b.value("--enable-cors", d.EnableCors)
	b.flag("--enable-blockexplorer", config.IsSet(d.EnableBlockExplorer))
	b.flag("--enable-blockexplorer-detailed", config.IsSet(d.EnableBlockExplorerDetailed))
	if d.LoadCheckpoints != "" {
		if _, err := os.Stat(d.LoadCheckpoints); err == nil {
			b.value("--load-checkpoints", d.LoadCheckpoints)
		}
	}
	b.value("--rpc-bind-ip", d.RPCBindIP)
	b.number("--rpc-bind-port", int64(d.RPCBindPort))
	b.value("--p2p-bind-ip", d.P2PBindIP)
	b.number("--p2p-bind-port", int64(d.P2PBindPort))
	b.number("--p2p-external-port", int64(d.P2PExternalPort))
	b.flag("--allow-local-ip", config.IsSet(d.AllowLocalIP))
	b.list("--add-peer", d.Peers)
	b.list("--add-priority-node", d.PriorityNodes)
	b.list("--add-exclusive-node", d.ExclusiveNodes)
	b.value("--seed-node", d.SeedNode)
	b.flag("--hide-my-port", d.HideMyPort)
	b.number("--db-threads", int64(d.DBThreads))
	b.number("--db-max-open-files", int64(d.DBMaxOpenFiles))
	b.number("--db-write-buffer-size", int64(d.DBWriteBufferSize))
	b.number("--db-read-buffer-size", int64(d.DBReadBufferSize))
	b.flag("--db-enable-compression", d.DBEnableCompression)
	b.value("--fee-address", d.FeeAddress)
	b.number("--fee-amount", d.FeeAmount)

	return b.args
}

// CommandLine renders path and args the way they are reported on start.
func CommandLine(path string, args []string) string {
	if len(args) == 0 {
		return path
	}
	return path + " " + strings.Join(args, " ")
}

type argBuilder struct {
	args []string
}

func (b *argBuilder) value(name, value string) {
	if value != "" {
		b.args = append(b.args, name, value)
	}
}

func (b *argBuilder) number(name string, value int64) {
	if value != 0 {
		b.args = append(b.args, name, strconv.FormatInt(value, 10))
	}
}

func (b *argBuilder) flag(name string, set bool) {
	if set {
		b.args = append(b.args, name)
	}
}

func (b *argBuilder) list(name string, values []string) {
	for _, v := range values {
		b.value(name, v)
	}
}
