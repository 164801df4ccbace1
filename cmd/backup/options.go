package main

import (
	"github.com/danmuck/dps_backup/cmd/internal/logcfg"
	"github.com/danmuck/dps_backup/src/session"
	logs "github.com/danmuck/smplog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// options collects the persistent flags. Flags only override the TOML
// file when they were set on the command line.
type options struct {
	configPath string
	logConfig  string
	flags      session.Config

	cfg session.Config
}

func (o *options) register(cmd *cobra.Command) {
	def := session.DefaultConfig()
	f := cmd.PersistentFlags()

	f.StringVarP(&o.configPath, "config", "c", "", "TOML config file")
	f.StringVar(&o.logConfig, "log-config", "", "smplog config file")

	f.StringVar(&o.flags.ServerInfo, "server-info", def.ServerInfo, "file holding host:port of the server")
	f.StringVar(&o.flags.BackupInfo, "backup-info", def.BackupInfo, "file listing the names to back up")
	f.StringVarP(&o.flags.Addr, "addr", "a", "", "server host:port, overrides --server-info")
	f.Uint8Var(&o.flags.Version, "version", def.Version, "protocol version sent in every request")
	f.StringVar(&o.flags.RestorePrefix, "restore-prefix", def.RestorePrefix, "restored files are written as <prefix>.<ext>")
	f.StringVarP(&o.flags.InputDir, "input-dir", "i", def.InputDir, "directory files are saved from")
	f.StringVarP(&o.flags.OutputDir, "output-dir", "o", def.OutputDir, "directory restored files are written to")
	f.DurationVar(&o.flags.DialTimeout, "dial-timeout", def.DialTimeout, "connect timeout")
	f.DurationVar(&o.flags.Timeout, "timeout", def.Timeout, "deadline for one whole exchange, 0 for none")
	f.DurationVar(&o.flags.ProbeWindow, "probe-window", def.ProbeWindow, "how long to wait for an optional reply field")
	f.StringVar(&o.flags.Framing, "framing", def.Framing, "reply framing: status or probe")
	f.Uint32Var(&o.flags.MaxContentBytes, "max-content", def.MaxContentBytes, "largest accepted content field in bytes")
	f.StringVar(&o.flags.MetricsTextfile, "metrics-textfile", def.MetricsTextfile, "write run metrics to this file for node_exporter")
}

// load configures logging, decodes the TOML file and applies changed flags.
func (o *options) load(cmd *cobra.Command) error {
	logs.Configure(logcfg.Load(o.logConfig))

	cfg, err := session.LoadConfig(o.configPath)
	if err != nil {
		return err
	}

	set := func(name string, apply func()) {
		if flag := cmd.Flags().Lookup(name); flag != nil && flag.Changed {
			apply()
		}
	}
	set("server-info", func() { cfg.ServerInfo = o.flags.ServerInfo })
	set("backup-info", func() { cfg.BackupInfo = o.flags.BackupInfo })
	set("addr", func() { cfg.Addr = o.flags.Addr })
	set("version", func() { cfg.Version = o.flags.Version })
	set("restore-prefix", func() { cfg.RestorePrefix = o.flags.RestorePrefix })
	set("input-dir", func() { cfg.InputDir = o.flags.InputDir })
	set("output-dir", func() { cfg.OutputDir = o.flags.OutputDir })
	set("dial-timeout", func() { cfg.DialTimeout = o.flags.DialTimeout })
	set("timeout", func() { cfg.Timeout = o.flags.Timeout })
	set("probe-window", func() { cfg.ProbeWindow = o.flags.ProbeWindow })
	set("framing", func() { cfg.Framing = o.flags.Framing })
	set("max-content", func() { cfg.MaxContentBytes = o.flags.MaxContentBytes })
	set("metrics-textfile", func() { cfg.MetricsTextfile = o.flags.MetricsTextfile })

	o.cfg = cfg
	cmd.Flags().Visit(func(f *pflag.Flag) {
		logs.Debugf("flag --%s=%s", f.Name, f.Value)
	})
	return nil
}
