package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/danmuck/dps_backup/src/session"
	"github.com/danmuck/dps_backup/src/storage"
	logs "github.com/danmuck/smplog"
	"github.com/pkg/errors"
)

// runScript runs the fixed session against the names in backup.info.
func runScript(ctx context.Context, opts *options) error {
	files, err := session.ReadBackupList(opts.cfg.BackupInfo)
	if err != nil {
		logs.Fatalf(err, "cannot start backup session")
	}
	return runSteps(ctx, opts, files, session.DefaultScript())
}

// runSteps builds a session over files and runs steps against the
// configured server. Configuration problems end the process.
func runSteps(ctx context.Context, opts *options, files []string, steps []session.Step) error {
	cfg := opts.cfg

	addr, err := cfg.ServerAddr()
	if err != nil {
		logs.Fatalf(err, "cannot resolve backup server")
	}
	host, port, _ := net.SplitHostPort(addr)

	client, err := cfg.Client(addr)
	if err != nil {
		logs.Fatalf(err, "invalid exchange settings")
	}

	sess := &session.Session{
		ClientID: session.NewClientID(),
		Version:  cfg.Version,
		Host:     host,
		Port:     port,
		Files:    files,
	}
	if err := sess.Validate(steps); err != nil {
		logs.Fatalf(err, "backup list %s", cfg.BackupInfo)
	}

	input := storage.NewLocal(cfg.InputDir, cfg.RestorePrefix)
	output := storage.NewLocal(cfg.OutputDir, cfg.RestorePrefix)
	metrics := session.NewMetrics()
	runner := &session.Runner{
		Session:  sess,
		Exchange: client,
		Store:    input,
		Render:   &session.Renderer{Out: os.Stdout, Store: output},
		Metrics:  metrics,
	}

	logs.Debugf("session: client %d, version %d, server %s, framing %s", sess.ClientID, sess.Version, addr, client.Framing)
	start := time.Now()
	results := runner.Run(ctx, steps)
	summarize(sess, results, time.Since(start))

	if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
		logs.Errorf(err, "write metrics to %s", cfg.MetricsTextfile)
	}
	if n := session.Failed(results); n == len(steps) {
		return errors.Errorf("all %d operations failed", n)
	}
	return ctx.Err()
}

func summarize(sess *session.Session, results []session.Result, took time.Duration) {
	logs.Titlef("\nSession summary\n")
	logs.DataKV("Client id", strconv.FormatUint(uint64(sess.ClientID), 10))
	logs.DataKV("Server", sess.Addr())
	logs.DataKV("Duration", took.Round(time.Millisecond).String())
	for i, res := range results {
		outcome := "ok"
		switch {
		case res.Err != nil:
			outcome = res.Err.Error()
		case res.Response != nil:
			outcome = res.Response.Status.String()
		}
		logs.Dataf("  %d. %-12s %s (%v)\n", i+1, res.Step, outcome, res.Took.Round(time.Millisecond))
	}
	if n := session.Failed(results); n > 0 {
		logs.StatusWarn(fmt.Sprintf("%d of %d operation(s) failed", n, len(results)))
	}
}
