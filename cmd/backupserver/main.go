package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/dps_backup/cmd/internal/logcfg"
	"github.com/danmuck/dps_backup/src/transport"
	logs "github.com/danmuck/smplog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type config struct {
	Addr        string        `toml:"addr"`
	Root        string        `toml:"root"`
	MetricsAddr string        `toml:"metrics_addr"`
	IdleTimeout time.Duration `toml:"idle_timeout"`
}

func main() {
	addr := flag.String("addr", ":1234", "TCP listen address")
	root := flag.String("root", "local/backupsvr", "storage directory, one subdirectory per client id")
	configPath := flag.String("config", "", "optional TOML config; flags set on the command line win")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	idle := flag.Duration("idle-timeout", 5*time.Minute, "close connections idle this long, 0 for never")
	logConfig := flag.String("log-config", "", "smplog config file")
	flag.Parse()

	logs.Configure(logcfg.Load(*logConfig))

	cfg := config{Addr: *addr, Root: *root, MetricsAddr: *metricsAddr, IdleTimeout: *idle}
	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, &cfg); err != nil {
			logs.Fatalf(err, "failed to load %s", *configPath)
		}
		// explicit flags override the file
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "addr":
				cfg.Addr = *addr
			case "root":
				cfg.Root = *root
			case "metrics-addr":
				cfg.MetricsAddr = *metricsAddr
			case "idle-timeout":
				cfg.IdleTimeout = *idle
			}
		})
	}

	st, err := newStore(cfg.Root)
	if err != nil {
		logs.Fatalf(err, "failed to init storage")
	}

	srv := &server{
		store: st,
		idle:  cfg.IdleTimeout,
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backup",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Requests answered, by operation and reply status",
		}, []string{"op", "status"}),
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logs.Infof("metrics on http://%s/metrics", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logs.Errorf(err, "metrics listener stopped")
			}
		}()
	}

	exit := make(chan any)
	handler := transport.NewTCPHandler(cfg.Addr, srv.handleConn, exit)
	if err := handler.ListenAndAccept(); err != nil {
		logs.Fatalf(err, "failed to listen")
	}
	logs.Infof("backup server listening on %s (storage: %s)", handler.Addr(), cfg.Root)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logs.Infof("shutting down")
	close(exit)
	handler.Close()
}
