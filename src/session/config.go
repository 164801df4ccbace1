package session

import (
	"bufio"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/dps_backup/src/protocol"
	"github.com/danmuck/dps_backup/src/storage"
	"github.com/danmuck/dps_backup/src/transport"
	"github.com/pkg/errors"
)

const (
	DefaultVersion    uint8 = 127
	DefaultServerInfo       = "server.info"
	DefaultBackupInfo       = "backup.info"
)

// Config controls one client run. It is decoded from an optional TOML file
// and then overridden by command-line flags.
type Config struct {
	ServerInfo      string        `toml:"server_info"`       // host:port file
	BackupInfo      string        `toml:"backup_info"`       // one file name per line
	Addr            string        `toml:"addr"`              // overrides ServerInfo when set
	Version         uint8         `toml:"version"`           // protocol version sent in every request
	RestorePrefix   string        `toml:"restore_prefix"`    // restored files are written as <prefix>.<ext>
	InputDir        string        `toml:"input_dir"`         // where files to save are read from
	OutputDir       string        `toml:"output_dir"`        // where restored files are written
	DialTimeout     time.Duration `toml:"dial_timeout"`
	Timeout         time.Duration `toml:"timeout"`           // whole-exchange deadline, 0 = none
	ProbeWindow     time.Duration `toml:"probe_window"`
	Framing         string        `toml:"framing"`           // "status" or "probe"
	MaxContentBytes uint32        `toml:"max_content_bytes"` // largest accepted content field
	MetricsTextfile string        `toml:"metrics_textfile"`  // node_exporter textfile output, empty = off
}

func DefaultConfig() Config {
	return Config{
		ServerInfo:      DefaultServerInfo,
		BackupInfo:      DefaultBackupInfo,
		Version:         DefaultVersion,
		RestorePrefix:   storage.DefaultRestorePrefix,
		InputDir:        ".",
		OutputDir:       ".",
		DialTimeout:     10 * time.Second,
		ProbeWindow:     protocol.DefaultProbeWindow,
		Framing:         protocol.FramingStatus.String(),
		MaxContentBytes: protocol.DefaultMaxContent,
	}
}

// LoadConfig decodes path over DefaultConfig. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, protocol.ConfigurationError("load "+path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, protocol.ConfigurationError("load "+path, errors.Errorf("unknown keys %v", undecoded))
	}
	return cfg, nil
}

// ServerAddr returns Addr when set, otherwise the host:port in ServerInfo.
func (c Config) ServerAddr() (string, error) {
	if c.Addr != "" {
		host, port, err := ParseServerInfo(c.Addr)
		if err != nil {
			return "", err
		}
		return net.JoinHostPort(host, port), nil
	}
	host, port, err := ReadServerInfo(c.ServerInfo)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, port), nil
}

// Client builds the transport for addr from the exchange settings.
func (c Config) Client(addr string) (*transport.Client, error) {
	framing, err := protocol.ParseFraming(c.Framing)
	if err != nil {
		return nil, protocol.ConfigurationError("framing", err)
	}
	if c.MaxContentBytes == 0 {
		return nil, protocol.ConfigurationError("max_content_bytes", errors.New("must be positive"))
	}

	client := transport.NewClient(addr)
	client.Framing = framing
	client.MaxContent = c.MaxContentBytes
	client.Timeout = c.Timeout
	if c.DialTimeout > 0 {
		client.DialTimeout = c.DialTimeout
	}
	if c.ProbeWindow > 0 {
		client.ProbeWindow = c.ProbeWindow
	}
	return client, nil
}

// ReadServerInfo reads "host:port" from path.
func ReadServerInfo(path string) (host, port string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", protocol.ConfigurationError("read server info", errors.Wrapf(err, "open %s", path))
	}
	return ParseServerInfo(string(data))
}

// ParseServerInfo splits "host:port" on its last ':'.
func ParseServerInfo(s string) (host, port string, err error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", "", protocol.ConfigurationError("parse server info", errors.Errorf("%q is not host:port", s))
	}
	host, port = strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if port == "" {
		return "", "", protocol.ConfigurationError("parse server info", errors.Errorf("%q has no port", s))
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return "", "", protocol.ConfigurationError("parse server info", errors.Wrapf(err, "port %q", port))
	}
	return host, port, nil
}

// ReadBackupList returns the non-blank, trimmed lines of path in order.
func ReadBackupList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, protocol.ConfigurationError("read backup list",
				errors.Errorf("'%s' file not found. Please attach a backup file.", path))
		}
		return nil, protocol.ConfigurationError("read backup list", err)
	}
	defer f.Close()

	var files []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		files = append(files, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, protocol.ConfigurationError("read backup list", errors.Wrapf(err, "scan %s", path))
	}
	return files, nil
}
