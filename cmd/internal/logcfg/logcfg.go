package logcfg

import (
	"os"

	logs "github.com/danmuck/smplog"
)

const envConfigPath = "BACKUP_LOG_CONFIG"

// Load returns file-backed logging configuration when available, otherwise defaults.
// An explicit path wins over the environment and the working-directory candidates.
func Load(explicit string) logs.Config {
	if explicit != "" {
		cfg, err := logs.ConfigFromFile(explicit)
		if err == nil {
			return cfg
		}
		logs.Warnf("log config %s unusable, falling back: %v", explicit, err)
	}

	if path := os.Getenv(envConfigPath); path != "" {
		if cfg, err := logs.ConfigFromFile(path); err == nil {
			return cfg
		}
	}

	candidates := []string{
		"./smplog.config.toml",
		"./local/smplog.config.toml",
	}

	for _, path := range candidates {
		if cfg, err := logs.ConfigFromFile(path); err == nil {
			return cfg
		}
	}

	return logs.DefaultConfig()
}
