package storage

import (
	"fmt"
	"strings"

	"watchbot/pkg/logx"
)

// Open initializes the configured store. It returns (nil, nil) when storage
// is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
}
