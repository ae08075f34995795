package app

import (
	"fmt"
	"os"
	"strings"

	"sima-events/internal/config"

	log "github.com/sirupsen/logrus"
)

func setupLogging(cfg config.Log) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Level, err)
	}

	log.SetOutput(os.Stdout)
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", cfg.Format)
	}
	return nil
}
