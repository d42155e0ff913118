package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective setup
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("ReplyDesk", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("address", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)).
		Str("session_backend", config.Storage.Sessions.Backend).
		Bool("headless", config.Browser.Headless).
		Bool("persistent_browsers", config.Browser.Persistent).
		Int("task_workers", config.Tasks.Concurrency).
		Msg("ReplyDesk starting")
}
