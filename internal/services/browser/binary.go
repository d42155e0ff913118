package browser

import (
	"os"

	"github.com/ternarybob/replydesk/internal/common"
)

// lookupFunc abstracts the environment for binary discovery
type lookupFunc struct {
	getenv func(string) string
	exists func(string) bool
}

var osLookup = lookupFunc{
	getenv: os.Getenv,
	exists: func(path string) bool {
		info, err := os.Stat(path)
		return err == nil && !info.IsDir()
	},
}

// ResolveBinary picks the browser executable. An explicit path wins, then the
// fixed deployment path when running on a dyno. An empty result leaves
// discovery to chromedp (PATH and well-known install locations).
func ResolveBinary(config common.BrowserConfig) string {
	return resolveBinary(config, osLookup)
}

func resolveBinary(config common.BrowserConfig, lookup lookupFunc) string {
	if config.BinaryPath != "" && lookup.exists(config.BinaryPath) {
		return config.BinaryPath
	}
	if lookup.getenv("DYNO") != "" && config.DeploymentPath != "" && lookup.exists(config.DeploymentPath) {
		return config.DeploymentPath
	}
	return ""
}
