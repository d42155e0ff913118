package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const defaultLogTimeFormat = "15:04:05"

// logOutputs reports which writers logging.output asks for
func logOutputs(outputs []string) (console, file bool) {
	for _, output := range outputs {
		switch output {
		case "stdout", "console":
			console = true
		case "file":
			file = true
		}
	}
	return console, file
}

// logsDir places log files next to the binary, falling back to ./logs
func logsDir() string {
	if execPath, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(execPath), "logs")
	}
	return "logs"
}

// InitLogger builds the arbor logger described by config.Logging. Console
// output is forced on when no file writer could be attached.
func InitLogger(config *Config) arbor.ILogger {
	timeFormat := config.Logging.TimeFormat
	if timeFormat == "" {
		timeFormat = defaultLogTimeFormat
	}

	logger := arbor.NewLogger()
	console, file := logOutputs(config.Logging.Output)

	if file {
		dir := logsDir()
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot create log directory %s: %v\n", dir, err)
			file = false
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   filepath.Join(dir, "replydesk.log"),
				TimeFormat: timeFormat,
				MaxSize:    100 * 1024 * 1024,
				MaxBackups: 3,
				TextOutput: config.Logging.Format != "json",
			})
		}
	}

	if console || !file {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: timeFormat,
			TextOutput: true,
		})
	}

	return logger.WithLevelFromString(config.Logging.Level)
}
