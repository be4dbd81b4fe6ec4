// logger/zaplogger_logpath.go

package logger

import (
	"os"
	"path/filepath"
	"time"
)

// EnsureLogFilePath checks the provided path and prepares it for use with the logger.
// If the path is a directory (or does not exist yet), a timestamped filename is appended.
// If the path names an existing file it is used as is. The parent directory is created.
func EnsureLogFilePath(logPath string) (string, error) {
	fileName := "ndc_" + time.Now().Format("20060102_150405") + ".log"
	if logPath == "" {
		logPath = filepath.Join(".", fileName)
	} else {
		info, err := os.Stat(logPath)
		if os.IsNotExist(err) || (err == nil && info.IsDir()) {
			logPath = filepath.Join(logPath, fileName)
		} else if err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return "", err
	}

	return logPath, nil
}
