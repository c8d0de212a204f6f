package app

import (
	"fmt"
	"io"
	"log"
	"os"
)

// SetupLogging adds LOG_FILE, when set, next to stderr. The returned closer
// is never nil.
func SetupLogging(path string) (io.Closer, error) {
	if path == "" {
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return io.NopCloser(nil), fmt.Errorf("open log file %s: %w", path, err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}
