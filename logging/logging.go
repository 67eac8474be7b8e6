package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// The shared logger. Packages grab it once via GetLogger in their init;
// InitLogger adjusts the level on the same instance, so calling it after
// those inits still takes effect.
var (
	logger *logrus.Logger
	mu     sync.Mutex
)

func newLogger(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return l
}

// InitLogger sets up the shared logger at the given level.
func InitLogger(level logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = newLogger(level)
		return
	}
	logger.SetLevel(level)
}

// GetLogger returns the shared logger, creating it at Info level if
// InitLogger was never called.
func GetLogger() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = newLogger(logrus.InfoLevel)
	}
	return logger
}
