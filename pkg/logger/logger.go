package logger

import (
	"fmt"
	"log"
	"os"
)

// New returns a stdlib-backed logger with component prefix.
func New(component string) *log.Logger {
	prefix := fmt.Sprintf("[%s] ", component)
	return log.New(os.Stdout, prefix, log.LstdFlags|log.Lshortfile)
}

// MigrateLogger adapts the component logger to golang-migrate's
// Logger interface.
type MigrateLogger struct {
	*log.Logger
}

func NewMigrateLogger() MigrateLogger {
	return MigrateLogger{Logger: New("migrate")}
}

func (MigrateLogger) Verbose() bool { return false }
