package chanmanager

import (
	"path/filepath"

	"github.com/btcsuite/btclog"

	"github.com/knocte/gwallet/build"
	"github.com/knocte/gwallet/chancloser"
	"github.com/knocte/gwallet/chanrestore"
	"github.com/knocte/gwallet/chanstore"
)

// defaultLogFileName is the name of the rotated log file inside the chosen
// log directory.
const defaultLogFileName = "channels.log"

// EnableFileLogging routes the log output of every channel persistence
// subsystem to a rotating log file in the passed directory. A nil file
// config selects the default rotation settings. The returned writer must be
// closed on shutdown to flush the rotator.
func EnableFileLogging(logDir string, fileCfg *build.FileLoggerConfig,
	level string) (*build.RotatingLogWriter, error) {

	if fileCfg == nil {
		fileCfg = build.DefaultFileLoggerConfig()
	}

	logWriter := build.NewRotatingLogWriter()
	err := logWriter.InitLogRotator(
		fileCfg, filepath.Join(logDir, defaultLogFileName),
	)
	if err != nil {
		return nil, err
	}

	backend := btclog.NewBackend(&build.LogWriter{
		RotatorPipe: logWriter.Pipe(),
	})

	logLevel, _ := btclog.LevelFromString(level)
	newSubLogger := func(subsystem string) btclog.Logger {
		logger := backend.Logger(subsystem)
		logger.SetLevel(logLevel)

		return logger
	}

	chanstore.UseLogger(newSubLogger("CHST"))
	chanrestore.UseLogger(newSubLogger("CHRS"))
	chancloser.UseLogger(newSubLogger("CHCL"))
	UseLogger(newSubLogger("CHMG"))

	return logWriter, nil
}
