package application

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/serialkit/pkg/log"
	"github.com/lk2023060901/serialkit/pkg/util/viper"
)

// EnvConfigPath names the config file when Init is called without a path.
const EnvConfigPath = "SERIALKIT_CONFIG_FILE_PATH"

// Application is the runtime container shared by serialkit command line tools.
// It owns configuration and the loggers built from it.
type Application struct {
	path    string
	cfg     *viper.Config
	loggers map[string]*log.MLogger
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Init loads configuration and initializes logging.
// The config file is resolved using the following priority:
//  1. path, usually the value of a --config flag
//  2. Env: SERIALKIT_CONFIG_FILE_PATH
//
// When both are empty no file is loaded and only env vars apply.
func (a *Application) Init(path string) error {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		cfg, err := viper.Load(path)
		if err != nil {
			return err
		}
		a.path, a.cfg = path, cfg
	}
	return a.initLogging()
}

// Config returns the loaded configuration, nil when no file was loaded.
func (a *Application) Config() *viper.Config {
	return a.cfg
}

// ConfigPath returns the path of the loaded config file.
func (a *Application) ConfigPath() string {
	return a.path
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *log.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &log.MLogger{Logger: log.L()}
}

func (a *Application) initLogging() error {
	if err := a.initGlobalLogger(); err != nil {
		return err
	}
	return a.initModuleLoggers()
}

// initGlobalLogger configures the process-wide logger from SERIALKIT_LOG_* env vars,
// then applies the "log" section of the config file on top.
//
//   - SERIALKIT_LOG_ENABLE: "1"/"true" keeps the configured level; otherwise only errors are logged.
//   - SERIALKIT_LOG_LEVEL: log level (default "info").
//   - SERIALKIT_LOG_STDOUT: whether to log to stdout (default false, stderr is used).
//   - SERIALKIT_LOG_FILE_DIR: log directory.
//   - SERIALKIT_LOG_FILE: log file name (empty means no file).
//   - SERIALKIT_LOG_FORMAT: log format ("console" or "json", default "console").
func (a *Application) initGlobalLogger() error {
	cfg := &log.Config{
		Level:             getenvDefault("SERIALKIT_LOG_LEVEL", "info"),
		Format:            getenvDefault("SERIALKIT_LOG_FORMAT", "console"),
		Stdout:            getenvBool("SERIALKIT_LOG_STDOUT", false),
		DisableStacktrace: true,
		File: log.FileLogConfig{
			RootPath: getenvDefault("SERIALKIT_LOG_FILE_DIR", ""),
			Filename: getenvDefault("SERIALKIT_LOG_FILE", ""),
		},
	}
	configured := getenvBool("SERIALKIT_LOG_ENABLE", false)
	if a.cfg != nil && a.cfg.IsSet("log") {
		if err := a.cfg.UnmarshalKey("log", cfg); err != nil {
			return errors.Wrap(err, "decode log section")
		}
		configured = true
	}
	if !configured {
		cfg.Level = "error"
	}

	logger, props, err := log.InitLogger(cfg)
	if err != nil {
		return errors.Wrap(err, "init global logger")
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggers creates named loggers from the "logging" section.
//
// Example:
//
//	logging:
//	  serialfmt:
//	    level: debug
//	    file:
//	      rootpath: ./logs
//	      filename: serialfmt.log
func (a *Application) initModuleLoggers() error {
	if a.cfg == nil || !a.cfg.IsSet("logging") {
		return nil
	}

	raw := make(map[string]log.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return errors.Wrap(err, "decode logging section")
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*log.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := log.InitLogger(&cfgCopy)
		if err != nil {
			return errors.Wrapf(err, "init module logger %q", name)
		}
		a.loggers[name] = &log.MLogger{Logger: logger.With(log.FieldModule(name))}
	}
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
