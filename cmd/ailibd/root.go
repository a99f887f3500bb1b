package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ailib/internal/config"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
	addr       string
	modelsDir  string
	logLevel   string
	logFormat  string

	getenv func(string) string
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&rootOptions{getenv: os.Getenv})
}

// newRootCmdWith builds the command tree around o so tests can inject the
// environment.
func newRootCmdWith(o *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "ailibd",
		Short:         "Model execution pipeline: HTTP server and one-shot runner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "Config file (.yaml, .yml, .json or .toml)")
	pf.StringVar(&o.envFile, "env-file", ".env", "Dotenv file loaded before reading AILIB_* variables; missing is fine")
	pf.StringVar(&o.addr, "addr", "", "HTTP listen address, e.g. :8080 (overrides config)")
	pf.StringVar(&o.modelsDir, "models-dir", "", "Directory scanned for *.gguf models (overrides config)")
	pf.StringVar(&o.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	pf.StringVar(&o.logFormat, "log-format", "", "Log format: json|console (overrides config)")

	root.AddCommand(newServeCmd(o), newRunCmd(o), newModelsCmd(o))
	return root
}

// load resolves the effective configuration: file (or defaults), then the
// environment, then flags.
func (o *rootOptions) load() (config.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, err
		}
	}
	cfg := config.Defaults()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	getenv := o.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg, err := config.ApplyEnv(cfg, getenv)
	if err != nil {
		return cfg, err
	}
	if o.addr != "" {
		cfg.Addr = o.addr
	}
	if o.modelsDir != "" {
		cfg.ModelsDir = o.modelsDir
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = echoModelID
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}
