package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/alm/internal/config"
	"github.com/me/alm/internal/logging"
)

var (
	flagConfig    string
	flagAPIURL    string
	flagTransport string
	flagStore     string
	flagTimeout   time.Duration
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	app    *App
)

// Commands annotated offline run without a session store or API client.
const annotationOffline = "offline"

// defaultConfigPath returns the config file path, checking ALM_CONFIG first.
func defaultConfigPath() string {
	if p := os.Getenv("ALM_CONFIG"); p != "" {
		return p
	}
	return config.DefaultConfigPath()
}

// NewRootCmd creates the root cobra command for the alm CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "alm",
		Short: "ALM client: sessions, forecasts and price inference",
		Long: `alm talks to the ALM asset-liability management API.

It keeps a local session (token and user profile), runs forecasts and
inference jobs, and reads the admin dashboards. When the API cannot be
reached, login and register fall back to a local demo session unless
--transport=http is set.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			closeApp()
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			level := cfg.Log.Level
			if flagDebug {
				level = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(level), cfg.Log.Format, cmd.ErrOrStderr())
			if cmd.Annotations[annotationOffline] == "true" {
				return nil
			}

			app, err = NewApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeApp()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", defaultConfigPath(), "Config file (or ALM_CONFIG env)")
	root.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "ALM API base URL (or ALM_API_URL env)")
	root.PersistentFlags().StringVar(&flagTransport, "transport", "", "Auth transport: auto, http or demo (or ALM_TRANSPORT env)")
	root.PersistentFlags().StringVar(&flagStore, "store", "", "Session store: SQLite path, memory or redis:// URL (or ALM_STORE env)")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "HTTP request timeout (0 for none)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")

	root.AddCommand(
		newLoginCmd(),
		newRegisterCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newSessionCmd(),
		newRefreshCmd(),
		newModelsCmd(),
		newInferCmd(),
		newResultCmd(),
		newForecastCmd(),
		newPortfolioCmd(),
		newCashCmd(),
		newRiskCmd(),
		newSimulateCmd(),
	)

	return root
}

// Execute runs root and releases the session store afterwards, including
// when the command failed and cobra skipped PersistentPostRun.
func Execute(ctx context.Context, root *cobra.Command) error {
	defer closeApp()
	return root.ExecuteContext(ctx)
}

func closeApp() {
	if app == nil {
		return
	}
	if err := app.Close(); err != nil && logger != nil {
		logger.Warn("close session store", "error", err)
	}
	app = nil
}

// loadConfig reads the config file and environment, then applies the flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (config.ClientConfig, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL = flagAPIURL
	}
	if flags.Changed("transport") {
		cfg.Transport = flagTransport
	}
	if flags.Changed("store") {
		cfg.Store = flagStore
	}
	if flags.Changed("timeout") {
		cfg.Timeout = flagTimeout
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = flagLogFormat
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
