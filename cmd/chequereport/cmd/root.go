package cmd

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cheque-report-service/cmd/chequereport/config"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

var (
	cfgFile string
	envFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	// initErr holds a config file or .env failure until a command runs
	initErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chequereport",
	Short: "Cheques issued by the bank report (EIBQEPC1)",
	Long: `chequereport builds the monthly EIBQEPC1 report of cheques issued by the bank.

It joins the loan-ledger postings for the reporting month with the disbursement
ledger snapshots of the current and two previous months, classifies each cheque
by payment type and prints the totals with the top payment types by number and
by value of cheques.

Examples:
  chequereport report --csv-dir /data/extracts
  chequereport report --source sql --db-dsn ledgers.db --as-of 2026-10-14 --output-format json
  chequereport schedule --cron "0 6 1 * *" --timezone Asia/Kuala_Lumpur --output-file reports/
  chequereport generate-sample --output-dir /tmp/extracts`,
	Version:           getVersionString(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json")
}

// initConfig reads the .env file, the config file and CHEQUEREPORT_* variables
func initConfig() {
	initErr = nil

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			initErr = errors.ConfigurationError(errors.CodeInvalidConfig, "env-file", envFile, err)
			return
		}
	}

	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			initErr = errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).
				WithSuggestion("Check the config file path and its YAML, JSON or TOML syntax")
			return
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", v.ConfigFileUsed())
		}
	}
}

// setupLogging binds the global flags and installs the configured global logger
func setupLogging(cmd *cobra.Command, args []string) error {
	if initErr != nil {
		return initErr
	}

	v := viper.GetViper()
	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		return err
	}
	if err := v.BindPFlag("log.format", flags.Lookup("log-format")); err != nil {
		return err
	}

	settings := &config.Settings{}
	settings.Log.Level = v.GetString("log.level")
	settings.Log.Format = v.GetString("log.format")
	settings.Log.File = v.GetString("log.file")

	logConfig := settings.LoggerConfig()
	if verbose {
		logConfig.Level = logger.DebugLevel
	}

	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", logConfig.Level, err)
	}
	logger.SetGlobalLogger(log)
	return nil
}

// loadSettings decodes the merged flag, env and file configuration
func loadSettings() (*config.Settings, error) {
	return config.Load(viper.GetViper())
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
