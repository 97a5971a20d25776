package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the logger daemon configuration, merged from defaults, an
// optional TOML file and command line flags (flags win)
type Config struct {
	DeviceNames []string
	DeviceID    string

	ScanTimeout    int // seconds
	RetryNotFound  int // seconds
	RetryReconnect int // seconds

	HistorySize int
	Layout      int // frame layout version, 1 or 2
	Checksum    bool

	CSVPath  string
	Database string

	Debug   bool
	Verbose bool
	Quiet   bool
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		DeviceNames:    []string{"J7-C", "UC96", "UD18"},
		ScanTimeout:    5,
		RetryNotFound:  5,
		RetryReconnect: 2,
		HistorySize:    3600,
		Layout:         1,
	}
}

// Load merges defaults, the config file (./btj7c.toml, /etc/btj7c.toml or the
// file named by BTJ7C_CONFIG) and the given command line arguments
func Load(args []string) (*Config, error) {
	cfg := Defaults()

	fs := flag.NewFlagSet("logger", flag.ContinueOnError)
	names := fs.String("names", strings.Join(cfg.DeviceNames, ","), "comma-separated device name fragments to match")
	fs.StringVar(&cfg.DeviceID, "id", cfg.DeviceID, "address of remote peripheral (MAC on Linux, UUID on OS X)")
	fs.IntVar(&cfg.ScanTimeout, "scan-timeout", cfg.ScanTimeout, "duration of a single device scan (seconds)")
	fs.IntVar(&cfg.HistorySize, "history", cfg.HistorySize, "measurement history capacity")
	fs.IntVar(&cfg.Layout, "layout", cfg.Layout, "frame layout version (1 or 2)")
	fs.BoolVar(&cfg.Checksum, "checksum", cfg.Checksum, "enable frame checksum validation")
	fs.StringVar(&cfg.CSVPath, "csv", cfg.CSVPath, "path to save CSV data")
	fs.StringVar(&cfg.Database, "db", cfg.Database, "path to sqlite measurement archive")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debugging mode")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "show detailed log output")
	fs.BoolVar(&cfg.Quiet, "quiet", cfg.Quiet, "run in background with minimal output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load configuration from file
	v := viper.New()
	v.SetConfigName("btj7c")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc")
	if path := os.Getenv("BTJ7C_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Flags set explicitly on the command line take precedence over the file
	flagSet := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		flagSet[f.Name] = true
	})

	// Apply file values over the defaults, unless overridden by a flag
	fromFile := func(flagName, key string, apply func()) {
		if !flagSet[flagName] && v.IsSet(key) {
			apply()
		}
	}
	fromFile("names", "names", func() { cfg.DeviceNames = v.GetStringSlice("names") })
	fromFile("id", "id", func() { cfg.DeviceID = v.GetString("id") })
	fromFile("scan-timeout", "scan_timeout", func() { cfg.ScanTimeout = v.GetInt("scan_timeout") })
	fromFile("", "retry_not_found", func() { cfg.RetryNotFound = v.GetInt("retry_not_found") })
	fromFile("", "retry_reconnect", func() { cfg.RetryReconnect = v.GetInt("retry_reconnect") })
	fromFile("history", "history", func() { cfg.HistorySize = v.GetInt("history") })
	fromFile("layout", "layout", func() { cfg.Layout = v.GetInt("layout") })
	fromFile("checksum", "checksum", func() { cfg.Checksum = v.GetBool("checksum") })
	fromFile("csv", "csv", func() { cfg.CSVPath = v.GetString("csv") })
	fromFile("db", "database", func() { cfg.Database = v.GetString("database") })
	fromFile("debug", "debug", func() { cfg.Debug = v.GetBool("debug") })
	fromFile("verbose", "verbose", func() { cfg.Verbose = v.GetBool("verbose") })
	fromFile("quiet", "quiet", func() { cfg.Quiet = v.GetBool("quiet") })

	if flagSet["names"] {
		cfg.DeviceNames = splitNames(*names)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Layout != 1 && c.Layout != 2 {
		return fmt.Errorf("invalid frame layout version %d (must be 1 or 2)", c.Layout)
	}
	if c.ScanTimeout < 1 {
		return fmt.Errorf("invalid scan timeout %d", c.ScanTimeout)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("invalid history capacity %d", c.HistorySize)
	}
	if len(c.DeviceNames) == 0 && c.DeviceID == "" {
		return errors.New("no device names or device ID configured")
	}
	return nil
}

func splitNames(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
