package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fortigate-policy-flattener/internal/engine"
	"fortigate-policy-flattener/internal/model"
	"fortigate-policy-flattener/internal/parser"
	"fortigate-policy-flattener/pkg/factorysvc"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var (
	configFile      string
	lookupFile      string
	optionsFile     string
	outDir          string
	provider        string
	dbDSN           string
	fabName         string
	flattenAddrs    bool
	flattenSvcs     bool
	fqdnGeoMatchAll bool
	builtinServices bool
	logLevel        string
	logFile         string
)

// lookupOptions mirrors the YAML options file; flags override file values.
type lookupOptions struct {
	FlattenAddresses bool `yaml:"flatten_addresses"`
	FlattenServices  bool `yaml:"flatten_services"`
	FqdnGeoMatchAll  bool `yaml:"fqdn_geo_match_all"`
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flatpolicy",
		Short: "Flatten FortiGate firewall policies into CSV rows",
		Long: `flatpolicy parses a FortiGate configuration, expands every policy across
	its interfaces, addresses, and services into flat CSV rows, and optionally
	looks up which rows a list of source/destination addresses matches.`,
		RunE: run,
	}

	rootCmd.Flags().StringVar(&configFile, "config", "", "FortiGate configuration file (for 'fortigate' provider)")
	rootCmd.Flags().StringVar(&lookupFile, "lookup", "", "Lookup list file (SRC,DST[,comment] lines)")
	rootCmd.Flags().StringVar(&optionsFile, "options", "", "YAML options file for the lookup knobs")
	rootCmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory for the output CSV files")
	rootCmd.Flags().StringVar(&provider, "provider", "fortigate", "Object provider: 'fortigate' or 'mariadb'")
	rootCmd.Flags().StringVar(&dbDSN, "db", "", "Database connection string (for 'mariadb' provider)")
	rootCmd.Flags().StringVar(&fabName, "fab", "", "Fab name to filter DB queries (adds WHERE fab_name = '...')")
	rootCmd.Flags().BoolVar(&flattenAddrs, "flatten-addresses", false, "Replace named address columns with their leaf values")
	rootCmd.Flags().BoolVar(&flattenSvcs, "flatten-services", false, "Replace named service columns with per-leaf tokens")
	rootCmd.Flags().BoolVar(&fqdnGeoMatchAll, "fqdn-geo-match-all", false, "FQDN/geography values match IP queries and vice versa")
	rootCmd.Flags().BoolVar(&builtinServices, "builtin-services", false, "Seed FortiGate factory-default service objects")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Log file path (default: stderr)")

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := setupLogger(logLevel, logFile)
	slog.SetDefault(logger)

	slog.Info("Starting policy flattener", "provider", provider)
	startTime := time.Now()

	opts, err := loadOptions(cmd)
	if err != nil {
		slog.Error("Failed to load options file", "path", optionsFile, "error", err)
		return err
	}

	var seed map[string]*model.TokenSet
	if builtinServices {
		seed = factorysvc.Services()
	}

	store, err := loadStore(seed)
	if err != nil {
		slog.Error("Failed to load objects", "error", err)
		return err
	}
	slog.Info("Objects loaded", "domains", len(store.Names()))

	if err := writeOutput(outDir, "addresses.csv", engine.AddressListing(store)); err != nil {
		return err
	}
	if err := writeOutput(outDir, "services.csv", engine.ServiceListing(store)); err != nil {
		return err
	}

	normalized := engine.NormalizedRows(store)
	slog.Info("Policies normalized", "rows", len(normalized))
	if err := writeOutput(outDir, "normalized.csv", engine.RowsText(normalized)); err != nil {
		return err
	}

	flat := engine.FlattenStore(store, engine.FlattenOptions{
		Addresses: opts.FlattenAddresses,
		Services:  opts.FlattenServices,
	})
	slog.Info("Policies flattened", "rows", len(flat),
		"flatten_addresses", opts.FlattenAddresses, "flatten_services", opts.FlattenServices)
	if err := writeOutput(outDir, "flattened.csv", engine.RowsText(flat)); err != nil {
		return err
	}

	if lookupFile != "" {
		listText, err := os.ReadFile(lookupFile)
		if err != nil {
			slog.Error("Failed to read lookup list", "path", lookupFile, "error", err)
			return err
		}
		result := engine.Lookup(store, flat, string(listText), engine.LookupOptions{
			FqdnGeoMatchAll: opts.FqdnGeoMatchAll,
		})
		if err := writeOutput(outDir, "lookup_all.csv", result.All); err != nil {
			return err
		}
		if err := writeOutput(outDir, "lookup_effective.csv", result.WithoutIneffectual); err != nil {
			return err
		}
	}

	slog.Info("Done", "duration", time.Since(startTime))
	return nil
}

func loadStore(seed map[string]*model.TokenSet) (*model.Store, error) {
	switch provider {
	case "fortigate":
		if configFile == "" {
			return nil, fmt.Errorf("config file path must be provided for fortigate provider")
		}
		text, err := os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
		p := parser.NewConfigParser()
		p.SeedServices = seed
		return p.Parse(string(text)), nil
	case "mariadb":
		if dbDSN == "" {
			return nil, fmt.Errorf("database connection string must be provided for mariadb provider")
		}
		p, err := parser.NewMariaDBProvider(dbDSN, fabName)
		if err != nil {
			return nil, err
		}
		defer p.Close()
		return p.Load(seed)
	default:
		return nil, fmt.Errorf("unknown object provider: %s", provider)
	}
}

// loadOptions merges the YAML options file with the command-line flags;
// explicitly set flags win.
func loadOptions(cmd *cobra.Command) (lookupOptions, error) {
	opts := lookupOptions{}
	if optionsFile != "" {
		data, err := os.ReadFile(optionsFile)
		if err != nil {
			return opts, err
		}
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return opts, err
		}
	}
	if cmd.Flags().Changed("flatten-addresses") {
		opts.FlattenAddresses = flattenAddrs
	}
	if cmd.Flags().Changed("flatten-services") {
		opts.FlattenServices = flattenSvcs
	}
	if cmd.Flags().Changed("fqdn-geo-match-all") {
		opts.FqdnGeoMatchAll = fqdnGeoMatchAll
	}
	return opts, nil
}

func writeOutput(dir, name, text string) error {
	path := filepath.Join(dir, name)
	if text != "" {
		text += engine.CRLF
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		slog.Error("Failed to write output file", "path", path, "error", err)
		return err
	}
	slog.Debug("Wrote output file", "path", path)
	return nil
}

var logLevels = map[string]slog.Level{
	"DEBUG": slog.LevelDebug,
	"INFO":  slog.LevelInfo,
	"WARN":  slog.LevelWarn,
	"ERROR": slog.LevelError,
}

func setupLogger(level, logFilePath string) *slog.Logger {
	lvl, ok := logLevels[strings.ToUpper(level)]
	if !ok {
		lvl = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if logFilePath != "" {
		if f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666); err == nil {
			w = f
		} else {
			fmt.Fprintf(os.Stderr, "cannot open log file %s: %v; logging to stderr\n", logFilePath, err)
		}
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
