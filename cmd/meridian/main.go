package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/connectorhq/meridian/pkg/broker"
	"github.com/connectorhq/meridian/pkg/config"
	"github.com/connectorhq/meridian/pkg/connector/core"
	"github.com/connectorhq/meridian/pkg/connector/registry"
	"github.com/connectorhq/meridian/pkg/logger"
	"github.com/connectorhq/meridian/pkg/secret"
	"github.com/connectorhq/meridian/pkg/store"
	"github.com/connectorhq/meridian/pkg/vault"

	// Import all backend adapters to register them
	_ "github.com/connectorhq/meridian/pkg/connector/backends/mongodb"
	_ "github.com/connectorhq/meridian/pkg/connector/backends/mysql"
	_ "github.com/connectorhq/meridian/pkg/connector/backends/postgres"
	_ "github.com/connectorhq/meridian/pkg/connector/backends/redis"
	_ "github.com/connectorhq/meridian/pkg/connector/backends/sheets"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	viper.SetEnvPrefix("MERIDIAN")
	viper.AutomaticEnv()
	viper.SetDefault("log_level", "info")

	root := &cobra.Command{
		Use:   "meridian",
		Short: "Meridian - Connection broker for heterogeneous data sources",
		Long: `Meridian stores encrypted connection credentials for databases, caches,
and SaaS APIs, and brokers test and metadata operations against them
through a uniform connector interface.`,
	}

	var configFile string
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Broker configuration file (YAML)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Meridian v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "connectors",
		Short: "List available connector types and their parameter schemas",
		Run: func(cmd *cobra.Command, args []string) {
			for _, desc := range registry.List() {
				fmt.Printf("%s (%s, v%s)\n", desc.Tag, desc.Name, desc.Version)
				for _, spec := range desc.Schema {
					var notes []string
					if spec.Required {
						notes = append(notes, "required")
					}
					if spec.Secret {
						notes = append(notes, "secret")
					}
					if spec.Default != "" {
						notes = append(notes, "default="+spec.Default)
					}
					suffix := ""
					if len(notes) > 0 {
						suffix = " [" + strings.Join(notes, ", ") + "]"
					}
					fmt.Printf("  %-16s %s%s\n", spec.Name, spec.Description, suffix)
				}
			}
		},
	})

	var (
		registerTag    string
		registerLabel  string
		registerParams []string
	)
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(registerParams)
			if err != nil {
				return err
			}

			b, cleanup, err := buildBroker(cmd.Context(), configFile)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := b.RegisterConnection(cmd.Context(), registerTag, registerLabel, params)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	registerCmd.Flags().StringVar(&registerTag, "tag", "", "Connector type tag (see 'connectors')")
	registerCmd.Flags().StringVar(&registerLabel, "label", "", "Unique human-readable label")
	registerCmd.Flags().StringArrayVarP(&registerParams, "param", "p", nil, "Connection parameter as name=value (repeatable)")
	_ = registerCmd.MarkFlagRequired("tag")
	_ = registerCmd.MarkFlagRequired("label")
	root.AddCommand(registerCmd)

	root.AddCommand(&cobra.Command{
		Use:   "test <connection-id>",
		Short: "Test a stored connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, cleanup, err := buildBroker(cmd.Context(), configFile)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := b.TestConnection(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("success (latency %s, %d attempt(s))\n",
				result.Latency.Round(time.Millisecond), result.Attempts)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "metadata <connection-id>",
		Short: "Fetch structure metadata for a stored connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, cleanup, err := buildBroker(cmd.Context(), configFile)
			if err != nil {
				return err
			}
			defer cleanup()

			metadata, err := b.FetchMetadata(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(metadata, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, cleanup, err := buildBroker(cmd.Context(), configFile)
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := b.ListConnections(cmd.Context())
			if err != nil {
				return err
			}
			sort.Slice(records, func(i, j int) bool { return records[i].Label < records[j].Label })
			for _, record := range records {
				lastTest := "never"
				if !record.LastTestAt.IsZero() {
					lastTest = record.LastTestAt.Format(time.RFC3339)
				}
				fmt.Printf("%s  %-12s %-20s %-10s last test: %s\n",
					record.ID, record.Tag, record.Label, record.Status, lastTest)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "delete <connection-id>",
		Short: "Delete a stored connection and its credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, cleanup, err := buildBroker(cmd.Context(), configFile)
			if err != nil {
				return err
			}
			defer cleanup()

			return b.DeleteConnection(cmd.Context(), args[0])
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildBroker assembles the broker from configuration: cipher key, vault,
// record store, and the shared connector registry. The returned cleanup
// releases the store when it holds real connections.
func buildBroker(ctx context.Context, configFile string) (*broker.Broker, func(), error) {
	cfg := config.NewBrokerConfig()
	if configFile != "" {
		if err := config.Load(configFile, cfg); err != nil {
			return nil, nil, err
		}
	}
	if level := viper.GetString("log_level"); level != "" {
		cfg.Observability.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	encoding := "json"
	if cfg.Observability.Development {
		encoding = "console"
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Development: cfg.Observability.Development,
		Encoding:    encoding,
	}); err != nil {
		return nil, nil, err
	}

	key, err := secret.LoadKey(cfg.Security)
	if err != nil {
		return nil, nil, err
	}
	cipher, err := secret.NewCipher(key, cfg.Security.KeyVersion)
	if err != nil {
		return nil, nil, err
	}

	reg := registry.GetRegistry()
	v := vault.New(cipher, reg)

	var (
		st      store.Store
		cleanup = func() {}
	)
	if dsn := viper.GetString("store_dsn"); dsn != "" {
		pgStore, err := store.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		st = pgStore
		cleanup = pgStore.Close
	} else {
		logger.Get().Warn("MERIDIAN_STORE_DSN not set, using in-memory store",
			zap.String("component", "main"))
		st = store.NewMemoryStore()
	}

	return broker.New(st, v, reg, cfg), cleanup, nil
}

// parseParams converts repeated name=value flags into a parameter set.
func parseParams(pairs []string) (core.Parameters, error) {
	params := make(core.Parameters, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("parameter %q is not in name=value form", pair)
		}
		params[name] = value
	}
	return params, nil
}
