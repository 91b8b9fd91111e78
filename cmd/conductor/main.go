package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/homebus/conductor/pkg/api"
	"github.com/homebus/conductor/pkg/config"
	"github.com/homebus/conductor/pkg/log"
	"github.com/homebus/conductor/pkg/metrics"
	"github.com/homebus/conductor/pkg/orchestrator"
	"github.com/homebus/conductor/pkg/transport"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Conductor - service orchestrator for the home automation bus",
	Long: `Conductor manages the lifecycle of services attached to a home
automation message bus. It tracks service instances through their
status reports, sequences starts and stops along the dependency
graph, and restarts failed services automatically.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Conductor version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("api", "http://127.0.0.1:8080", "Conductor API address")
	rootCmd.PersistentFlags().String("user", "", "Identity recorded on submitted tasks")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(taskCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestrator",
	Long: `Run the orchestrator: connect to the MQTT broker, load the service
catalog, and serve the HTTP API until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: true})
		metrics.SetVersion(Version)

		tp, err := transport.NewMQTT(transport.MQTTConfig{
			BrokerURL: cfg.Broker.URL,
			ClientID:  cfg.Broker.ClientID,
			Username:  cfg.Broker.Username,
			Password:  cfg.Broker.Password,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to broker: %w", err)
		}

		orch, err := orchestrator.New(cfg, tp)
		if err != nil {
			return fmt.Errorf("failed to create orchestrator: %w", err)
		}
		orch.Start()

		apiServer := api.NewServer(orch, cfg.ListenAddr)
		errCh := make(chan error, 1)
		go func() {
			if err := apiServer.Start(); err != nil {
				errCh <- fmt.Errorf("API server error: %w", err)
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		if err := apiServer.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "API shutdown: %v\n", err)
		}
		return orch.Shutdown()
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and catalog files without starting",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		// Dry assembly against an in-memory transport and no state dir
		// exercises catalog parsing and cycle detection.
		dry := *cfg
		dry.DataDir = ""
		orch, err := orchestrator.New(&dry, transport.NewInmem())
		if err != nil {
			return err
		}
		order, err := orch.TopologicalOrder()
		if err != nil {
			return err
		}

		fmt.Println("✓ Configuration valid")
		if len(order) > 0 {
			fmt.Printf("✓ %d services, start order: %v\n", len(order), order)
		}
		return orch.Shutdown()
	},
}

func init() {
	runCmd.Flags().String("config", "", "Path to the YAML config file")
	validateCmd.Flags().String("config", "", "Path to the YAML config file")
}
