package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/podlease/pkg/config"
	"github.com/cuemby/podlease/pkg/lease"
	"github.com/cuemby/podlease/pkg/metrics"
	"github.com/cuemby/podlease/pkg/network"
	"github.com/cuemby/podlease/pkg/payment"
	"github.com/cuemby/podlease/pkg/provider"
	"github.com/cuemby/podlease/pkg/relay"
	"github.com/cuemby/podlease/pkg/storage"
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Provider process operations",
}

var providerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a provider process",
	Long: `Start a podlease Provider: publish capacity offers and heartbeats,
listen for spawn/topup/status requests, and reclaim expired leases.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.LoadProvider(configPath)
		if err != nil {
			return fmt.Errorf("failed to load provider config: %w", err)
		}
		if len(cfg.Specs) == 0 {
			return fmt.Errorf("provider config has no pod specs; at least one tier is required")
		}
		if len(cfg.RelayURLs) == 0 {
			return fmt.Errorf("provider config has no relay_urls")
		}

		seedPath := cfg.IdentitySeedPath
		if seedPath == "" {
			dir, err := config.DefaultDir()
			if err != nil {
				return err
			}
			seedPath = dir + "/provider.seed"
		}
		identity, err := config.LoadOrCreateIdentity(seedPath)
		if err != nil {
			return fmt.Errorf("failed to load provider identity: %w", err)
		}
		fmt.Printf("Provider npub: %s\n", identity.Npub())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		fabric, err := relay.DialWebsocketFabric(ctx, cfg.RelayURLs[0])
		if err != nil {
			return fmt.Errorf("failed to connect to relay %s: %w", cfg.RelayURLs[0], err)
		}
		defer fabric.Close()

		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = "./podlease-data"
		}
		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()

		leases, err := lease.NewManager(store)
		if err != nil {
			return fmt.Errorf("failed to build lease manager: %w", err)
		}
		stats := lease.NewStats()

		portLo, portHi := cfg.PortRangeLo, cfg.PortRangeHi
		if portLo == 0 && portHi == 0 {
			portLo, portHi = 30000, 30999
		}
		alloc := network.NewAllocator(portLo, portHi)

		be, err := newBackend(cfg)
		if err != nil {
			return fmt.Errorf("failed to build backend: %w", err)
		}

		wallet := payment.NewNullWallet()
		decoder := payment.NewDecoder(wallet, store, cfg.WhitelistedMints)

		p := provider.New(identity, fabric, leases, be, alloc, decoder, stats, provider.Config{
			Specs:                  cfg.Specs,
			WhitelistedMints:       cfg.WhitelistedMints,
			Hostname:               cfg.Hostname,
			Location:               stringPtr(cfg.Location),
			APIEndpoint:            stringPtr(cfg.APIEndpoint),
			Instructions:           cfg.Instructions,
			HeartbeatInterval:      time.Duration(cfg.HeartbeatIntervalSecs) * time.Second,
			MinimumDurationSeconds: cfg.MinimumDurationSeconds,
			IDRangeLo:              cfg.IDRangeLo,
			IDRangeHi:              cfg.IDRangeHi,
			PortRangeLo:            portLo,
			PortRangeHi:            portHi,
			TotalCPUMillicores:     cfg.TotalCPUMillicores,
			TotalMemoryMB:          cfg.TotalMemoryMB,
			TotalStorageGB:         cfg.TotalStorageGB,
		})

		collector := metrics.NewCollector(leases, stats, alloc)
		collector.Start()
		defer collector.Stop()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("backend", true, "ready")
		metrics.RegisterComponent("relay", true, "connected")
		metrics.RegisterComponent("wallet", false, "no cashu wallet configured")

		metricsAddr := cfg.MetricsAddr
		if metricsAddr == "" {
			metricsAddr = "127.0.0.1:9090"
		}
		go func() {
			http.Handle("/metrics", metrics.Handler())
			http.Handle("/health", metrics.HealthHandler())
			http.Handle("/ready", metrics.ReadyHandler())
			http.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				fmt.Printf("metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)

		errCh := make(chan error, 1)
		go func() {
			if err := p.Run(ctx); err != nil {
				errCh <- err
			}
		}()

		fmt.Println("Provider is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nprovider error: %v\n", err)
		}

		cancel()
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func init() {
	providerCmd.AddCommand(providerStartCmd)
	providerStartCmd.Flags().String("config", "", "Path to provider config file (default ~/.podlease/provider.json)")
}
