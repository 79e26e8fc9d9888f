package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/podlease/pkg/config"
	"github.com/cuemby/podlease/pkg/discovery"
	"github.com/cuemby/podlease/pkg/relay"
	"github.com/cuemby/podlease/pkg/types"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Client operations: discover providers, spawn/topup/status a lease",
}

// clientContext dials the relay and builds a discovery.Client shared by
// every client subcommand.
func clientContext(cmd *cobra.Command) (context.Context, *discovery.Client, func(), error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load client config: %w", err)
	}
	if len(cfg.RelayURLs) == 0 {
		return nil, nil, nil, fmt.Errorf("client config has no relay_urls")
	}

	seedPath := cfg.IdentitySeedPath
	if seedPath == "" {
		dir, err := config.DefaultDir()
		if err != nil {
			return nil, nil, nil, err
		}
		seedPath = dir + "/client.seed"
	}
	identity, err := config.LoadOrCreateIdentity(seedPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load client identity: %w", err)
	}

	ctx := context.Background()
	fabric, err := relay.DialWebsocketFabric(ctx, cfg.RelayURLs[0])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to relay %s: %w", cfg.RelayURLs[0], err)
	}

	dc := discovery.New(identity, fabric)
	return ctx, dc, func() { fabric.Close() }, nil
}

var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers currently advertising capacity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, dc, closeFabric, err := clientContext(cmd)
		if err != nil {
			return err
		}
		defer closeFabric()

		records, err := dc.Query(ctx)
		if err != nil {
			return fmt.Errorf("failed to query providers: %w", err)
		}

		records, err = applyListFlags(cmd, records)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No providers found")
			return nil
		}

		fmt.Printf("%-12s %-20s %-8s %-12s %s\n", "NPUB", "HOSTNAME", "ONLINE", "MIN RATE", "JOBS")
		for _, r := range records {
			fmt.Printf("%-12s %-20s %-8t %-12d %d\n",
				truncateNpub(r.Offer.ProviderNpub, 12),
				truncate(r.Offer.Hostname, 20),
				r.Online,
				r.MinRateMsatsPerSec(),
				r.Offer.TotalJobsCompleted,
			)
		}
		return nil
	},
}

func applyListFlags(cmd *cobra.Command, records []discovery.Record) ([]discovery.Record, error) {
	capability, _ := cmd.Flags().GetString("capability")
	minUptime, _ := cmd.Flags().GetFloat64("min-uptime")
	minMemory, _ := cmd.Flags().GetInt64("min-memory-mb")
	minCPU, _ := cmd.Flags().GetInt64("min-cpu")
	sortKey, _ := cmd.Flags().GetString("sort")

	records = discovery.Apply(records, discovery.Filter{
		Capability:  capability,
		MinUptime:   minUptime,
		MinMemoryMB: minMemory,
		MinCPU:      minCPU,
	})
	if sortKey != "" {
		discovery.Sort(records, discovery.SortKey(sortKey))
	}
	return records, nil
}

var clientSpawnCmd = &cobra.Command{
	Use:   "spawn PROVIDER_PREFIX",
	Short: "Lease a new workload from a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, dc, closeFabric, err := clientContext(cmd)
		if err != nil {
			return err
		}
		defer closeFabric()

		record, err := resolveProvider(ctx, dc, args[0])
		if err != nil {
			return err
		}

		token, _ := cmd.Flags().GetString("token")
		tier, _ := cmd.Flags().GetString("tier")
		image, _ := cmd.Flags().GetString("image")
		user, _ := cmd.Flags().GetString("user")
		password, _ := cmd.Flags().GetString("password")

		req := types.SpawnRequest{
			CashuToken:  token,
			PodImage:    image,
			SSHUsername: user,
			SSHPassword: password,
		}
		if tier != "" {
			req.PodSpecID = &tier
		}

		data, err := dc.Send(ctx, record.Offer.ProviderNpub, req, discovery.DefaultSpawnTimeout)
		if err != nil {
			return fmt.Errorf("spawn request failed: %w", err)
		}

		var access types.AccessDetails
		if err := decodeReply(data, &access); err != nil {
			return err
		}

		fmt.Printf("✓ Leased %s\n", access.PodNpub)
		fmt.Printf("  Host Port: %d\n", access.NodePort)
		fmt.Printf("  Expires:   %s\n", access.ExpiresAt)
		fmt.Printf("  Resources: %d millicores, %d MB\n", access.CPUMillicores, access.MemoryMB)
		if len(access.Instructions) > 0 {
			fmt.Println("  Instructions:")
			for _, line := range access.Instructions {
				fmt.Printf("    %s\n", line)
			}
		}
		return nil
	},
}

var clientTopupCmd = &cobra.Command{
	Use:   "topup POD_NPUB",
	Short: "Extend an existing lease with a new payment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, dc, closeFabric, err := clientContext(cmd)
		if err != nil {
			return err
		}
		defer closeFabric()

		providerPrefix, _ := cmd.Flags().GetString("provider")
		record, err := resolveProvider(ctx, dc, providerPrefix)
		if err != nil {
			return err
		}

		token, _ := cmd.Flags().GetString("token")
		req := types.TopupRequest{PodNpub: args[0], CashuToken: token}

		data, err := dc.Send(ctx, record.Offer.ProviderNpub, req, discovery.DefaultSpawnTimeout)
		if err != nil {
			return fmt.Errorf("topup request failed: %w", err)
		}

		var resp types.TopupResponse
		if err := decodeReply(data, &resp); err != nil {
			return err
		}

		fmt.Printf("✓ Lease extended by %ds, now expires %s\n", resp.AddedSeconds, resp.ExpiresAt)
		return nil
	},
}

var clientStatusCmd = &cobra.Command{
	Use:   "status POD_ID",
	Short: "Check the status of a lease",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, dc, closeFabric, err := clientContext(cmd)
		if err != nil {
			return err
		}
		defer closeFabric()

		providerPrefix, _ := cmd.Flags().GetString("provider")
		record, err := resolveProvider(ctx, dc, providerPrefix)
		if err != nil {
			return err
		}

		req := types.StatusRequest{PodID: args[0]}
		data, err := dc.Send(ctx, record.Offer.ProviderNpub, req, discovery.DefaultStatusTimeout)
		if err != nil {
			return fmt.Errorf("status request failed: %w", err)
		}

		var resp types.StatusResponse
		if err := decodeReply(data, &resp); err != nil {
			return err
		}

		fmt.Printf("Status:    %s\n", resp.Status)
		fmt.Printf("Expires:   %s (%ds remaining)\n", resp.ExpiresAt, resp.TimeRemainingSeconds)
		fmt.Printf("Resources: %d millicores, %d MB\n", resp.CPUMillicores, resp.MemoryMB)
		fmt.Printf("Access:    %s@%s:%d\n", resp.User, resp.Host, resp.Port)
		return nil
	},
}

func resolveProvider(ctx context.Context, dc *discovery.Client, prefix string) (*discovery.Record, error) {
	records, err := dc.Query(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	return discovery.Resolve(records, prefix)
}

// decodeReply unmarshals a provider's DM response into out, translating
// an ErrorResponse envelope into a Go error instead.
func decodeReply(data []byte, out interface{}) error {
	var probe struct {
		ErrorType *types.ErrorKind `json:"error_type"`
		Message   string           `json:"message"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.ErrorType != nil {
		return fmt.Errorf("provider rejected request: %s: %s", *probe.ErrorType, probe.Message)
	}
	return json.Unmarshal(data, out)
}

func truncateNpub(s string, max int) string {
	return truncate(s, max)
}

func init() {
	clientCmd.PersistentFlags().String("config", "", "Path to client config file (default ~/.podlease/client.json)")

	clientCmd.AddCommand(clientListCmd)
	clientListCmd.Flags().String("capability", "", "Filter by capability (e.g. container, vm)")
	clientListCmd.Flags().Float64("min-uptime", 0, "Minimum uptime percent")
	clientListCmd.Flags().Int64("min-memory-mb", 0, "Minimum available memory in MB")
	clientListCmd.Flags().Int64("min-cpu", 0, "Minimum available CPU millicores")
	clientListCmd.Flags().String("sort", "", "Sort order: price, uptime_desc, capacity_desc, jobs_desc")

	clientCmd.AddCommand(clientSpawnCmd)
	clientSpawnCmd.Flags().String("token", "", "Cashu token paying for the lease (required)")
	clientSpawnCmd.Flags().String("tier", "", "Pod spec id to lease (provider default if omitted)")
	clientSpawnCmd.Flags().String("image", "", "Container image to run")
	clientSpawnCmd.Flags().String("user", "", "Shell username for the leased pod")
	clientSpawnCmd.Flags().String("password", "", "Shell password for the leased pod")
	clientSpawnCmd.MarkFlagRequired("token")
	clientSpawnCmd.MarkFlagRequired("image")

	clientCmd.AddCommand(clientTopupCmd)
	clientTopupCmd.Flags().String("provider", "", "Provider npub prefix (required)")
	clientTopupCmd.Flags().String("token", "", "Cashu token paying for the extension (required)")
	clientTopupCmd.MarkFlagRequired("provider")
	clientTopupCmd.MarkFlagRequired("token")

	clientCmd.AddCommand(clientStatusCmd)
	clientStatusCmd.Flags().String("provider", "", "Provider npub prefix (required)")
	clientStatusCmd.MarkFlagRequired("provider")
}
