package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vitwit/balancerail"
	"github.com/vitwit/balancerail/catalog"
	"github.com/vitwit/balancerail/chain"
	"github.com/vitwit/balancerail/config"
	"github.com/vitwit/balancerail/logger"
	"github.com/vitwit/balancerail/paywall"
	"github.com/vitwit/balancerail/render"
	"github.com/vitwit/balancerail/server"
	"github.com/vitwit/balancerail/session"
	"github.com/vitwit/balancerail/types"
	"github.com/vitwit/balancerail/wallet"
)

const (
	flagListenAddr        = "listen-addr"
	flagAPIBase           = "api-base"
	flagFacilitatorURL    = "facilitator-url"
	flagFacilitatorSecret = "facilitator-secret-key"
	flagServerWallet      = "server-wallet-address"
	flagMerchant          = "merchant-address"
	flagNetwork           = "network"
	flagAsset             = "asset-address"
	flagAllowedOrigins    = "allowed-origins"
	flagSettleTimeout     = "settle-timeout"
	flagMaxTimeoutSeconds = "max-timeout-seconds"
	flagCatalog           = "catalog"
	flagLogLevel          = "log-level"
	flagPrivateKey        = "private-key"
	flagTier              = "tier"
	flagRPCURL            = "rpc-url"
	envPrefix             = "BALANCERAIL"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "balancerail: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "balancerail",
		Short:         "Tiered content behind x402 micropayments on Avalanche Fuji",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand(), newTiersCommand(), newBuyCommand(), newBalanceCommand(), newVersionCommand())
	return cmd
}

func newViper(cmd *cobra.Command, flags ...string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, name := range flags {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func requireSet(v *viper.Viper, flags ...string) error {
	for _, name := range flags {
		if strings.TrimSpace(v.GetString(name)) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

func newServeCommand() *cobra.Command {
	cfg := config.ServerConfig{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the gated tier API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadServerConfig(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return server.Run(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, "", "HTTP listen address (default :3000)")
	cmd.Flags().String(flagAPIBase, "", "public base URL resources are advertised under (default http://localhost:3000)")
	cmd.Flags().String(flagFacilitatorURL, "", "x402 facilitator base URL (required)")
	cmd.Flags().String(flagFacilitatorSecret, "", "facilitator secret key (required)")
	cmd.Flags().String(flagServerWallet, "", "server wallet address submitting settlements (required)")
	cmd.Flags().String(flagMerchant, "", "merchant payout address (required)")
	cmd.Flags().String(flagNetwork, "", "settlement network (default avalanche-fuji)")
	cmd.Flags().String(flagAsset, "", "EIP-3009 token contract (default USDC.e on Fuji)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().Duration(flagSettleTimeout, 0, "facilitator round-trip timeout (default 30s)")
	cmd.Flags().Int(flagMaxTimeoutSeconds, 0, "how long a signed authorization stays valid (default 300)")
	cmd.Flags().String(flagCatalog, "", "YAML tier catalog (default built-in tiers)")
	cmd.Flags().String(flagLogLevel, "", "log level: debug, info, warn, error")
	cmd.Flags().String(flagRPCURL, "", "JSON-RPC endpoint; when set, proofs are simulated on-chain before settlement")

	return cmd
}

func loadServerConfig(cmd *cobra.Command, cfg *config.ServerConfig) error {
	v, err := newViper(cmd, flagListenAddr, flagAPIBase, flagFacilitatorURL, flagFacilitatorSecret, flagServerWallet,
		flagMerchant, flagNetwork, flagAsset, flagAllowedOrigins, flagSettleTimeout, flagMaxTimeoutSeconds, flagCatalog, flagLogLevel, flagRPCURL)
	if err != nil {
		return err
	}
	if err := requireSet(v, flagFacilitatorURL, flagFacilitatorSecret, flagServerWallet, flagMerchant); err != nil {
		return err
	}

	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.APIBaseURL = strings.TrimSpace(v.GetString(flagAPIBase))
	cfg.FacilitatorURL = strings.TrimSpace(v.GetString(flagFacilitatorURL))
	cfg.FacilitatorSecretKey = v.GetString(flagFacilitatorSecret)
	cfg.ServerWalletAddress = strings.TrimSpace(v.GetString(flagServerWallet))
	cfg.MerchantAddress = strings.TrimSpace(v.GetString(flagMerchant))
	cfg.Network = types.Network(strings.TrimSpace(v.GetString(flagNetwork)))
	cfg.AssetAddress = strings.TrimSpace(v.GetString(flagAsset))
	cfg.RPCURL = strings.TrimSpace(v.GetString(flagRPCURL))
	cfg.AllowedOrigins = config.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.SettleTimeout = v.GetDuration(flagSettleTimeout)
	cfg.MaxTimeoutSeconds = v.GetInt(flagMaxTimeoutSeconds)
	cfg.CatalogFile = strings.TrimSpace(v.GetString(flagCatalog))
	cfg.LogLevel = strings.TrimSpace(v.GetString(flagLogLevel))

	return cfg.Validate()
}

func newTiersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tiers",
		Short: "Print the tier catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd, flagCatalog)
			if err != nil {
				return err
			}
			cat, err := catalog.LoadFile(strings.TrimSpace(v.GetString(flagCatalog)))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, render.New(out, render.DefaultTheme).Tiers(cat.Tiers()))
			return nil
		},
	}
	cmd.Flags().String(flagCatalog, "", "YAML tier catalog (default built-in tiers)")
	return cmd
}

func newBuyCommand() *cobra.Command {
	cfg := config.ClientConfig{}
	var tier, catalogFile string
	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Pay for one tier and print the resulting session",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd, flagAPIBase, flagPrivateKey, flagNetwork, flagAsset, flagLogLevel, flagCatalog, flagRPCURL)
			if err != nil {
				return err
			}
			if err := requireSet(v, flagPrivateKey); err != nil {
				return err
			}
			cfg.APIBaseURL = strings.TrimSpace(v.GetString(flagAPIBase))
			cfg.PrivateKey = strings.TrimSpace(v.GetString(flagPrivateKey))
			cfg.Network = types.Network(strings.TrimSpace(v.GetString(flagNetwork)))
			cfg.AssetAddress = strings.TrimSpace(v.GetString(flagAsset))
			cfg.LogLevel = strings.TrimSpace(v.GetString(flagLogLevel))
			cfg.RPCURL = strings.TrimSpace(v.GetString(flagRPCURL))
			catalogFile = strings.TrimSpace(v.GetString(flagCatalog))
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log, err := logger.NewZapLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			cat, err := catalog.LoadFile(catalogFile)
			if err != nil {
				return err
			}
			w, err := wallet.FromHex(cfg.PrivateKey, cfg.Network)
			if err != nil {
				return err
			}

			sess := session.New(cat, cfg.APIBaseURL, session.WithLogger(log))
			sess.Connect(paywall.NewAccount(w, nil, log))
			if _, err := sess.Purchase(ctx, types.TierID(tier)); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rn := render.New(out, render.DefaultTheme)
			if cfg.RPCURL != "" {
				balance, err := tokenBalance(ctx, cfg.RPCURL, cfg.AssetAddress, w)
				if err != nil {
					log.Warn("balance lookup failed", map[string]any{"err": err})
				} else {
					fmt.Fprintln(out, rn.Balance(balance))
				}
			}
			fmt.Fprintln(out, rn.Session(sess.Snapshot(), cfg.Network, catalog.BalanceRailAgent()))
			return nil
		},
	}

	cmd.Flags().StringVar(&tier, flagTier, string(types.TierBasic), "tier to purchase: basic, premium, enterprise")
	cmd.Flags().String(flagAPIBase, "", "API base URL (default http://localhost:3000)")
	cmd.Flags().String(flagPrivateKey, "", "hex private key of the paying wallet (required)")
	cmd.Flags().String(flagNetwork, "", "wallet network (default avalanche-fuji)")
	cmd.Flags().String(flagAsset, "", "token shown with --rpc-url (default USDC.e on Fuji, required elsewhere)")
	cmd.Flags().String(flagCatalog, "", "YAML tier catalog (default built-in tiers)")
	cmd.Flags().String(flagLogLevel, "", "log level: debug, info, warn, error")
	cmd.Flags().String(flagRPCURL, "", "JSON-RPC endpoint used to show the wallet's token balance")
	return cmd
}

func newBalanceCommand() *cobra.Command {
	cfg := config.ClientConfig{}
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print the wallet's token balance",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd, flagPrivateKey, flagNetwork, flagAsset, flagRPCURL)
			if err != nil {
				return err
			}
			if err := requireSet(v, flagPrivateKey, flagRPCURL); err != nil {
				return err
			}
			cfg.PrivateKey = strings.TrimSpace(v.GetString(flagPrivateKey))
			cfg.Network = types.Network(strings.TrimSpace(v.GetString(flagNetwork)))
			cfg.AssetAddress = strings.TrimSpace(v.GetString(flagAsset))
			cfg.RPCURL = strings.TrimSpace(v.GetString(flagRPCURL))
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wallet.FromHex(cfg.PrivateKey, cfg.Network)
			if err != nil {
				return err
			}
			balance, err := tokenBalance(cmd.Context(), cfg.RPCURL, cfg.AssetAddress, w)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n%s\n", w.Address().Hex(), render.New(out, render.DefaultTheme).Balance(balance))
			return nil
		},
	}
	cmd.Flags().String(flagPrivateKey, "", "hex private key of the wallet (required)")
	cmd.Flags().String(flagNetwork, "", "wallet network (default avalanche-fuji)")
	cmd.Flags().String(flagAsset, "", "EIP-3009 token contract (default USDC.e on Fuji, required elsewhere)")
	cmd.Flags().String(flagRPCURL, "", "JSON-RPC endpoint (required)")
	return cmd
}

func tokenBalance(ctx context.Context, rpcURL, asset string, w *wallet.Wallet) (*big.Int, error) {
	token, client, err := chain.Dial(ctx, rpcURL, asset)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return token.BalanceOf(ctx, w.Address())
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := balancerail.GetVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "balancerail %v (x402 v%v)\n", info["library_version"], info["protocol_version"])
		},
	}
}
