package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/repo"
	"github.com/threadbot/threadbot/internal/conf"
	"github.com/threadbot/threadbot/internal/data"
	"github.com/threadbot/threadbot/internal/logging"
)

var (
	// Global flags
	verbose bool
	envFile string

	cfg    *conf.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "threadbotctl",
	Short:         "Maintenance tool for threadbot stores",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		} else {
			_ = godotenv.Load()
		}
		cfg = conf.LoadFromEnv()

		var err error
		logger, err = logging.New(verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored bot identity of the last session",
	RunE: func(cmd *cobra.Command, args []string) error {
		kv, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer kv.Close()

		if err := kv.Delete(cmd.Context(), repo.SessionIdentityKey); err != nil {
			return fmt.Errorf("failed to delete session identity: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Session identity removed.")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Environment file (default: .env if present)")

	archiveCmd.Flags().StringVarP(&archivePath, "out", "o", "", "Archive file (default: threadbot-<date>.jsonl.zst)")
	grammarsCheckCmd.Flags().StringVar(&grammarsPath, "file", "", "Registry file (default: GRAMMARS_PATH or the embedded registry)")
	grammarsCheckCmd.Flags().BoolVar(&contextless, "contextless", false, "Check in contextless mode")

	grammarsCmd.AddCommand(grammarsCheckCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(grammarsCmd)
}

// openStore opens the configured key-value store
func openStore(ctx context.Context) (repo.KVStore, error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return data.NewKVStore(ctx, cfg.Store)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
