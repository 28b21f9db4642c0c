package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/data"
)

var archivePath string

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Write every conversation record to a compressed snapshot",
	Long: `Writes every conversation in the index as one JSON line, compressed with zstd.
Stop the bot first, or the snapshot may miss writes still being coalesced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kv, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer kv.Close()

		path := archivePath
		if path == "" {
			path = fmt.Sprintf("threadbot-%s.jsonl.zst", time.Now().Format("20060102-150405"))
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create archive: %w", err)
		}

		n, err := data.Archive(ctx, data.NewRecordRepo(kv), f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
			return err
		}

		logger.Info("Archive written", zap.String("path", path), zap.Int("records", n))
		fmt.Fprintf(cmd.OutOrStdout(), "Archived %d conversations to %s\n", n, path)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <archive>",
	Short: "Put the records of a snapshot back into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kv, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer kv.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer f.Close()

		n, err := data.Restore(ctx, data.NewRecordRepo(kv), f)
		if err != nil {
			return fmt.Errorf("restore stopped after %d conversations: %w", n, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %d conversations\n", n)
		return nil
	},
}
