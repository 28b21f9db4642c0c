package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
	"github.com/threadbot/threadbot/internal/biz/usecase"
	"github.com/threadbot/threadbot/internal/data"
	"github.com/threadbot/threadbot/internal/infra/feishu"
)

var mentionIDs []string

var sendCmd = &cobra.Command{
	Use:   "send <chat_id> <message>",
	Short: "Send a message to a chat as the bot",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, err := openPlatform()
		if err != nil {
			return err
		}

		text := strings.Join(args[1:], " ")
		mentions := make([]domain.Member, 0, len(mentionIDs))
		for _, id := range mentionIDs {
			mentions = append(mentions, domain.Member{UserID: id, Name: id})
		}

		msgID, err := platform.SendTextWithMentions(cmd.Context(), args[0], text, mentions)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Message sent: %s\n", msgID)
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <chat_id>",
	Short: "Show a chat's metadata and member names as the bot resolves them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, err := openPlatform()
		if err != nil {
			return err
		}

		refresher := usecase.NewRefresher(nil, nil, platform, cfg.ToRefresherConfig(), logger)
		meta, err := refresher.Metadata(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		rec := domain.NewConversationRecord(args[0])
		rec.MergeMetadata(meta)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (group=%v, members=%d)\n", rec.Name, rec.IsGroup, len(rec.Members))
		for _, key := range rec.NameKeys() {
			id := rec.Members[key]
			if id == "" {
				continue
			}
			admin := ""
			if rec.IsAdmin(id) {
				admin = " admin"
			}
			fmt.Fprintf(out, "  %-16s %s (%s)%s\n", key, rec.DisplayName(id), id, admin)
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().StringSliceVar(&mentionIDs, "mention", nil, "open_id to mention (repeatable)")
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(inspectCmd)
}

// openPlatform connects to Feishu without starting the event stream
func openPlatform() (repo.PlatformRepo, error) {
	if cfg.Feishu.AppID == "" || cfg.Feishu.AppSecret == "" {
		return nil, fmt.Errorf("FEISHU_APP_ID and FEISHU_APP_SECRET must be set")
	}
	client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
	return data.NewFeishuRepo(client), nil
}
