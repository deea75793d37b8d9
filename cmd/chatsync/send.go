package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-sync/internal/api"
)

func newSendCmd(flags *rootFlags) *cobra.Command {
	var (
		chatID      int64
		text        string
		attachments []int64
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message through the record API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if chatID == 0 || text == "" {
				return errors.New("--chat and --text are required")
			}
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}

			client, err := api.NewHTTPClient(cfg.APIURL, cfg.Token, nil, logger)
			if err != nil {
				return err
			}
			msg, err := client.SendMessage(cmd.Context(), chatID, text, attachments)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent message %d to chat %d\n", msg.ID, chatID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat id")
	cmd.Flags().StringVar(&text, "text", "", "message text")
	cmd.Flags().Int64SliceVar(&attachments, "attach", nil, "attachment ids")
	return cmd
}
