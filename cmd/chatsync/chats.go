package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-sync/internal/store/sqlite"
)

func newChatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "Print the chat list saved by the last listen run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			chats, err := st.LoadChats(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tNAME\tUNREAD\tLAST ACTIVITY")
			for _, c := range chats {
				last := "-"
				if !c.LastMessageDate.IsZero() {
					last = c.LastMessageDate.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", c.ID, c.Kind, c.Name, c.UnreadCount, last)
			}
			return w.Flush()
		},
	}
}
