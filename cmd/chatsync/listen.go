package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-sync/internal/app"
	"github.com/vovakirdan/wirechat-sync/internal/event"
)

func newListenCmd(flags *rootFlags) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Subscribe to every chat and log events until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.MetricsAddr = metricsAddr
			}

			a, err := app.New(&cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			a.Engine().AddListener(nil, logEvent(logger))

			logger.Info().Int64("user_id", a.Engine().Self()).Msg("listening")
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func logEvent(logger *zerolog.Logger) event.Listener {
	return func(ev event.Event) {
		if ev.Type() == event.TypePong {
			logger.Trace().Msg("pong")
			return
		}
		l := logger.Info().Str("type", string(ev.Type()))
		switch ev := ev.(type) {
		case event.NewMessage:
			l = l.Int64("chat_id", ev.ChatID).Int64("message_id", ev.Message.ID).Int64("author", ev.Message.Author.ID).Str("body", ev.Message.Body)
		case event.Typing:
			l = l.Int64("chat_id", ev.ChatID).Int64("user_id", ev.UserID)
		case event.Presence:
			l = l.Int64("user_id", ev.UserID).Str("status", string(ev.Status))
		case event.MessagesRead:
			l = l.Int64("chat_id", ev.ChatID).Int64("user_id", ev.UserID)
		case event.MessageEdited:
			l = l.Int64("chat_id", ev.ChatID).Int64("message_id", ev.MessageID)
		case event.MessageDeleted:
			l = l.Int64("chat_id", ev.ChatID).Int64("message_id", ev.MessageID)
		case event.Reaction:
			l = l.Int64("chat_id", ev.ChatID).Int64("message_id", ev.MessageID).Str("emoji", ev.Emoji).Int64("user_id", ev.UserID)
		case event.SubscribedAll:
			l = l.Int("count", ev.Count)
		case event.ChatEvent:
			l = l.Int64("chat_id", ev.Chat())
		}
		l.Msg("event")
	}
}
