package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/graphwatch/pkg/chatclient"
	"github.com/go-go-golems/graphwatch/pkg/config"
	"github.com/go-go-golems/graphwatch/pkg/events"
	"github.com/go-go-golems/graphwatch/pkg/graph"
)

var (
	configPath string
	logLevel   string
)

func setupLogging() error {
	log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", logLevel)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func buildClient() (*chatclient.Client, config.Settings, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.Settings{}, err
	}
	tokens := graph.StaticTokenProvider(os.Getenv("GRAPHWATCH_TOKEN"))
	client, err := chatclient.New(cfg, tokens)
	if err != nil {
		return nil, config.Settings{}, err
	}
	return client, cfg, nil
}

func newChatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List the chats the signed-in user is part of",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := buildClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			if err := client.PopulateAll(cmd.Context()); err != nil {
				return err
			}
			for _, t := range client.AllThreads() {
				topic := t.Topic
				if topic == "" {
					topic = "(no topic)"
				}
				fmt.Printf("%s\t%s\t%d messages\t%d participants\n",
					t.ID, topic, len(t.Messages), len(t.Participants))
			}
			return nil
		},
	}
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <chat-id>",
		Short: "Subscribe to a chat and stream its events to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID := args[0]
			client, _, err := buildClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := client.PopulateOne(ctx, threadID); err != nil {
				return err
			}
			if err := client.Connect(ctx); err != nil {
				return err
			}

			router := client.GetOrCreateRouter(threadID)
			router.On(events.KindMessageReceived, func(ev events.Event) {
				me := ev.(events.MessageEvent)
				fmt.Printf("[%s] %s: %s\n",
					me.Message.CreatedOn.Format("15:04:05"),
					me.Message.SenderDisplayName,
					me.Message.Content)
			})
			router.On(events.KindTypingIndicator, func(ev events.Event) {
				te := ev.(events.TypingEvent)
				fmt.Printf("... %s is typing\n", te.SenderDisplayName)
			})

			if err := client.Subscribe(ctx, threadID); err != nil {
				return err
			}
			log.Info().Str("thread_id", threadID).Msg("watching chat, ctrl-c to stop")
			<-ctx.Done()
			return nil
		},
	}
}

func newSendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "send <chat-id> <message>",
		Short: "Send a message to a chat",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := buildClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			id, err := client.SendMessage(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:   "graphwatch",
		Short: "Watch remote chats and stream change notifications",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	root.AddCommand(newChatsCommand(), newWatchCommand(), newSendCommand())

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
