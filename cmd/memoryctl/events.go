package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"devmemory-be/pkg/events"
	pktNats "devmemory-be/pkg/nats"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	eventsReplay  bool
	eventsSubject string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow domain events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print domain events from the NATS stream until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Infra.NatsURL == "" {
			return errors.New("NATS_URL is not set")
		}
		sub, err := pktNats.NewSubscriber(cfg.Infra.NatsURL)
		if err != nil {
			return err
		}
		defer sub.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		subject := ""
		if eventsSubject != "" {
			subject = pktNats.Subject(eventsSubject)
		}
		return sub.Subscribe(ctx, pktNats.SubscribeOptions{Subject: subject, Replay: eventsReplay},
			func(ctx context.Context, event events.Event) error {
				color.Cyan("%s %s", event.Timestamp().Format("2006-01-02 15:04:05"), event.EventType())
				for k, v := range event.Payload() {
					fmt.Printf("    %s: %v\n", k, v)
				}
				return nil
			})
	},
}

func init() {
	eventsTailCmd.Flags().BoolVar(&eventsReplay, "replay", false, "deliver retained history first")
	eventsTailCmd.Flags().StringVar(&eventsSubject, "type", "", "only events of this type, e.g. SESSION_ENDED")
	eventsCmd.AddCommand(eventsTailCmd)
}
