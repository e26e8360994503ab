/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/novaangola/apiserver/config"
	"github.com/novaangola/apiserver/internal/events"
	"github.com/novaangola/apiserver/internal/logger"
	"github.com/novaangola/apiserver/internal/mq"
)

// eventsCmd groups commands that work with the domain event channel.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect risk area events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log every event published on MQ_CHANNEL until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logger.New(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is none; nothing to tail")
		}
		defer queue.Close()

		log.Info("tailing events", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
		err = queue.Subscribe(ctx, cfg.MQ.Channel, func(ctx context.Context, msg mq.Message) error {
			event, err := events.Decode(msg)
			if err != nil {
				log.WarnContext(ctx, "dropping undecodable event", "message_id", msg.ID, "error", err)
				return nil
			}
			log.InfoContext(ctx, "event",
				"message_id", msg.ID,
				"type", event.Type,
				"risk_area_id", event.RiskAreaID,
				"user_id", event.UserID,
				"categoria", event.Categoria,
				"occurred_at", event.OccurredAt,
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
