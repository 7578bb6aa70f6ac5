package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suPer8Hu/rpg-chat/internal/store/rabbitmq"
	"github.com/suPer8Hu/rpg-chat/internal/worker"
)

var errNoRabbit = errors.New("RABBIT_URL is required for the worker")

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued turns from RabbitMQ",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		if a.cfg.RabbitURL == "" {
			return errNoRabbit
		}

		pub, err := rabbitmq.NewPublisher(a.cfg.RabbitURL, a.cfg.RabbitQueue)
		if err != nil {
			return err
		}
		defer pub.Close()

		pool := worker.New(a.svc.Repo(), a.orch, pub, worker.Options{Concurrency: a.cfg.WorkerConcurrency}, a.log)

		cons, err := rabbitmq.NewConsumer(a.cfg.RabbitURL, a.cfg.RabbitQueue, a.cfg.WorkerConcurrency)
		if err != nil {
			return err
		}
		defer cons.Close()
		msgs, err := cons.Deliveries()
		if err != nil {
			return err
		}

		a.log.Info("worker consuming", zap.String("queue", a.cfg.RabbitQueue))
		return pool.Run(ctx, msgs)
	},
}
