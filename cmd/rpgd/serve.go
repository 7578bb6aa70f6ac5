package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/suPer8Hu/rpg-chat/internal/httpapi"
	"github.com/suPer8Hu/rpg-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/rpg-chat/internal/store/rabbitmq"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default $HTTP_ADDR or :4000)")
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var jobs handlers.JobPublisher
	if a.cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(a.cfg.RabbitURL, a.cfg.RabbitQueue)
		if err != nil {
			return err
		}
		defer pub.Close()
		jobs = pub
	} else {
		a.log.Info("RABBIT_URL not set, async turns disabled")
	}

	h := handlers.NewHandler(a.cfg, a.svc, a.orch, a.selector, a.tr, jobs, a.log)
	h.Providers = append([]string{"stub"}, a.reg.Names()...)
	addr := a.cfg.HTTPAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(h, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http listening", zap.String("addr", addr), zap.Bool("auth", a.cfg.AuthEnabled()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// guidelines are then re-read only on restart
		if err := a.docs.Watch(gctx, a.log); err != nil {
			a.log.Warn("docs watcher stopped", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
