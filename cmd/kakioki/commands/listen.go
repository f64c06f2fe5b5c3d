package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// listen <friend>: follow a conversation until interrupted.
func listenCmd() *cobra.Command {
	var metricsAddr string
	var markRead bool
	cmd := &cobra.Command{
		Use:   "listen <friend>",
		Short: "Follow a conversation in realtime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wire.Bus == nil {
				return fmt.Errorf("no realtime bus configured. use --redis")
			}
			ctx := cmd.Context()
			if metricsAddr == "" {
				metricsAddr = wire.Config.MetricsAddr
			}
			if metricsAddr != "" {
				stop := serveMetrics(metricsAddr)
				defer stop()
			}

			s, err := openChat(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			conv := s.Conversation()
			var mu sync.Mutex
			seen := map[string]string{}
			lastErr := ""
			render := func() {
				mu.Lock()
				defer mu.Unlock()
				for _, m := range conv.Messages() {
					line := formatMessage(m)
					if seen[m.ClientMessageID] == line {
						continue
					}
					seen[m.ClientMessageID] = line
					fmt.Println(line)
				}
				if e := conv.Error(); e != lastErr {
					lastErr = e
					if e != "" {
						fmt.Printf("! %s\n", e)
					}
				}
			}
			conv.OnChange(render)
			render()

			if markRead {
				conv.OnChange(func() {
					go func() {
						if _, err := s.MarkIncomingRead(ctx); err != nil && !errors.Is(err, context.Canceled) {
							log.Warn("mark read", zap.Error(err))
						}
					}()
				})
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&markRead, "read", false, "mark incoming messages as read as they arrive")
	return cmd
}

func serveMetrics(addr string) (stop func()) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(wire.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	log.Info("metrics listening", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
