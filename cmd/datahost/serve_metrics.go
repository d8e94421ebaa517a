package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/datahost/pkg/metrics"
)

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve Prometheus metrics for a running host directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())

		errCh := make(chan error, 1)
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
		fmt.Printf("metrics endpoint: http://%s/metrics\n", addr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("shutting down")
		case err := <-errCh:
			return err
		}
		return nil
	},
}

func init() {
	serveMetricsCmd.Flags().String("addr", "127.0.0.1:9090", "Metrics listen address")
}
