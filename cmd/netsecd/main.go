package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/client-go/util/flowcontrol"
	"k8s.io/klog/v2"

	"github.com/aojea/netsec-controller/pkg/config"
	"github.com/aojea/netsec-controller/pkg/networkpolicy"
	"github.com/aojea/netsec-controller/pkg/neutron"
)

func main() {
	defer klog.Flush()
	if err := newCommand().Execute(); err != nil {
		klog.ErrorS(err, "netsecd failed")
		klog.Flush()
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var configPath string
	var once bool

	cmd := &cobra.Command{
		Use:           "netsecd",
		Short:         "Enforce security groups on the ports of OpenStack networks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath, once)
		},
	}

	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "path to the configuration file")
	cmd.Flags().BoolVar(&once, "once", false, "run a single reconciliation pass and exit")
	return cmd
}

func run(ctx context.Context, configPath string, once bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	klog.InfoS("Finished parsing config file", "path", configPath, "networks", len(cfg.Networks))

	client, err := neutron.Authenticate(ctx, cfg.Keystone)
	if err != nil {
		return err
	}

	limiter := flowcontrol.NewFakeAlwaysRateLimiter()
	if cfg.UpdateQPS > 0 {
		limiter = flowcontrol.NewTokenBucketRateLimiter(cfg.UpdateQPS, cfg.UpdateBurst)
	}
	defer limiter.Stop()

	controller := networkpolicy.NewController(client, cfg.Policies(), cfg.IntervalDuration(),
		networkpolicy.WithWorkers(cfg.Workers),
		networkpolicy.WithRateLimiter(limiter),
	)

	if once {
		result := controller.Sync(ctx)
		klog.InfoS("Reconciliation pass complete", "ports", result.Ports, "updated", result.PortsUpdated,
			"failed", result.PortsFailed, "networksFailed", result.NetworksFailed)
		return nil
	}

	if cfg.MetricsAddress != "" {
		server := newMetricsServer(cfg.MetricsAddress)
		go func() {
			klog.InfoS("Serving metrics", "address", cfg.MetricsAddress)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				klog.ErrorS(err, "Metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	klog.Info("Network security groups daemon is now running")
	controller.Run(ctx)
	return nil
}

func newMetricsServer(address string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
