package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/toyz/rewire/internal/demo"
	rerrors "github.com/toyz/rewire/internal/errors"
	"github.com/toyz/rewire/internal/watch"
	"github.com/toyz/rewire/pkg/livereload"
	"github.com/toyz/rewire/pkg/rewire"
	"github.com/toyz/rewire/pkg/rewire/adapters"
)

type serveOptions struct {
	*rootOptions
	adapter string
	addr    string
	devAddr string
	watch   bool

	shutdownTimeout time.Duration
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "serve [key=value...]",
		Short: "Serve the notes application",
		Long: `Serve the notes application on the chosen HTTP engine.

With --watch, changes to Go sources, templates or configuration below the
module root mark the application dirty; the next request rebuilds every
route before it is served. With --dev-addr, a second listener exposes
Prometheus metrics on /metrics and a live reload websocket on /livereload.`,
		Example: `  rewire serve
  rewire serve --adapter echo --addr :9090 app.title=Notes
  rewire serve --watch --dev-addr localhost:8081 profiles=dev`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}

	cfg, err := rewire.LoadServerConfig()
	if err != nil {
		cfg = &rewire.ServerConfig{Port: 8080, Adapter: "gin", ShutdownTimeout: 10 * time.Second}
	}
	cmd.Flags().StringVar(&opts.adapter, "adapter", cfg.Adapter, "HTTP engine: gin, echo or fiber")
	cmd.Flags().StringVar(&opts.addr, "addr", cfg.Addr(), "Address the application listens on")
	cmd.Flags().StringVar(&opts.devAddr, "dev-addr", cfg.DevAddr, "Address of the metrics and live reload listener")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Restart when sources or configuration change")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Grace period for in-flight requests on shutdown")
	return cmd
}

func newAdapter(name string) (rewire.WebServerInterface, error) {
	switch strings.ToLower(name) {
	case "gin":
		return adapters.NewDefaultGinAdapter(), nil
	case "echo":
		return adapters.NewDefaultEchoAdapter(), nil
	case "fiber":
		return adapters.NewDefaultFiberAdapter(), nil
	}
	return nil, fmt.Errorf("unknown adapter %q, expected gin, echo or fiber", name)
}

func (o *serveOptions) run(cmd *cobra.Command, args []string) error {
	d := o.diagnostics(cmd)
	d.Header("serving the notes application")

	logger, err := o.logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	adapter, err := newAdapter(o.adapter)
	if err != nil {
		d.Error("%v", err)
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt := o.newRuntime(logger, registry)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var dev *http.Server
	var hub *livereload.Hub
	if o.devAddr != "" {
		hub = livereload.NewHub(logger, func() string { return rt.Epoch().ID })
		rt.App().AddRestartListener(hub)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.Handle("/livereload", hub)
		dev = &http.Server{Addr: o.devAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := dev.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Dev listener stopped", zap.Error(err))
			}
		}()

		args = append(args, demo.LiveReloadKey+"=ws://"+dialAddr(o.devAddr)+"/livereload")
	}

	if err := rt.DefaultSetup().Listen(adapter, o.addr); err != nil {
		return err
	}
	if err := rt.App().Run(ctx, demo.Main, args...); err != nil {
		return runArgs(cmd, err)
	}

	d.PhaseHeader("Listeners")
	d.Indent()
	d.PhaseItem("%s on %s with %d routes", adapter.Name(), o.addr, rt.DefaultSetup().Routes().Len())
	for _, r := range rt.DefaultSetup().Routes().All() {
		d.Verbose("%s %s", r.Verb, r.Path)
	}
	if dev != nil {
		d.PhaseItem("metrics on http://%s/metrics", dialAddr(o.devAddr))
	}
	if o.watch {
		if dirs, err := o.startWatcher(ctx, rt, logger); err != nil {
			d.Warn("File watching disabled: %v", err)
		} else {
			d.PhaseItem("watching %d directories for changes", len(dirs))
		}
	}
	d.Unindent()

	<-ctx.Done()
	d.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), o.shutdownTimeout)
	defer cancel()

	errs := rerrors.NewMultipleErrors()
	if hub != nil {
		hub.Close()
	}
	if dev != nil {
		errs.Add(dev.Shutdown(shutdownCtx))
	}
	rt.Jobs().Reset()
	errs.Add(rt.Config().Close())
	errs.Add(rt.ShutdownAll(shutdownCtx))
	return errs.ErrorOrNil()
}

func (o *serveOptions) startWatcher(ctx context.Context, rt *rewire.Runtime, logger *zap.Logger) ([]string, error) {
	dirs, err := watch.ResolveDirs(".")
	if err != nil {
		return nil, err
	}
	w, err := watch.New(rt.App(), dirs, watch.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			logger.Error("Watcher stopped", zap.Error(err))
		}
	}()
	return w.Dirs(), nil
}

// dialAddr turns a listen address such as ":8081" into one a browser can dial
func dialAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
