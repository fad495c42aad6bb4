package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/dynamic"
	"github.com/edgeo-scada/opcua-typesys/internal/httpapi"
	"github.com/edgeo-scada/opcua-typesys/memspace"
	"github.com/edgeo-scada/opcua-typesys/session"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

func newServeCmd(g *globals) *cobra.Command {
	var (
		listen string
		cors   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the data type tree and variable values over HTTP",
		Long: `Load the snapshot address space, discover its data types and serve them,
together with index range reads and writes of its variables, as JSON.

Routes:
  GET /api/v1/types[?root=<node id>]
  GET /api/v1/types/<node id>
  GET /api/v1/values/<node id>[?range=<index range>]
  PUT /api/v1/values/<node id>[?range=<index range>]
  GET /healthz
  GET /metrics

Examples:
  edgeo-opcua serve --snapshot plant.yaml --listen :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				g.cfg.Server.ListenAddr = listen
			}
			return runServe(cmd.Context(), g, cors)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default: server.listen_addr from the configuration)")
	cmd.Flags().BoolVar(&cors, "cors", false, "Allow cross-origin requests")
	return cmd
}

func runServe(parent context.Context, g *globals, cors bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			g.logger.Info().Msg("received interrupt, stopping")
			cancel()
		case <-ctx.Done():
		}
	}()

	reg := prometheus.NewRegistry()
	if g.cfg.Metrics.Enabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	space, err := g.loadSpace(memspace.WithMaxReferencesPerNode(g.cfg.Server.MaxReferencesPerNode))
	if err != nil {
		return err
	}
	client, err := g.newClient(space, opcua.WithMetricsRegisterer(reg))
	if err != nil {
		return err
	}
	defer client.Close()

	manager := dynamic.NewManager(dynamic.WithLogger(g.logger), dynamic.WithMetricsRegisterer(reg))
	initializer := session.NewInitializer(manager,
		session.WithLogger(g.logger),
		session.WithDiscoveryOptions(
			typetree.WithLogger(g.logger),
			typetree.WithMetricsRegisterer(reg),
			typetree.WithMaxConcurrentRequests(g.cfg.Discovery.MaxConcurrentRequests),
		),
	)

	discoverCtx, discoverCancel := context.WithTimeout(ctx, g.cfg.Discovery.Timeout)
	tree, err := initializer.Initialize(discoverCtx, client, session.New())
	discoverCancel()
	if err != nil {
		return err
	}

	backend := httpapi.Backend{Tree: tree, Manager: manager, Values: client}
	metricsPath := ""
	if g.cfg.Metrics.Enabled {
		backend.Gatherer = reg
		metricsPath = g.cfg.Metrics.Path
	}
	srv := httpapi.NewServer(httpapi.Config{
		ListenAddr:   g.cfg.Server.ListenAddr,
		ReadTimeout:  g.cfg.Server.ReadTimeout,
		WriteTimeout: g.cfg.Server.WriteTimeout,
		MetricsPath:  metricsPath,
	}, backend, httpapi.WithLogger(g.logger), httpapi.WithMetricsRegisterer(reg))
	if cors {
		srv.EnableCORS()
	}
	return srv.Start(ctx)
}
