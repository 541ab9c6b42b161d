package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"nickandperla.net/tally/internal/server"
)

func serveCmd(f *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live documents over a websocket",
		Long: `Serve live documents to rendering clients.

Clients connect to ws://<addr>/ws?doc=<id>, send {"type":"update","text":...}
on every edit and receive {"type":"results",...} as evaluations complete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cfg, err := f.openEngine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			srv := server.New(engine.NewSession, server.WithLogger(slog.Default()))
			return srv.ListenAndServe(cmd.Context(), cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:8088)")
	return cmd
}
