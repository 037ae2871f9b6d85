package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashahealth/mediwagon/internal/mockbackend"
)

func newMockBackendCommand() *cobra.Command {
	var (
		addr string
		opts mockbackend.Options
	)

	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Run local stand-ins for the auth, agent and voice backends",
		Long: `Serve fake auth, agent and voice backends on one address for local
development. Point MEDIWAGON_AUTH_URL, MEDIWAGON_AGENT_URL and MEDIWAGON_VOICE_URL at it.
Failure flags let you exercise the dashboard's error paths.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, addr, func(context.Context) (http.Handler, func() error, error) {
				return mockbackend.New(opts).Handler(), nil, nil
			}, 5*time.Second)
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:8090", "Listen address")
	f.BoolVar(&opts.FailAnalysis, "fail-analysis", false, "Answer symptom analysis with 500")
	f.BoolVar(&opts.FailVoice, "fail-voice", false, "Answer voice processing with 500")
	f.BoolVar(&opts.SoftFailVoice, "soft-fail-voice", false, "Answer voice processing with success=false")
	f.DurationVar(&opts.Latency, "latency", 0, "Delay added to agent and voice responses")
	return cmd
}
