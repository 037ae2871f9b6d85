package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashahealth/mediwagon/internal/config"
	"github.com/ashahealth/mediwagon/internal/dashboard"
	"github.com/ashahealth/mediwagon/internal/gateway"
	"github.com/ashahealth/mediwagon/internal/httpapi"
	"github.com/ashahealth/mediwagon/internal/identity"
	"github.com/ashahealth/mediwagon/internal/observability"
	"github.com/ashahealth/mediwagon/internal/session"
)

const janitorInterval = 30 * time.Second

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Identity *identity.Store
	Gateway  *gateway.Client
	Runner   *dashboard.Runner
	Metrics  *observability.Metrics

	// Cleanup releases the identity storage. Call it on shutdown.
	Cleanup func() error
}

// Build wires the companion from cfg. The signed-in identity is rehydrated
// before anything can serve a dashboard.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ids, err := OpenIdentity(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := NewGateway(cfg, metrics)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		observability.WithFields("session_id", s.ID, "user_id", s.UserID).Info("dashboard session expired", "idle_since", s.LastActivityAt)
		metrics.ObserveSessionEvent("expired")
		metrics.ActiveSessions.WithLabelValues("web").Set(float64(sessions.ActiveCount()))
	})

	runner := dashboard.NewRunner(dashboard.Config{
		Backend:     client,
		Identity:    ids,
		Sessions:    sessions,
		Metrics:     metrics,
		AudioOrigin: cfg.AudioOrigin,
		CallTimeout: cfg.BackendTimeout,
	})

	api := httpapi.New(cfg, sessions, ids, client, runner, metrics)

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Identity: ids,
		Gateway:  client,
		Runner:   runner,
		Metrics:  metrics,
		Cleanup:  ids.Close,
	}, nil
}

// StartBackground runs the session janitor until ctx ends.
func (b *BuildResult) StartBackground(ctx context.Context) {
	b.Sessions.StartJanitor(ctx, janitorInterval)
}

// OpenIdentity opens the configured storage and loads the persisted sign-in.
func OpenIdentity(ctx context.Context, cfg config.Config) (*identity.Store, error) {
	storage, err := identity.NewStorage(ctx, cfg.DatabaseURL, cfg.IdentityPath)
	if err != nil {
		return nil, fmt.Errorf("identity storage init failed: %w", err)
	}
	ids := identity.NewStore(storage)
	if err := ids.Rehydrate(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("identity rehydrate failed: %w", err), ids.Close())
	}
	return ids, nil
}

func NewGateway(cfg config.Config, metrics *observability.Metrics) *gateway.Client {
	return gateway.New(gateway.Config{
		AuthBaseURL:  cfg.AuthBaseURL,
		AgentBaseURL: cfg.AgentBaseURL,
		VoiceBaseURL: cfg.VoiceBaseURL,
		Metrics:      metrics,
	})
}
