package cli

import (
	"context"
	"fmt"

	"github.com/dbsweep/dbsweep/internal/auth"
	"github.com/dbsweep/dbsweep/internal/broker"
	"github.com/dbsweep/dbsweep/internal/config"
	"github.com/dbsweep/dbsweep/internal/logging"
	"github.com/rs/zerolog"
)

// runtime bundles the wired broker stack shared by the commands.
type runtime struct {
	cfg    config.Config
	logger zerolog.Logger
}

// loadRuntime reads the configuration, validates it, and builds the base
// logger. Configuration problems are fatal here, before any AWS call; the
// orchestrator stamps its own run id onto log lines later.
func loadRuntime(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, "")
	logger.Debug().
		Str("auth_mode", cfg.AuthMode()).
		Int("accounts", len(cfg.Accounts)).
		Int("regions", len(cfg.Regions)).
		Msg("configuration loaded")

	return &runtime{cfg: cfg, logger: logger}, nil
}

// buildFactory wires the credential strategy, session broker, and client
// factory for one run.
func (rt *runtime) buildFactory(ctx context.Context) (*broker.ClientFactory, error) {
	strategy, err := auth.ForMode(ctx, rt.cfg, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("building credential strategy: %w", err)
	}

	validator := &broker.STSValidator{
		Timeout: rt.cfg.ValidationTimeout(),
		Logger:  rt.logger,
	}
	b := broker.NewSessionBroker(strategy, validator, rt.cfg.SessionTTL(), rt.logger)
	return broker.NewClientFactory(b, rt.logger), nil
}
