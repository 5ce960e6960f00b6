// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mverte/visor-cli/api/schemas"
	"github.com/mverte/visor-cli/internal/backend"
	"github.com/mverte/visor-cli/internal/config"
	"github.com/mverte/visor-cli/internal/dispatch"
	"github.com/mverte/visor-cli/internal/inject"
	"github.com/mverte/visor-cli/internal/journal"
	"github.com/mverte/visor-cli/internal/observability"
	"github.com/mverte/visor-cli/internal/perception"
	"github.com/mverte/visor-cli/internal/session"
	"github.com/mverte/visor-cli/internal/verify"
	"github.com/mverte/visor-cli/internal/window"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <mission-file>",
		Short: "Executes a mission file against the target application",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindRunFlags(viper.GetViper(), cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if cfg.Window.TitlePattern == "" {
				return fmt.Errorf("no target window configured (set window.title_pattern or --window)")
			}

			mission, err := LoadMission(args[0])
			if err != nil {
				return err
			}
			requests, err := mission.Requests()
			if err != nil {
				return err
			}

			fixture := viper.GetString("detections")

			components, err := initializeComponents(ctx, cfg, fixture, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			logger.Info("Starting mission",
				zap.String("mission", mission.Name),
				zap.String("session_id", components.Session.ID()),
				zap.Int("operations", len(requests)))

			if err := components.Session.Start(ctx); err != nil {
				return err
			}

			// Operations run strictly in order; the first terminal failure
			// stops the mission.
			for i, req := range requests {
				res, err := components.Session.PerformOperation(ctx, req)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
						logger.Warn("Mission aborted", zap.Int("completed", i))
						return fmt.Errorf("mission aborted by user signal")
					}
					return fmt.Errorf("operation %d (%q): %w", i+1, req.Operation, err)
				}
				if !res.Success {
					return fmt.Errorf("operation %d (%q) failed terminally: %s after %d attempts",
						i+1, req.Operation, res.ErrorKind, len(res.Attempts))
				}
			}

			stats := components.Dispatcher.Stats()
			logger.Info("Mission completed",
				zap.String("mission", mission.Name),
				zap.Int64("structured_calls", stats.StructuredCalls),
				zap.Int64("visual_calls", stats.VisualCalls),
				zap.Int64("fallbacks", stats.Fallbacks))

			fmt.Printf("\nMission complete. Session ID: %s\n", components.Session.ID())
			return nil
		},
	}

	runCmd.Flags().StringP("window", "w", "", "Title substring of the target application window. (Overrides config/env)")
	runCmd.Flags().String("detections", "", "Detection fixture file; replaces the live detector for dry runs.")

	return runCmd
}

// bindRunFlags binds the run command's flags onto their config keys. Each
// flag is bound to its full key; binding the window flag at the top level
// would shadow the window config section.
func bindRunFlags(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlag("window.title_pattern", cmd.Flags().Lookup("window")); err != nil {
		return err
	}
	return v.BindPFlag("detections", cmd.Flags().Lookup("detections"))
}

// runComponents holds the initialized services for one mission.
type runComponents struct {
	Session    *session.Session
	Dispatcher *dispatch.Dispatcher
	DBPool     *pgxpool.Pool
}

// Shutdown releases held resources.
func (rc *runComponents) Shutdown() {
	if rc.DBPool != nil {
		rc.DBPool.Close()
	}
}

// initializeComponents handles dependency injection for the run command.
func initializeComponents(ctx context.Context, cfg *config.Config, fixture string, logger *zap.Logger) (*runComponents, error) {
	components := &runComponents{}

	// 1. Window tracking
	tracker, err := window.NewTracker(window.NewRobotSystem(), window.DefaultStrategies(), cfg.Window, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize window tracker: %w", err)
	}

	// 2. Perception
	var detector perception.Detector
	if fixture != "" {
		detector, err = perception.LoadStaticDetector(fixture)
		if err != nil {
			return components, err
		}
		logger.Warn("Using detection fixture instead of live detector", zap.String("fixture", fixture))
	} else {
		if cfg.Detector.Endpoint == "" {
			return components, fmt.Errorf("detector endpoint is not configured (VISOR_DETECTOR_ENDPOINT)")
		}
		detector, err = perception.NewHTTPDetector(cfg.Detector.Endpoint, cfg.Detector.Timeout, logger)
		if err != nil {
			return components, err
		}
	}
	pipeline, err := perception.NewPipeline(perception.NewScreenCapturer(), detector, cfg.Detector, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize perception pipeline: %w", err)
	}

	// 3. Structured backend
	ops := dispatch.DefaultRegistry()
	backendReg := backend.NewRegistry(logger)
	if cfg.Backend.Endpoint != "" {
		bridge, err := backend.NewHTTPBridge(cfg.Backend.Endpoint, cfg.Backend.Timeout, logger)
		if err != nil {
			return components, err
		}
		names := append(
			ops.NamesByModality(schemas.ModalityStructured),
			ops.NamesByModality(schemas.ModalityHybrid)...,
		)
		if err := backend.RegisterBridge(backendReg, bridge, names...); err != nil {
			return components, fmt.Errorf("failed to register bridge operations: %w", err)
		}
	} else {
		// Without a bridge every structured call is rejected and hybrid
		// operations resolve visually.
		logger.Warn("No backend bridge configured; structured operations will fall back to visual")
	}

	// 4. Dispatch and verification
	injector := inject.NewRobotInjector(cfg.Injector, logger)
	dispatcher, err := dispatch.New(backendReg, injector, ops, cfg.Dispatcher, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	components.Dispatcher = dispatcher

	verifier, err := verify.New(tracker, pipeline, dispatcher, cfg.Verifier, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize verifier: %w", err)
	}

	// 5. Journal
	var jrnl journal.Journal = journal.Nop{}
	if cfg.Journal.Enabled {
		pool, err := pgxpool.New(ctx, cfg.Journal.URL)
		if err != nil {
			return components, fmt.Errorf("failed to connect to journal database: %w", err)
		}
		components.DBPool = pool
		jrnl, err = journal.NewPg(ctx, pool, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize journal: %w", err)
		}
	}

	// 6. Session
	sess, err := session.New(tracker, verifier, jrnl, cfg.Session, logger)
	if err != nil {
		return components, fmt.Errorf("failed to create session: %w", err)
	}
	components.Session = sess

	return components, nil
}
