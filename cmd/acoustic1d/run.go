package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"acoustic1d/internal/config"
	"acoustic1d/internal/device"
	"acoustic1d/internal/output"
	"acoustic1d/internal/solver"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the solver and write frames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSolver(ctx, s, setupLogger(s.Run.LogLevel, cmd.ErrOrStderr()))
		},
	}
	f := cmd.Flags()
	f.String("out", "_output", "output directory for frames and the run summary")
	f.Bool("plots", false, "render a PNG per frame")
	f.String("serve", "", "stream frames over websocket at this address, e.g. :8080")
	f.Bool("stream-fp16", false, "send streamed frames as binary16 instead of JSON")
	f.String("cpuprofile", "", "write a CPU profile to this file")
	f.Int("workers", 0, "CPU device worker goroutines (0 = GOMAXPROCS)")
	f.Float64("t-final", 1, "final simulation time")
	f.Int("outputs", 16, "number of output intervals")
	f.Float64("courant", 1, "desired Courant number")
	f.Int("max-steps", 1000, "iteration budget")
	return cmd
}

func openDevice(s config.Settings) (device.Context, error) {
	if s.DeviceKind() == device.CPU {
		return device.NewCPU(s.Run.Workers), nil
	}
	return device.Open(s.DeviceKind())
}

// buildSinks returns the configured frame sinks and, with --serve, the
// stream to mount.
func buildSinks(s config.Settings, log logrus.FieldLogger) (output.Multi, *output.Stream, error) {
	var sinks output.Multi
	if s.Output.Claw {
		w, err := output.NewClawWriter(s.Output.Dir)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, w)
	}
	if s.Output.Plots {
		w, err := output.NewPlotWriter(filepath.Join(s.Output.Dir, "plots"))
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, w)
	}
	var stream *output.Stream
	if s.Output.Serve != "" {
		stream = output.NewStream(log.WithField("component", "stream"))
		stream.Half = s.Output.StreamHalf
		sinks = append(sinks, stream)
	}
	return sinks, stream, nil
}

func runSolver(ctx context.Context, s config.Settings, log *logrus.Logger) error {
	stopProfile, err := startCPUProfile(s.Run.CPUProfile)
	if err != nil {
		return err
	}
	defer stopProfile()

	prob, err := s.Problem()
	if err != nil {
		return err
	}
	sinks, stream, err := buildSinks(s, log)
	if err != nil {
		return err
	}
	dev, err := openDevice(s)
	if err != nil {
		return &solver.SetupError{Stage: "device", Err: err}
	}
	sol, err := solver.New(dev, prob, sinks, log)
	if err != nil {
		return err
	}

	var res *solver.Result
	g, gctx := errgroup.WithContext(ctx)
	var srv *http.Server
	if stream != nil {
		mux := http.NewServeMux()
		mux.Handle("/ws", stream)
		srv = &http.Server{Addr: s.Output.Serve, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.WithField("addr", s.Output.Serve).Info("streaming frames on /ws")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("frame stream: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		var runErr error
		res, runErr = sol.Run(gctx)
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}
		return runErr
	})
	runErr := g.Wait()

	if res != nil && s.Output.Summary != "" {
		sum := output.Summary{
			Outcome:    res.Outcome.String(),
			Device:     res.Device,
			Steps:      res.Steps,
			Frames:     res.Frames,
			FinalTime:  res.T,
			NextDt:     res.Dt,
			MaxCourant: res.MaxCourant,
			Violations: res.Violations,
		}
		if runErr != nil {
			sum.Outcome = "failed"
			sum.Error = runErr.Error()
		}
		path := s.Output.Summary
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.Output.Dir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Join(runErr, err)
		}
		if err := output.WriteSummary(path, sum); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if res.Outcome == solver.OutcomeExhausted {
		return fmt.Errorf("%w (%d steps, t=%g)", errExhausted, res.Steps, res.T)
	}
	return nil
}
