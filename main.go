// Command bridge attaches to a running osu! client, reads its memory on a
// fixed cadence and publishes the derived state snapshot to overlay clients
// over a local WebSocket/HTTP endpoint.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"osupulse/bridge/internal/config"
	"osupulse/bridge/internal/logging"
	"osupulse/bridge/internal/memory"
	"osupulse/bridge/internal/replay"
	"osupulse/bridge/internal/server"
	"osupulse/bridge/internal/tracker"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		osuPath        string
		intervalMs     int
		errorIntervalS int
		addr           string
		recordDir      string
		logLevel       string
	)

	cmd := &cobra.Command{
		Use:           "bridge",
		Short:         "Live telemetry bridge for the osu! client",
		Long: "bridge attaches to the running game process, reads its memory to recover\n" +
			"the live game state, derives performance metrics and fans the snapshot out\n" +
			"to overlay clients over a local WebSocket endpoint.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("osu-path") {
				cfg.OsuPath = osuPath
			}
			if flags.Changed("interval") {
				if intervalMs <= 0 {
					return fmt.Errorf("interval must be positive, got %d", intervalMs)
				}
				cfg.Interval = time.Duration(intervalMs) * time.Millisecond
			}
			if flags.Changed("error-interval") {
				if errorIntervalS <= 0 {
					return fmt.Errorf("error interval must be positive, got %d", errorIntervalS)
				}
				cfg.ErrorInterval = time.Duration(errorIntervalS) * time.Second
			}
			if flags.Changed("addr") {
				cfg.Addr = addr
			}
			if flags.Changed("record-dir") {
				cfg.RecordDir = recordDir
			}
			if flags.Changed("log-level") {
				cfg.Logging.Level = logLevel
			}

			logger, err := logging.New(logging.Options{
				Level:      cfg.Logging.Level,
				Path:       cfg.Logging.Path,
				MaxSizeMB:  cfg.Logging.MaxSizeMB,
				MaxBackups: cfg.Logging.MaxBackups,
				Compress:   cfg.Logging.Compress,
			})
			if err != nil {
				return err
			}
			defer logger.Sync()

			return run(cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&osuPath, "osu-path", "o", "", "path to the osu! directory (default: derived from the attached process)")
	flags.IntVarP(&intervalMs, "interval", "i", int(config.DefaultInterval/time.Millisecond), "reading interval in milliseconds")
	flags.IntVarP(&errorIntervalS, "error-interval", "e", int(config.DefaultErrorInterval/time.Second), "reattach back-off in seconds")
	flags.StringVar(&addr, "addr", config.DefaultAddr, "listen address for the broadcast surface")
	flags.StringVar(&recordDir, "record-dir", "", "directory for session recordings (disabled when empty)")
	flags.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log verbosity (debug, info, warn, error)")

	return cmd
}

// run owns the supervisor loop: it attaches, resolves anchors, drives the
// reading loop and reattaches after any fatal error. It returns only when
// the session recorder cannot be created or the osu! path cannot be resolved
// at all.
func run(cfg *config.Config, log *logging.Logger) error {
	tr := tracker.New(log)
	broker := server.New(tr, log)

	go func() {
		if err := broker.Run(cfg.Addr); err != nil {
			log.Fatal("broadcast surface failed", logging.Error(err))
		}
	}()

	var recorder *replay.Recorder
	if cfg.RecordDir != "" {
		rec, manifest, err := replay.NewRecorder(cfg.RecordDir, "session", nil)
		if err != nil {
			return fmt.Errorf("session recorder: %w", err)
		}
		recorder = rec
		defer recorder.Close()
		log.Info("session recording enabled",
			logging.String("dir", recorder.Directory()),
			logging.String("manifest", manifest.CreatedAt))

		// Old bundles fall off so long-running setups don't fill the disk.
		if removed, err := replay.Prune(cfg.RecordDir, cfg.RecordKeep); err != nil {
			log.Warn("record directory prune failed", logging.Error(err))
		} else if removed > 0 {
			log.Info("pruned old session recordings", logging.Int("removed", removed))
		}
	}

	for {
		proc, err := memory.Attach(cfg.ProcessName, cfg.ExcludedWords)
		if err != nil {
			if errors.Is(err, memory.ErrProcessNotFound) {
				log.Info("game process not found, waiting", logging.String("name", cfg.ProcessName))
			} else {
				log.Warn("attach failed", logging.Error(err))
			}
			time.Sleep(cfg.ErrorInterval)
			continue
		}

		osuPath := cfg.OsuPath
		if osuPath == "" {
			osuPath = proc.ExecutableDir
		}
		if osuPath == "" {
			proc.Close()
			return fmt.Errorf("osu! path could not be resolved; pass --osu-path")
		}
		tr.SetOsuPath(osuPath)

		log.Info("attached to game process",
			logging.Int("pid", proc.Pid),
			logging.String("osu_path", osuPath),
			logging.Int("regions", len(proc.Regions)))

		anchors, err := tracker.ResolveAnchors(proc)
		if err != nil {
			log.Warn("anchor resolution failed, incompatible game version?", logging.Error(err))
			proc.Close()
			time.Sleep(cfg.ErrorInterval)
			continue
		}
		log.Info("static anchors resolved")
		broker.SetAttached(true)

		runTicks(cfg, log, tr, broker, recorder, proc, anchors)

		broker.SetAttached(false)
		proc.Close()
		time.Sleep(cfg.ErrorInterval)
	}
}

// runTicks drives the reading loop until a fatal error forces reattachment.
func runTicks(
	cfg *config.Config,
	log *logging.Logger,
	tr *tracker.Tracker,
	broker *server.Broker,
	recorder *replay.Recorder,
	proc *memory.Process,
	anchors *tracker.Anchors,
) {
	prevState := tr.CurrentState()
	for {
		err := tr.Tick(proc, anchors)
		switch {
		case err == nil:
			native, gosu, serr := tr.Serialize()
			if serr != nil {
				log.Error("snapshot serialization failed", logging.Error(serr))
			} else {
				broker.Broadcast(native, gosu)
				if recorder != nil {
					if rerr := recorder.RecordFrame(tr.Ticks(), tr.Playtime(), native); rerr != nil {
						log.Warn("frame recording failed", logging.Error(rerr))
					}
					if state := tr.CurrentState(); state != prevState {
						_ = recorder.RecordTransition(tr.Ticks(), tr.Playtime(), prevState.String(), state.String())
					}
				}
			}
			prevState = tr.CurrentState()
		case isTransient(err):
			// A stale pointer aborts this tick only; the next one retries.
			log.Debug("tick abandoned", logging.Error(err))
		default:
			log.Warn("fatal read error, reattaching", logging.Error(err))
			return
		}
		time.Sleep(cfg.Interval)
	}
}

// isTransient reports whether the error only invalidates the current tick.
func isTransient(err error) bool {
	var bad *memory.BadAddressError
	return errors.As(err, &bad)
}
