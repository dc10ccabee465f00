// Package daemon assembles the capture and analysis services and enforces
// single-instance execution per state directory.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"formcoach/internal/camera"
	"formcoach/internal/camsync"
	"formcoach/internal/config"
	"formcoach/internal/exercise"
	"formcoach/internal/feedback"
	"formcoach/internal/logging"
	"formcoach/internal/pipeline"
	"formcoach/internal/poseclient"
	"formcoach/internal/session"
)

// Daemon owns the long-running services: two camera pollers, the stream
// synchronizer, the analysis pipeline, and the feedback dispatcher.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store        *session.Store
	synchronizer *camsync.Synchronizer
	dispatcher   *feedback.Dispatcher
	pipe         *pipeline.Pipeline
	pollers      []*camera.Poller

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}

	registry, err := loadRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := session.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	synchronizer := camsync.New(cfg.Sync, cfg.CameraA.ID, cfg.CameraB.ID, logger)
	dispatcher := feedback.NewDispatcher(cfg.Feedback, feedback.NewSpeaker(cfg.Feedback), logger)

	pipe, err := pipeline.New(pipeline.Options{
		Config:       cfg,
		Logger:       logger,
		Registry:     registry,
		Synchronizer: synchronizer,
		Estimator:    poseclient.New(cfg.Pose),
		Dispatcher:   dispatcher,
		Store:        store,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "formcoachd.lock")
	return &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        store,
		synchronizer: synchronizer,
		dispatcher:   dispatcher,
		pipe:         pipe,
		pollers: []*camera.Poller{
			camera.NewPoller(cfg.CameraA, synchronizer, logger),
			camera.NewPoller(cfg.CameraB, synchronizer, logger),
		},
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

func loadRegistry(cfg *config.Config, logger *slog.Logger) (*exercise.Registry, error) {
	var registry *exercise.Registry
	var err error
	if cfg.Paths.RulesPath != "" {
		registry, err = exercise.LoadFile(cfg.Paths.RulesPath)
	} else {
		registry, err = exercise.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("load exercise rules: %w", err)
	}
	for id, brokenErr := range registry.Broken() {
		logger.Warn("exercise rules rejected",
			logging.String(logging.FieldExercise, id),
			logging.Error(brokenErr),
		)
	}
	return registry, nil
}

// HandleTranscript forwards speech recognition output to the pipeline.
func (d *Daemon) HandleTranscript(text string, isFinal bool) {
	d.pipe.HandleTranscript(text, isFinal)
}

// Status describes daemon liveness and capture counters.
type Status struct {
	Running    bool
	PID        int
	CameraA    string
	CameraB    string
	SessionsDB string
	Capture    camsync.Stats
}

// Status reports the daemon's current state.
func (d *Daemon) Status() Status {
	return Status{
		Running:    d.running.Load(),
		PID:        os.Getpid(),
		CameraA:    d.cfg.CameraA.ID,
		CameraB:    d.cfg.CameraB.ID,
		SessionsDB: d.store.Path(),
		Capture:    d.synchronizer.Stats(),
	}
}

// Start acquires the instance lock and launches pollers and pipeline.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another formcoach daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running.Store(true)

	for _, poller := range d.pollers {
		poller := poller
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			_ = poller.Run(runCtx)
		}()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.pipe.Run(runCtx)
	}()

	d.logger.Info("daemon started",
		logging.String("camera_a", d.cfg.CameraA.ID),
		logging.String("camera_b", d.cfg.CameraB.ID),
		logging.String("sessions_db", d.store.Path()),
	)
	return nil
}

// Stop shuts down services and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.running.Store(false)
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	stats := d.synchronizer.Stats()
	d.synchronizer.Close()
	d.dispatcher.Close()
	d.logger.Info("capture stats",
		logging.Int64("paired", int64(stats.Paired)),
		logging.Int64("degraded", int64(stats.Degraded)),
		logging.Int64("drops_a", int64(stats.DropsA)),
		logging.Int64("drops_b", int64(stats.DropsB)),
		logging.Int64("feedback_dropped", int64(d.dispatcher.Dropped())),
	)
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release lock", logging.Error(err))
	}
	d.logger.Info("daemon stopped")
}

// Close releases remaining resources. Call after Stop.
func (d *Daemon) Close() error {
	return d.store.Close()
}
