// Package pipeline wires capture, fusion, segmentation, analysis, and
// feedback into the single-consumer analysis loop.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"formcoach/internal/analysis"
	"formcoach/internal/angles"
	"formcoach/internal/camsync"
	"formcoach/internal/config"
	"formcoach/internal/exercise"
	"formcoach/internal/faults"
	"formcoach/internal/feedback"
	"formcoach/internal/fusion"
	"formcoach/internal/logging"
	"formcoach/internal/pose"
	"formcoach/internal/poseclient"
	"formcoach/internal/segmenter"
	"formcoach/internal/session"
)

// Options carries the pipeline's collaborators. Store may be nil when
// persistence is disabled.
type Options struct {
	Config       *config.Config
	Logger       *slog.Logger
	Registry     *exercise.Registry
	Synchronizer *camsync.Synchronizer
	Estimator    poseclient.Estimator
	Dispatcher   *feedback.Dispatcher
	Store        *session.Store
}

// Pipeline is the analysis orchestrator. Run owns all mutable state; other
// goroutines interact through Push on the synchronizer, HandleTranscript,
// and the dispatcher.
type Pipeline struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *exercise.Registry
	sync       *camsync.Synchronizer
	estimator  poseclient.Estimator
	dispatcher *feedback.Dispatcher
	store      *session.Store

	fusionEngine *fusion.Engine
	anglesEngine *angles.Engine
	machine      *segmenter.Machine
	detector     *analysis.Detector
	templates    feedback.Templates

	commands chan Command
	active   bool
	persists sync.WaitGroup
}

// New assembles a pipeline from configuration and collaborators.
func New(opts Options) (*Pipeline, error) {
	geomA, err := geometryFor(opts.Config.CameraA)
	if err != nil {
		return nil, err
	}
	geomB, err := geometryFor(opts.Config.CameraB)
	if err != nil {
		return nil, err
	}

	logger := logging.NewComponentLogger(opts.Logger, "pipeline")
	return &Pipeline{
		cfg:          opts.Config,
		logger:       logger,
		registry:     opts.Registry,
		sync:         opts.Synchronizer,
		estimator:    opts.Estimator,
		dispatcher:   opts.Dispatcher,
		store:        opts.Store,
		fusionEngine: fusion.NewEngine(opts.Config.Fusion, geomA, geomB, opts.Logger),
		anglesEngine: angles.NewEngine(angles.StandardTriplets(), opts.Config.Angles.VelocityWindow),
		machine:      segmenter.NewMachine(opts.Config.Session.PauseTimeoutDuration(), opts.Logger),
		detector:     analysis.NewDetector(opts.Logger),
		templates:    feedback.NewTemplates(opts.Config.Feedback.Language),
		commands:     make(chan Command, 4),
	}, nil
}

func geometryFor(cam config.Camera) (*pose.CameraGeometry, error) {
	if len(cam.Affine) == 0 {
		return pose.IdentityGeometry(), nil
	}
	return pose.NewCameraGeometry(cam.Affine)
}

// HandleTranscript receives speech recognition output. Partial transcripts
// are ignored; final ones are parsed into commands. Unrecognized input gets
// a spoken clarification and changes no state.
func (p *Pipeline) HandleTranscript(text string, isFinal bool) {
	if !isFinal {
		return
	}
	cmd, err := ParseCommand(text)
	if err != nil {
		p.logger.Debug("unrecognized voice input", logging.String("transcript", text))
		p.dispatcher.Enqueue(feedback.Message{
			Text:  p.templates.Clarification(),
			Label: "clarification",
		})
		return
	}
	select {
	case p.commands <- cmd:
	default:
		p.logger.Warn("command queue full, command dropped", logging.String("kind", string(cmd.Kind)))
	}
}

// Run drives the analysis loop until the context is cancelled. Cancellation
// aborts any active session; closed reps are finalized and persisted.
func (p *Pipeline) Run(ctx context.Context) error {
	pairs := make(chan camsync.Pair)
	go func() {
		defer close(pairs)
		for {
			pair, err := p.sync.Next(ctx)
			if err != nil {
				return
			}
			select {
			case pairs <- pair:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			now := time.Now()
			if ev, ok := p.machine.Stop(now); ok {
				p.handleMachineEvent(ev)
			}
			p.persists.Wait()
			return ctx.Err()
		case cmd := <-p.commands:
			p.handleCommand(cmd)
		case ev := <-p.sync.Events():
			p.handleCameraEvent(ev)
		case pair, ok := <-pairs:
			if !ok {
				pairs = nil
				continue
			}
			p.processPair(ctx, pair)
		case now := <-ticker.C:
			for _, ev := range p.machine.Tick(now) {
				p.handleMachineEvent(ev)
			}
		}
	}
}

func (p *Pipeline) processPair(ctx context.Context, pair camsync.Pair) {
	rawA, err := p.estimator.Estimate(ctx, pair.Primary.Image)
	if err != nil {
		p.logger.Warn("pose estimation failed",
			logging.String(logging.FieldCamera, pair.Primary.CameraID),
			logging.Error(err),
		)
		return
	}
	var rawB pose.RawKeypointSet
	if pair.Partner != nil {
		rawB, err = p.estimator.Estimate(ctx, pair.Partner.Image)
		if err != nil {
			p.logger.Warn("pose estimation failed",
				logging.String(logging.FieldCamera, pair.Partner.CameraID),
				logging.Error(err),
			)
		}
	}

	fused, err := p.fusionEngine.Process(pair.Timestamp(), rawA, rawB, pair.Degraded)
	if err != nil {
		if faults.Recoverable(err) {
			if ev, ok := p.machine.Pause(pair.Timestamp(), segmenter.PauseTrackingLost); ok {
				p.handleMachineEvent(ev)
			}
		} else {
			p.logger.Error("fusion failed", logging.Error(err))
		}
		return
	}
	// A fusion success only clears a tracking-loss pause; a camera-lost
	// pause holds until the camera itself reports back.
	if ev, ok := p.machine.Resume(pair.Timestamp(), segmenter.PauseTrackingLost); ok {
		p.handleMachineEvent(ev)
	}

	samples := p.anglesEngine.Process(fused)
	for _, ev := range p.machine.Observe(samples) {
		p.handleMachineEvent(ev)
	}
}

func (p *Pipeline) handleCommand(cmd Command) {
	now := time.Now()
	switch cmd.Kind {
	case CommandStart:
		def, err := p.registry.Get(cmd.ExerciseID)
		if err != nil {
			p.logger.Warn("start rejected", logging.String(logging.FieldExercise, cmd.ExerciseID), logging.Error(err))
			p.dispatcher.Enqueue(feedback.Message{Text: p.templates.Clarification(), Label: "clarification"})
			return
		}
		if _, err := p.machine.Start(def, cmd.TargetReps, now); err != nil {
			p.logger.Warn("start rejected", logging.Error(err))
			return
		}
		p.active = true
		p.fusionEngine.Reset()
		p.anglesEngine.Reset()
		p.dispatcher.Enqueue(feedback.Message{
			Text: p.templates.SessionStarted(def.Name, cmd.TargetReps),
		})
	case CommandStop:
		if ev, ok := p.machine.Stop(now); ok {
			p.handleMachineEvent(ev)
		}
	}
}

func (p *Pipeline) handleCameraEvent(ev camsync.Event) {
	switch ev.Kind {
	case camsync.EventCameraLost:
		if mev, ok := p.machine.Pause(ev.At, segmenter.PauseCameraLost); ok {
			p.handleMachineEvent(mev)
		}
	case camsync.EventCameraRestored:
		if mev, ok := p.machine.Resume(ev.At, segmenter.PauseCameraLost); ok {
			p.handleMachineEvent(mev)
		}
	}
}

func (p *Pipeline) handleMachineEvent(ev segmenter.Event) {
	switch ev.Kind {
	case segmenter.EventRepDiscarded:
		p.dispatcher.Enqueue(feedback.Message{Text: p.templates.RepDiscarded(), Label: "rep_discarded"})
	case segmenter.EventRepCompleted:
		p.analyzeRep(ev.Rep)
		sess := p.machine.Session()
		p.dispatcher.Enqueue(feedback.Message{
			Text: p.templates.RepCompleted(sess.CompletedReps(), sess.TargetReps()),
		})
	case segmenter.EventSetCompleted:
		sess := p.machine.Session()
		p.dispatcher.Enqueue(feedback.Message{
			Text:     p.templates.SetCompleted(sess.CompletedReps()),
			Priority: "high",
		})
		p.finalize(ev.At)
	case segmenter.EventPaused:
		p.dispatcher.Enqueue(feedback.Message{Text: p.templates.Paused(), Label: "paused"})
	case segmenter.EventResumed:
		p.dispatcher.Enqueue(feedback.Message{Text: p.templates.Resumed(), Label: "resumed"})
	case segmenter.EventRecoveryFailed:
		if ev.Rep != nil {
			p.analyzeRep(ev.Rep)
		}
		p.dispatcher.Enqueue(feedback.Message{Text: p.templates.RecoveryFailed(), Priority: "high"})
		p.finalize(ev.At)
	case segmenter.EventSessionStopped:
		p.dispatcher.Enqueue(feedback.Message{Text: p.templates.SessionStopped()})
		p.finalize(ev.At)
	}
}

// analyzeRep evaluates a closed rep and voices detected faults. A broken
// rule set only disables analysis for this exercise; segmentation continues.
func (p *Pipeline) analyzeRep(rep *session.Repetition) {
	sess := p.machine.Session()
	events, metrics, err := p.detector.Evaluate(rep, sess.Definition())
	if err != nil {
		p.logger.Warn("rep analysis skipped",
			logging.String(logging.FieldExercise, sess.Definition().ID),
			logging.Error(err),
		)
		return
	}
	sess.AttachAnalysis(rep.Index, events, metrics)
	for _, fault := range events {
		priority := ""
		if fault.Severity == exercise.SeverityCritical {
			priority = "high"
		}
		p.dispatcher.Enqueue(feedback.Message{
			Text:     p.templates.TechniqueFault(fault.Label, fault.Severity),
			Label:    fault.Label,
			Priority: priority,
		})
	}
}

// finalize exports and persists the session exactly once per run.
func (p *Pipeline) finalize(at time.Time) {
	if !p.active {
		return
	}
	p.active = false
	sess := p.machine.Session()
	if sess == nil {
		return
	}
	final := sess.Finalize(at)
	p.logger.Info("session finalized",
		logging.String(logging.FieldSession, final.ID),
		logging.String(logging.FieldExercise, final.ExerciseID),
		logging.Int("total_reps", final.Metrics.TotalReps),
		logging.Int("complete_reps", final.Metrics.CompleteReps),
		logging.Float64("efficiency", final.Metrics.Efficiency),
	)
	if p.store == nil {
		return
	}
	p.persists.Add(1)
	go func() {
		defer p.persists.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.store.Save(ctx, final); err != nil {
			p.logger.Error("session persistence failed",
				logging.String(logging.FieldSession, final.ID),
				logging.Error(err),
			)
		}
	}()
}
