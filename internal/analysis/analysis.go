// Package analysis evaluates closed repetitions against the exercise's
// declarative rule table and computes continuous per-rep metrics.
package analysis

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"formcoach/internal/angles"
	"formcoach/internal/exercise"
	"formcoach/internal/faults"
	"formcoach/internal/logging"
	"formcoach/internal/session"
)

// Detector evaluates rule tables against repetition trajectories.
type Detector struct {
	logger *slog.Logger
}

// NewDetector builds a detector.
func NewDetector(logger *slog.Logger) *Detector {
	return &Detector{logger: logging.NewComponentLogger(logger, "analysis")}
}

// Evaluate runs every rule of def against the closed repetition and computes
// its continuous metrics. Matches sharing a label collapse into one event
// keeping the first occurrence and the highest severity; output is ordered by
// severity descending, then label. A malformed rule aborts evaluation with a
// rule config error; the repetition itself stays usable.
func (d *Detector) Evaluate(rep *session.Repetition, def exercise.Definition) ([]session.ErrorEvent, session.RepMetrics, error) {
	series := groupByTriplet(rep.Trajectory)
	primary := series[def.PrimaryJoint]
	metrics := computeMetrics(primary, def, series)

	phases := derivePhases(primary, def)

	byLabel := make(map[string]session.ErrorEvent)
	var order []string
	record := func(ev session.ErrorEvent) {
		existing, seen := byLabel[ev.Label]
		if !seen {
			byLabel[ev.Label] = ev
			order = append(order, ev.Label)
			return
		}
		if ev.Severity.Rank() > existing.Severity.Rank() {
			existing.Severity = ev.Severity
		}
		if ev.Timestamp.Before(existing.Timestamp) {
			existing.Timestamp = ev.Timestamp
			existing.Phase = ev.Phase
		}
		byLabel[ev.Label] = existing
	}

	for _, rule := range def.Rules {
		switch rule.Kind {
		case exercise.RuleAngleRange:
			for _, sample := range series[rule.Joint] {
				phase := phases.at(sample.Timestamp)
				if rule.Phase != exercise.PhaseAny && phase != rule.Phase {
					continue
				}
				if sample.Angle >= rule.MinAngle && sample.Angle <= rule.MaxAngle {
					continue
				}
				record(session.ErrorEvent{
					RepetitionIndex: rep.Index,
					Label:           rule.Label,
					Severity:        rule.Severity,
					Phase:           phase,
					Timestamp:       sample.Timestamp,
				})
			}
		case exercise.RuleSymmetry:
			diff, ok := meanAbsDifference(series[rule.Joint], series[rule.MirrorJoint])
			if !ok || diff <= rule.MaxDifference {
				continue
			}
			record(session.ErrorEvent{
				RepetitionIndex: rep.Index,
				Label:           rule.Label,
				Severity:        rule.Severity,
				Phase:           exercise.PhaseAny,
				Timestamp:       rep.StartedAt,
			})
		default:
			return nil, metrics, faults.Wrap(faults.ErrRuleConfig, "analysis",
				fmt.Sprintf("exercise %s: rule %q has unknown kind %q", def.ID, rule.Label, rule.Kind), nil)
		}
	}

	events := make([]session.ErrorEvent, 0, len(order))
	for _, label := range order {
		events = append(events, byLabel[label])
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Severity.Rank() != events[j].Severity.Rank() {
			return events[i].Severity.Rank() > events[j].Severity.Rank()
		}
		return events[i].Label < events[j].Label
	})

	if len(events) > 0 {
		d.logger.Debug("rep evaluated",
			logging.String(logging.FieldExercise, def.ID),
			logging.Int("rep", rep.Index),
			logging.Int("errors", len(events)),
		)
	}
	return events, metrics, nil
}

// phaseIndex classifies each primary sample and answers phase lookups for
// arbitrary timestamps by nearest primary sample.
type phaseIndex struct {
	samples []angles.Sample
	phases  []exercise.Phase
}

// derivePhases splits the primary trajectory into descent, bottom, and ascent.
// The bottom band covers angles within BottomFraction of the rep's angle range
// from the extremum; everything before the extremum is descent, after is
// ascent (mirrored for ascending movements, keeping the original phase names).
func derivePhases(primary []angles.Sample, def exercise.Definition) phaseIndex {
	idx := phaseIndex{samples: primary, phases: make([]exercise.Phase, len(primary))}
	if len(primary) == 0 {
		return idx
	}

	extremumAt := 0
	minAngle, maxAngle := primary[0].Angle, primary[0].Angle
	for i, s := range primary {
		if s.Angle < minAngle {
			minAngle = s.Angle
		}
		if s.Angle > maxAngle {
			maxAngle = s.Angle
		}
		better := s.Angle < primary[extremumAt].Angle
		if !def.Descending() {
			better = s.Angle > primary[extremumAt].Angle
		}
		if better {
			extremumAt = i
		}
	}

	band := (maxAngle - minAngle) * def.BottomFraction
	for i, s := range primary {
		inBand := s.Angle-minAngle <= band
		if !def.Descending() {
			inBand = maxAngle-s.Angle <= band
		}
		switch {
		case inBand:
			idx.phases[i] = exercise.PhaseBottom
		case i < extremumAt:
			idx.phases[i] = exercise.PhaseDescent
		default:
			idx.phases[i] = exercise.PhaseAscent
		}
	}
	return idx
}

// at returns the phase of the primary sample nearest to ts.
func (p phaseIndex) at(ts time.Time) exercise.Phase {
	if len(p.samples) == 0 {
		return exercise.PhaseAny
	}
	best := 0
	bestDelta := absDuration(p.samples[0].Timestamp.Sub(ts))
	for i := 1; i < len(p.samples); i++ {
		delta := absDuration(p.samples[i].Timestamp.Sub(ts))
		if delta < bestDelta {
			best = i
			bestDelta = delta
		}
	}
	return p.phases[best]
}

func computeMetrics(primary []angles.Sample, def exercise.Definition, series map[angles.TripletID][]angles.Sample) session.RepMetrics {
	var metrics session.RepMetrics
	if len(primary) == 0 {
		return metrics
	}
	minAngle, maxAngle := primary[0].Angle, primary[0].Angle
	for _, s := range primary {
		if s.Angle < minAngle {
			minAngle = s.Angle
		}
		if s.Angle > maxAngle {
			maxAngle = s.Angle
		}
		if v := math.Abs(s.Velocity); v > metrics.PeakVelocity {
			metrics.PeakVelocity = v
		}
	}
	metrics.RangeOfMotion = maxAngle - minAngle

	if def.Bilateral {
		if diff, ok := meanAbsDifference(primary, series[mirrorOf(def.PrimaryJoint)]); ok {
			metrics.Symmetry = diff
		}
	}
	return metrics
}

// mirrorOf maps a sided triplet to its opposite side, e.g. left_hip to
// right_hip. Unsided triplets map to themselves.
func mirrorOf(id angles.TripletID) angles.TripletID {
	s := string(id)
	switch {
	case strings.HasPrefix(s, "left_"):
		return angles.TripletID("right_" + strings.TrimPrefix(s, "left_"))
	case strings.HasPrefix(s, "right_"):
		return angles.TripletID("left_" + strings.TrimPrefix(s, "right_"))
	}
	return id
}

// meanAbsDifference aligns two series by timestamp and averages the absolute
// angle difference over the overlap. ok is false without any overlap.
func meanAbsDifference(a, b []angles.Sample) (float64, bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}
	byTime := make(map[int64]float64, len(b))
	for _, s := range b {
		byTime[s.Timestamp.UnixNano()] = s.Angle
	}
	var sum float64
	var n int
	for _, s := range a {
		if other, ok := byTime[s.Timestamp.UnixNano()]; ok {
			sum += math.Abs(s.Angle - other)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func groupByTriplet(trajectory []angles.Sample) map[angles.TripletID][]angles.Sample {
	out := make(map[angles.TripletID][]angles.Sample)
	for _, s := range trajectory {
		out[s.Triplet] = append(out[s.Triplet], s)
	}
	return out
}
