// Package exercise holds the declarative per-exercise configuration: phase
// thresholds driving repetition segmentation and the rule tables the error
// detector evaluates. Definitions are data, not logic, so rule sets can be
// swapped at runtime without touching the pipeline.
package exercise

import (
	"fmt"
	"strings"

	"formcoach/internal/angles"
)

// Phase names a sub-interval of a repetition's trajectory.
type Phase string

const (
	PhaseDescent Phase = "descent"
	PhaseBottom  Phase = "bottom"
	PhaseAscent  Phase = "ascent"
	PhaseAny     Phase = "any"
)

// Severity ranks detected error patterns for feedback prioritization.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal position of a severity; higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 0
	default:
		return -1
	}
}

// RuleKind selects how a rule is evaluated.
type RuleKind string

const (
	// RuleAngleRange flags samples whose angle leaves [MinAngle, MaxAngle]
	// within the rule's phase window.
	RuleAngleRange RuleKind = "angle_range"
	// RuleSymmetry flags repetitions whose mirrored joint trajectories
	// diverge by more than MaxDifference degrees on average.
	RuleSymmetry RuleKind = "symmetry"
)

// Rule is one declarative error pattern.
type Rule struct {
	Kind          RuleKind         `toml:"kind"`
	Label         string           `toml:"label"`
	Joint         angles.TripletID `toml:"joint"`
	MirrorJoint   angles.TripletID `toml:"mirror_joint"`
	Phase         Phase            `toml:"phase"`
	MinAngle      float64          `toml:"min_angle"`
	MaxAngle      float64          `toml:"max_angle"`
	MaxDifference float64          `toml:"max_difference"`
	Severity      Severity         `toml:"severity"`
}

// Definition describes one exercise.
//
// The primary joint governs every phase boundary: a repetition starts when
// its angle crosses StartThreshold toward TargetExtremum with velocity
// magnitude above DebounceVelocity, and completes when the angle returns to
// StartThreshold after reaching TargetExtremum. Whether the movement goes
// down or up follows from the sign of TargetExtremum - StartThreshold.
type Definition struct {
	ID               string           `toml:"id"`
	Name             string           `toml:"name"`
	PrimaryJoint     angles.TripletID `toml:"primary_joint"`
	StartThreshold   float64          `toml:"start_threshold"`
	TargetExtremum   float64          `toml:"target_extremum"`
	DebounceVelocity float64          `toml:"debounce_velocity"`
	MinRepDurationMS int              `toml:"min_rep_duration_ms"`
	Bilateral        bool             `toml:"bilateral"`
	BottomFraction   float64          `toml:"bottom_fraction"`
	Rules            []Rule           `toml:"rule"`
}

// Descending reports whether the primary angle decreases into the repetition
// (e.g. the hip angle during a squat).
func (d Definition) Descending() bool {
	return d.TargetExtremum < d.StartThreshold
}

func (d *Definition) validate(known map[angles.TripletID]struct{}) error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("exercise id must be set")
	}
	if _, ok := known[d.PrimaryJoint]; !ok {
		return fmt.Errorf("exercise %q: unknown primary joint %q", d.ID, d.PrimaryJoint)
	}
	if d.StartThreshold == d.TargetExtremum {
		return fmt.Errorf("exercise %q: start threshold and target extremum must differ", d.ID)
	}
	if d.DebounceVelocity < 0 {
		return fmt.Errorf("exercise %q: debounce velocity must be >= 0", d.ID)
	}
	if d.MinRepDurationMS < 0 {
		return fmt.Errorf("exercise %q: min rep duration must be >= 0", d.ID)
	}
	if d.BottomFraction <= 0 {
		d.BottomFraction = 0.15
	}
	if d.BottomFraction >= 1 {
		return fmt.Errorf("exercise %q: bottom fraction must be below 1", d.ID)
	}
	for i := range d.Rules {
		rule := &d.Rules[i]
		if rule.Kind == "" {
			rule.Kind = RuleAngleRange
		}
		if rule.Phase == "" {
			rule.Phase = PhaseAny
		}
		if err := rule.validate(d.ID, known); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rule) validate(exerciseID string, known map[angles.TripletID]struct{}) error {
	if strings.TrimSpace(r.Label) == "" {
		return fmt.Errorf("exercise %q: rule label must be set", exerciseID)
	}
	if r.Severity.Rank() < 0 {
		return fmt.Errorf("exercise %q: rule %q: unknown severity %q", exerciseID, r.Label, r.Severity)
	}
	switch r.Phase {
	case PhaseDescent, PhaseBottom, PhaseAscent, PhaseAny:
	default:
		return fmt.Errorf("exercise %q: rule %q: unknown phase %q", exerciseID, r.Label, r.Phase)
	}
	if _, ok := known[r.Joint]; !ok {
		return fmt.Errorf("exercise %q: rule %q: unknown joint %q", exerciseID, r.Label, r.Joint)
	}
	switch r.Kind {
	case RuleAngleRange:
		if r.MinAngle >= r.MaxAngle {
			return fmt.Errorf("exercise %q: rule %q: min angle must be below max angle", exerciseID, r.Label)
		}
	case RuleSymmetry:
		if _, ok := known[r.MirrorJoint]; !ok {
			return fmt.Errorf("exercise %q: rule %q: unknown mirror joint %q", exerciseID, r.Label, r.MirrorJoint)
		}
		if r.MaxDifference <= 0 {
			return fmt.Errorf("exercise %q: rule %q: max difference must be positive", exerciseID, r.Label)
		}
	default:
		return fmt.Errorf("exercise %q: rule %q: unknown kind %q", exerciseID, r.Label, r.Kind)
	}
	return nil
}
