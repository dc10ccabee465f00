package feedback

import (
	"fmt"

	"golang.org/x/text/language"

	"formcoach/internal/exercise"
)

// template keys shared across every locale.
const (
	msgSessionStarted = "session_started"
	msgRepCompleted   = "rep_completed"
	msgSetCompleted   = "set_completed"
	msgRepDiscarded   = "rep_discarded"
	msgPaused         = "paused"
	msgResumed        = "resumed"
	msgRecoveryFailed = "recovery_failed"
	msgSessionStopped = "session_stopped"
	msgFault          = "fault"
	msgCriticalFault  = "fault_critical"
	msgClarification  = "clarification"
)

var catalog = map[language.Tag]map[string]string{
	language.English: {
		msgSessionStarted: "Starting %s, %d reps. Let's go.",
		msgRepCompleted:   "Rep %d of %d.",
		msgSetCompleted:   "Set complete, %d reps done. Nice work.",
		msgRepDiscarded:   "That one didn't count, reset and go again.",
		msgPaused:         "Hold on, I lost sight of you.",
		msgResumed:        "Got you again, keep going.",
		msgRecoveryFailed: "I couldn't recover tracking, stopping the set.",
		msgSessionStopped: "Session stopped.",
		msgFault:          "Watch your form: %s.",
		msgCriticalFault:  "Stop, %s. Fix this before the next rep.",
		msgClarification:  "Sorry, I didn't catch that. Say for example: start squat, ten reps.",
	},
	language.German: {
		msgSessionStarted: "Los geht's: %s, %d Wiederholungen.",
		msgRepCompleted:   "Wiederholung %d von %d.",
		msgSetCompleted:   "Satz geschafft, %d Wiederholungen. Stark.",
		msgRepDiscarded:   "Die hat nicht gezählt, noch einmal.",
		msgPaused:         "Moment, ich sehe dich nicht mehr.",
		msgResumed:        "Ich habe dich wieder, weiter so.",
		msgRecoveryFailed: "Tracking verloren, ich beende den Satz.",
		msgSessionStopped: "Training beendet.",
		msgFault:          "Achte auf deine Technik: %s.",
		msgCriticalFault:  "Stopp, %s. Korrigiere das vor der nächsten Wiederholung.",
		msgClarification:  "Das habe ich nicht verstanden. Sag zum Beispiel: Kniebeuge starten, zehn Wiederholungen.",
	},
}

var matcher = language.NewMatcher([]language.Tag{language.English, language.German})

// Templates renders coaching cues in one matched locale.
type Templates struct {
	messages map[string]string
}

// NewTemplates matches the configured language against the supported locales,
// falling back to English for anything unrecognized.
func NewTemplates(lang string) Templates {
	tag, _ := language.MatchStrings(matcher, lang)
	base, _ := tag.Base()
	for supported, messages := range catalog {
		if b, _ := supported.Base(); b == base {
			return Templates{messages: messages}
		}
	}
	return Templates{messages: catalog[language.English]}
}

func (t Templates) render(key string, args ...any) string {
	tmpl, ok := t.messages[key]
	if !ok {
		tmpl = catalog[language.English][key]
	}
	return fmt.Sprintf(tmpl, args...)
}

func (t Templates) SessionStarted(name string, target int) string {
	return t.render(msgSessionStarted, name, target)
}

func (t Templates) RepCompleted(done, target int) string {
	return t.render(msgRepCompleted, done, target)
}

func (t Templates) SetCompleted(total int) string { return t.render(msgSetCompleted, total) }

func (t Templates) RepDiscarded() string { return t.render(msgRepDiscarded) }

func (t Templates) Paused() string { return t.render(msgPaused) }

func (t Templates) Resumed() string { return t.render(msgResumed) }

func (t Templates) RecoveryFailed() string { return t.render(msgRecoveryFailed) }

func (t Templates) SessionStopped() string { return t.render(msgSessionStopped) }

// TechniqueFault renders a detected error pattern; critical faults get the
// urgent phrasing and high delivery priority.
func (t Templates) TechniqueFault(label string, severity exercise.Severity) string {
	if severity == exercise.SeverityCritical {
		return t.render(msgCriticalFault, label)
	}
	return t.render(msgFault, label)
}

func (t Templates) Clarification() string { return t.render(msgClarification) }
