package pipeline

import (
	"strconv"
	"strings"

	"formcoach/internal/faults"
)

// CommandKind selects the pipeline action a spoken command maps to.
type CommandKind string

const (
	CommandStart CommandKind = "start"
	CommandStop  CommandKind = "stop"
)

// Command is one parsed voice command.
type Command struct {
	Kind       CommandKind
	ExerciseID string
	TargetReps int
}

const defaultTargetReps = 10

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "fifteen": 15, "twenty": 20,
}

// spokenExercises maps spoken names onto exercise IDs.
var spokenExercises = map[string]string{
	"squat":                "squat",
	"squats":               "squat",
	"shoulder press":       "shoulder_press_front",
	"press":                "shoulder_press_front",
	"shoulder press front": "shoulder_press_front",
	"shoulder press side":  "shoulder_press_side",
	"side press":           "shoulder_press_side",
}

// ParseCommand interprets a final speech transcript. Unrecognized input
// returns an invalid command error; the caller answers with a clarification
// and changes no state.
func ParseCommand(text string) (Command, error) {
	words := tokenize(text)
	if len(words) == 0 {
		return Command{}, faults.Wrap(faults.ErrInvalidCommand, "pipeline", "empty transcript", nil)
	}

	switch words[0] {
	case "stop", "cancel", "end", "quit":
		return Command{Kind: CommandStop}, nil
	case "start", "begin", "do":
	default:
		return Command{}, faults.Wrap(faults.ErrInvalidCommand, "pipeline",
			"transcript "+strconv.Quote(text)+" is not a command", nil)
	}

	target := 0
	var nameWords []string
	for _, word := range words[1:] {
		if word == "reps" || word == "rep" || word == "repetitions" {
			continue
		}
		if n, err := strconv.Atoi(word); err == nil {
			target = n
			continue
		}
		if n, ok := numberWords[word]; ok {
			target = n
			continue
		}
		nameWords = append(nameWords, word)
	}

	id, ok := spokenExercises[strings.Join(nameWords, " ")]
	if !ok {
		return Command{}, faults.Wrap(faults.ErrInvalidCommand, "pipeline",
			"unknown exercise in "+strconv.Quote(text), nil)
	}
	if target <= 0 {
		target = defaultTargetReps
	}
	return Command{Kind: CommandStart, ExerciseID: id, TargetReps: target}, nil
}

func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', '!', '?', ';', ':':
			return ' '
		}
		return r
	}, strings.ToLower(text))
	return strings.Fields(cleaned)
}
