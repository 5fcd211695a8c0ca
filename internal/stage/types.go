package stage

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage names a pipeline stage.
type Stage string

const (
	Detection  Stage = "detection"
	Adjustment Stage = "adjustment"
)

// Stages lists the batch stages in execution order.
var Stages = []Stage{Detection, Adjustment}

// ParseStage validates a stage name.
func ParseStage(name string) (Stage, bool) {
	switch Stage(strings.ToLower(strings.TrimSpace(name))) {
	case Detection:
		return Detection, true
	case Adjustment:
		return Adjustment, true
	}
	return "", false
}

// Phase names one idempotent step of the workflow.
type Phase string

const (
	PhaseDetectionConfigure  Phase = "detection-configure"
	PhaseDetectionCheck      Phase = "detection-check"
	PhaseAdjustmentConfigure Phase = "adjustment-configure"
	PhaseAdjustmentCheck     Phase = "adjustment-check"
	PhaseCommit              Phase = "commit"
)

// Phases lists every phase in execution order.
var Phases = []Phase{
	PhaseDetectionConfigure,
	PhaseDetectionCheck,
	PhaseAdjustmentConfigure,
	PhaseAdjustmentCheck,
	PhaseCommit,
}

func (s Stage) configurePhase() Phase {
	if s == Adjustment {
		return PhaseAdjustmentConfigure
	}
	return PhaseDetectionConfigure
}

func (s Stage) checkPhase() Phase {
	if s == Adjustment {
		return PhaseAdjustmentCheck
	}
	return PhaseDetectionCheck
}

// outputExt is the extension of a stage's per-batch artifacts.
func (s Stage) outputExt() string {
	if s == Adjustment {
		return "oea"
	}
	return "red"
}

// commitRecord is the stage record name used for the commit phase.
const commitRecord = "commit"

// State is the persisted lifecycle state of a stage.
type State string

const (
	StateNotStarted         State = "not_started"
	StateEmitted            State = "emitted"
	StateAwaitingCompletion State = "awaiting_completion"
	StateMerged             State = "merged"
	StateSkipped            State = "skipped"
	StateDone               State = "done"
)

// Terminal reports whether no further work remains for the stage.
func (s State) Terminal() bool {
	return s == StateDone || s == StateSkipped
}

// Label renders the state for humans ("Awaiting Completion").
func (s State) Label() string {
	if s == "" {
		s = StateNotStarted
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(s), "_", " "))
}
