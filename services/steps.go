package services

import (
	"fmt"
	"log"
)

// StepName identifies one side effect of the completion sequence.
type StepName string

const (
	StepVisitLog        StepName = "visit_log"
	StepCommit          StepName = "commit"
	StepRewardCredit    StepName = "reward_credit"
	StepCompletionCount StepName = "completion_count"
	StepTokenCleanup    StepName = "token_cleanup"
)

type OutcomeKind string

const (
	OutcomeCommitted        OutcomeKind = "committed"
	OutcomeBestEffortFailed OutcomeKind = "best_effort_failed"
	OutcomeSkipped          OutcomeKind = "skipped"
)

// StepOutcome is the result of one step. Fatal steps never produce one:
// they abort the sequence with an error instead.
type StepOutcome struct {
	Step   StepName    `json:"step"`
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
}

func (o StepOutcome) Failed() bool { return o.Kind == OutcomeBestEffortFailed }

func committed(step StepName) StepOutcome {
	return StepOutcome{Step: step, Kind: OutcomeCommitted}
}

func skipped(step StepName, reason string) StepOutcome {
	return StepOutcome{Step: step, Kind: OutcomeSkipped, Reason: reason}
}

func bestEffortFailed(step StepName, err error) StepOutcome {
	return StepOutcome{Step: step, Kind: OutcomeBestEffortFailed, Reason: err.Error()}
}

// StepReport collects outcomes in execution order.
type StepReport struct {
	Outcomes []StepOutcome `json:"outcomes"`
}

// Record appends the outcome of a best-effort step and logs failures.
func (r *StepReport) Record(o StepOutcome, taskID, userID string) StepOutcome {
	r.Outcomes = append(r.Outcomes, o)
	if o.Failed() {
		log.Printf("⚠️ [COMPLETE] best-effort step %s failed (task=%s user=%s): %s", o.Step, taskID, userID, o.Reason)
	}
	return o
}

// Outcome returns the recorded outcome for step, if any.
func (r *StepReport) Outcome(step StepName) (StepOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Step == step {
			return o, true
		}
	}
	return StepOutcome{}, false
}

// Failures lists every best-effort step that failed.
func (r *StepReport) Failures() []StepOutcome {
	var out []StepOutcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

func (r *StepReport) String() string {
	return fmt.Sprintf("%d steps, %d best-effort failures", len(r.Outcomes), len(r.Failures()))
}
