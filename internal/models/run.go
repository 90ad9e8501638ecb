package models

import (
	"fmt"
	"time"
)

// Status is the final status of an agent run.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusExhausted Status = "exhausted"
	StatusFatal     Status = "fatal"
)

// Outcome classifies a single attempt.
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeGenerationError    Outcome = "generation-error"
	OutcomeExecutionError     Outcome = "execution-error"
	OutcomeValidationMismatch Outcome = "validation-mismatch"
	// OutcomeAborted marks an attempt cut short by a fatal error.
	OutcomeAborted Outcome = "aborted"
)

// Artifact is the generated parser source persisted for a target.
// Only the latest candidate exists on disk for any target.
type Artifact struct {
	Target    string    `json:"target" yaml:"target"`
	Path      string    `json:"path" yaml:"path"`
	Source    string    `json:"source,omitempty" yaml:"source,omitempty"`
	SHA256    string    `json:"sha256" yaml:"sha256"`
	WrittenAt time.Time `json:"writtenAt" yaml:"written_at"`
}

// Attempt records one generate -> execute -> validate cycle.
type Attempt struct {
	Number    int           `json:"number" yaml:"number"`
	Source    string        `json:"-" yaml:"-"`
	Outcome   Outcome       `json:"outcome" yaml:"outcome"`
	Detail    string        `json:"detail,omitempty" yaml:"detail,omitempty"`
	StartedAt time.Time     `json:"startedAt" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Failed reports whether the attempt did not produce an accepted parser.
func (a Attempt) Failed() bool {
	return a.Outcome != OutcomeSuccess
}

// LoopState is the state the agent loop carries between attempts.
type LoopState struct {
	Attempt     int
	LastFailure string
	Terminal    bool
	Status      Status
}

// Finish marks the state terminal with the given status. It returns false
// if the state was already terminal; the first status wins.
func (s *LoopState) Finish(status Status) bool {
	if s.Terminal {
		return false
	}
	s.Terminal = true
	s.Status = status
	return true
}

// LoopResult is what a run reports back to its caller.
type LoopResult struct {
	RunID        string        `json:"runId" yaml:"run_id"`
	Target       string        `json:"target" yaml:"target"`
	Status       Status        `json:"status" yaml:"status"`
	AttemptsUsed int           `json:"attemptsUsed" yaml:"attempts_used"`
	MaxAttempts  int           `json:"maxAttempts" yaml:"max_attempts"`
	Artifact     *Artifact     `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	LastFailure  string        `json:"lastFailure,omitempty" yaml:"last_failure,omitempty"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
	Attempts     []Attempt     `json:"attempts" yaml:"attempts"`
	StartedAt    time.Time     `json:"startedAt" yaml:"started_at"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
}

// Succeeded reports whether the run produced an accepted parser.
func (r *LoopResult) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// UnacceptedWarning describes why the parser on disk may be unverified:
// every attempt rewrites it, so after a failed run it holds the last
// rejected candidate. Empty when latest is nil or succeeded.
func UnacceptedWarning(latest *LoopResult) string {
	if latest == nil || latest.Succeeded() {
		return ""
	}
	return fmt.Sprintf("latest run %s for %s ended %s; this parser was never accepted",
		latest.RunID, latest.Target, latest.Status)
}
