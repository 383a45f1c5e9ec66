package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// JobState is the lifecycle state of one analysis run.
type JobState int

const (
	JobQueued JobState = iota
	JobRunning
	JobDone
	JobError
)

var jobStateNames = map[JobState]string{
	JobQueued:  "queued",
	JobRunning: "running",
	JobDone:    "done",
	JobError:   "error",
}

// legalTransitions lists, for each state, the states it may move to.
var legalTransitions = map[JobState][]JobState{
	JobQueued:  {JobRunning},
	JobRunning: {JobDone, JobError},
}

func (s JobState) String() string {
	if name, ok := jobStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("JobState(%d)", int(s))
}

func (s JobState) Terminal() bool {
	return s == JobDone || s == JobError
}

func (s JobState) CanTransitionTo(next JobState) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s JobState) MarshalText() ([]byte, error) {
	if _, ok := jobStateNames[s]; !ok {
		return nil, errors.Errorf("invalid job state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *JobState) UnmarshalText(text []byte) error {
	parsed, err := ParseJobState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseJobState(s string) (JobState, error) {
	for state, name := range jobStateNames {
		if strings.EqualFold(name, s) {
			return state, nil
		}
	}
	return JobQueued, errors.Errorf("unknown job state %q", s)
}

// ErrIllegalTransition is returned when a job is asked to move to a state its current state does not allow.
type ErrIllegalTransition struct {
	JobId string
	From  JobState
	To    JobState
}

func (err *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("job %s cannot move from %s to %s", err.JobId, err.From, err.To)
}

// Job is one analysis run over a LogFile. Jobs are never deleted; a re-run creates a new Job.
type Job struct {
	Id         string     `json:"jobId"`
	LogId      string     `json:"logId"`
	Status     JobState   `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func NewJob(id string, logId string, now time.Time) *Job {
	return &Job{
		Id:        id,
		LogId:     logId,
		Status:    JobQueued,
		CreatedAt: now,
	}
}

// Transition returns a copy of the job moved to next. Entering running records the start time, entering a
// terminal state records the finish time, and entering error records message.
func (j *Job) Transition(next JobState, now time.Time, message string) (*Job, error) {
	if !j.Status.CanTransitionTo(next) {
		return nil, errors.WithStack(&ErrIllegalTransition{JobId: j.Id, From: j.Status, To: next})
	}
	updated := j.DeepCopy()
	updated.Status = next
	if next == JobRunning {
		updated.StartedAt = &now
	}
	if next.Terminal() {
		updated.FinishedAt = &now
	}
	if next == JobError {
		updated.Error = message
	}
	return updated, nil
}

func (j *Job) DeepCopy() *Job {
	copied := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		copied.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		copied.FinishedAt = &t
	}
	return &copied
}
