package models

import (
	"regexp"
	"time"
)

// Policy controls how a plan is computed and executed. It is fixed for a run.
type Policy struct {
	Overwrite   bool           `json:"overwrite"`
	RemoveExtra bool           `json:"remove_extra"`
	NamePattern *regexp.Regexp `json:"-"` // nil matches every index
	AutoConfirm bool           `json:"auto_confirm"`
}

// SkipReason explains why a source index was left out of the plan.
type SkipReason string

const (
	SkipUnhealthy SkipReason = "unhealthy" // source health is not green
	SkipEmpty     SkipReason = "empty"     // source has no documents
	SkipExists    SkipReason = "exists"    // destination already has documents
)

// SkippedIndex is a source index that the plan will not touch.
type SkippedIndex struct {
	Name   string     `json:"name"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// MigrationPlan is the set of actions computed for one run.
// An index appears in at most one of ToRemove and ToCopy, and in at most one
// of ToRemove and ToTruncate. With overwrite, every ToTruncate entry is also
// in ToCopy.
type MigrationPlan struct {
	Source      string           `json:"source"`
	Destination string           `json:"destination"`
	Pattern     string           `json:"pattern"`
	ToRemove    []string         `json:"to_remove"`
	ToTruncate  []string         `json:"to_truncate"`
	ToCopy      []string         `json:"to_copy"`
	Documents   map[string]int64 `json:"documents"` // expected documents per ToCopy entry
	Skipped     []SkippedIndex   `json:"skipped"`
	Warnings    []string         `json:"warnings"`
}

// ActionCount is the number of remove, truncate and copy actions.
func (p *MigrationPlan) ActionCount() int {
	return len(p.ToRemove) + len(p.ToTruncate) + len(p.ToCopy)
}

// Empty reports whether there is nothing to do.
func (p *MigrationPlan) Empty() bool {
	return p.ActionCount() == 0
}

// TotalDocuments is the number of documents expected to be copied.
func (p *MigrationPlan) TotalDocuments() int64 {
	var total int64
	for _, name := range p.ToCopy {
		total += p.Documents[name]
	}
	return total
}

// SkippedFor returns the skipped indexes with the given reason.
func (p *MigrationPlan) SkippedFor(reason SkipReason) []SkippedIndex {
	var out []SkippedIndex
	for _, s := range p.Skipped {
		if s.Reason == reason {
			out = append(out, s)
		}
	}
	return out
}

// Action is a kind of step the dispatcher performs.
type Action string

const (
	ActionRemove   Action = "remove"
	ActionTruncate Action = "truncate"
	ActionCopy     Action = "copy"
)

// Outcome is the result of one action.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ActionResult records what happened to one index during a run.
type ActionResult struct {
	Action  Action        `json:"action"`
	Index   string        `json:"index"`
	Outcome Outcome       `json:"outcome"`
	TaskID  string        `json:"task_id,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`
}

// RunReport summarises an executed plan.
type RunReport struct {
	Plan       *MigrationPlan `json:"plan"`
	Results    []ActionResult `json:"results"`
	Progress   Progress       `json:"progress"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Failed returns the results that did not succeed.
func (r *RunReport) Failed() []ActionResult {
	var out []ActionResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

// Elapsed is the wall time of the run.
func (r *RunReport) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
