package engine

import (
	"time"

	"github.com/ferretbot/ferretbot/internal/checks"
)

// Run states. Queued and running are progressible; waiting states park the
// run until an external signal arrives; the rest are terminal.
const (
	RunQueued          = "queued"
	RunRunning         = "running"
	RunWaitingApproval = "waiting_approval"
	RunWaitingInput    = "waiting_input"
	RunCompleted       = "completed"
	RunFailed          = "failed"
	RunBlocked         = "blocked"
	RunCancelled       = "cancelled"
)

// Step states within a run.
const (
	StepPending   = "pending"
	StepActive    = "active"
	StepCompleted = "completed"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
)

// Run is the mutable execution record for one workflow instance. Steps carry
// only per-run state; static step data lives on the registered definition
// and is looked up by id whenever the run advances. Args holds the caller's
// inputs plus values accumulated during the run (the bound sessionId and
// wait_for_input responses), which is the scope templates render against.
type Run struct {
	ID              int            `json:"id"`
	WorkflowID      string         `json:"workflowId"`
	WorkflowVersion string         `json:"workflowVersion"`
	State           string         `json:"state"`
	Args            map[string]any `json:"args"`
	Steps           []*StepRecord  `json:"steps"`
	Failure         *Failure       `json:"failure,omitempty"`

	// Bootstrap marks a run started by the daemon itself rather than a
	// client. A bootstrap run waiting for input rebinds to whichever
	// session speaks next, so a reconnecting user can resume onboarding.
	Bootstrap bool `json:"bootstrap,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StepRecord tracks one step's execution state. RetryCount is the number of
// re-activations consumed; AttemptCount is the total completions processed,
// which can exceed RetryCount+1 only if duplicate completion events arrive.
type StepRecord struct {
	ID              string          `json:"id"`
	State           string          `json:"state"`
	Result          string          `json:"result,omitempty"`
	Meta            *StepMeta       `json:"resultMeta,omitempty"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	RetryCount      int             `json:"retryCount"`
	AttemptCount    int             `json:"attemptCount"`
	LastFailureHash string          `json:"lastFailureHash,omitempty"`
	CheckResults    []checks.Result `json:"checkResults,omitempty"`
}

// StepMeta carries the structured residue of a step attempt alongside the
// textual result.
type StepMeta struct {
	ToolCalls   []ToolCall          `json:"toolCalls,omitempty"`
	ToolResults []checks.ToolResult `json:"toolResults,omitempty"`
	Artifacts   []string            `json:"artifacts,omitempty"`
}

// ToolCall records one tool invocation requested during an agent step.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Failure describes why a run stopped making progress.
type Failure struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	StepID   string `json:"stepId,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// Summary is the list/display projection of a run.
type Summary struct {
	ID              int       `json:"runId"`
	WorkflowID      string    `json:"workflowId"`
	WorkflowVersion string    `json:"workflowVersion"`
	State           string    `json:"state"`
	Failure         *Failure  `json:"failure,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Step returns the record with the given id, or nil.
func (r *Run) Step(id string) *StepRecord {
	for _, rec := range r.Steps {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// Summary projects the run for listings.
func (r *Run) Summary() Summary {
	s := Summary{
		ID:              r.ID,
		WorkflowID:      r.WorkflowID,
		WorkflowVersion: r.WorkflowVersion,
		State:           r.State,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.Failure != nil {
		f := *r.Failure
		s.Failure = &f
	}
	return s
}

// Clone returns a deep copy safe to hand outside the engine.
func (r *Run) Clone() *Run {
	cp := *r
	cp.Args = cloneMap(r.Args)
	cp.Steps = make([]*StepRecord, len(r.Steps))
	for i, rec := range r.Steps {
		cp.Steps[i] = rec.clone()
	}
	if r.Failure != nil {
		f := *r.Failure
		cp.Failure = &f
	}
	return &cp
}

func (rec *StepRecord) clone() *StepRecord {
	cp := *rec
	if rec.StartedAt != nil {
		t := *rec.StartedAt
		cp.StartedAt = &t
	}
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		cp.CompletedAt = &t
	}
	if rec.Meta != nil {
		m := *rec.Meta
		m.ToolCalls = append([]ToolCall(nil), rec.Meta.ToolCalls...)
		m.ToolResults = append([]checks.ToolResult(nil), rec.Meta.ToolResults...)
		m.Artifacts = append([]string(nil), rec.Meta.Artifacts...)
		cp.Meta = &m
	}
	cp.CheckResults = append([]checks.Result(nil), rec.CheckResults...)
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// stepSatisfied reports whether a dependency on this step is met.
func stepSatisfied(state string) bool {
	return state == StepCompleted || state == StepSkipped
}
