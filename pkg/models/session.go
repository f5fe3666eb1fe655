package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus describes how a classification session ended.
type SessionStatus string

const (
	// SessionCompleted means every field was classified without fallback.
	SessionCompleted SessionStatus = "completed"
	// SessionDegraded means the session finished but at least one field
	// received a fallback classification or was dropped by validation.
	SessionDegraded SessionStatus = "degraded"
	// SessionPartial means the session was cancelled before all work
	// finished; completed results are surfaced, nothing is cached.
	SessionPartial SessionStatus = "partial"
	// SessionFailed means an input error prevented any work.
	SessionFailed SessionStatus = "failed"
)

// StepStatus describes the outcome of one pipeline stage.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// WorkflowStep is an ordered, timestamped record of one orchestrator
// stage, kept for audit and debugging.
type WorkflowStep struct {
	Stage       string        `json:"stage"`
	Status      StepStatus    `json:"status"`
	Message     string        `json:"message,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration_ns"`
}

// SessionReport aggregates observability signals for a finished session.
// Targets are surfaced as pass/fail indicators, never enforced.
type SessionReport struct {
	LocalCoverageRate   float64                  `json:"local_coverage_rate"`
	AIUsageRate         float64                  `json:"ai_usage_rate"`
	CacheHitRate        float64                  `json:"cache_hit_rate"`
	LocalTargetMet      bool                     `json:"local_target_met"`
	AITargetMet         bool                     `json:"ai_target_met"`
	ConfidenceHistogram map[ConfidenceBand]int   `json:"confidence_histogram"`
	ByRegulation        map[Regulation]int       `json:"by_regulation"`
	ByMethod            map[DetectionMethod]int  `json:"by_method"`
}

// ClassificationSession is what the orchestrator owns for the lifetime of
// one classifySchema call and what external reporting consumes afterward.
type ClassificationSession struct {
	ID               uuid.UUID              `json:"id"`
	StartedAt        time.Time              `json:"started_at"`
	CompletedAt      time.Time              `json:"completed_at"`
	Regulations      []Regulation           `json:"regulations"`
	Scope            Scope                  `json:"scope"`
	Status           SessionStatus          `json:"status"`
	TotalFields      int                    `json:"total_fields"`
	LocalHits        int                    `json:"local_hits"`
	AIHits           int                    `json:"ai_hits"`
	CacheHits        int                    `json:"cache_hits"`
	FallbackCount    int                    `json:"fallback_count"`
	ValidationErrors int                    `json:"validation_errors"`
	Results          []*FieldClassification `json:"results"`
	Steps            []WorkflowStep         `json:"steps"`
	Report           *SessionReport         `json:"report,omitempty"`
}

// NewClassificationSession creates a session with a fresh id and start
// timestamp.
func NewClassificationSession(regulations []Regulation, scope Scope) *ClassificationSession {
	return &ClassificationSession{
		ID:          uuid.New(),
		StartedAt:   time.Now(),
		Regulations: regulations,
		Scope:       scope,
		Status:      SessionCompleted,
	}
}

// AddStep appends a workflow step record.
func (s *ClassificationSession) AddStep(stage string, status StepStatus, message string, started time.Time) {
	now := time.Now()
	s.Steps = append(s.Steps, WorkflowStep{
		Stage:       stage,
		Status:      status,
		Message:     message,
		StartedAt:   started,
		CompletedAt: now,
		Duration:    now.Sub(started),
	})
}

// Degraded reports whether any fallback or validation drop occurred.
func (s *ClassificationSession) Degraded() bool {
	return s.FallbackCount > 0 || s.ValidationErrors > 0
}
