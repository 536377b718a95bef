package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when a lead is saved with an email that
// already belongs to another lead.
var ErrDuplicateEmail = errors.New("email already registered")

type PipelineStage string

const (
	StageNew              PipelineStage = "new"
	StageQualified        PipelineStage = "qualified"
	StageContacted        PipelineStage = "contacted"
	StageMeetingScheduled PipelineStage = "meeting_scheduled"
	StageProposalSent     PipelineStage = "proposal_sent"
	StageNegotiation      PipelineStage = "negotiation"
	StageClosedWon        PipelineStage = "closed_won"
	StageClosedLost       PipelineStage = "closed_lost"
)

// PipelineStages lists every stage in funnel order.
var PipelineStages = []PipelineStage{
	StageNew,
	StageQualified,
	StageContacted,
	StageMeetingScheduled,
	StageProposalSent,
	StageNegotiation,
	StageClosedWon,
	StageClosedLost,
}

// Valid reports whether s is one of the known pipeline stages.
func (s PipelineStage) Valid() bool {
	for _, st := range PipelineStages {
		if s == st {
			return true
		}
	}
	return false
}

type InteractionType string

const (
	InteractionEmail    InteractionType = "email"
	InteractionCall     InteractionType = "call"
	InteractionMeeting  InteractionType = "meeting"
	InteractionLinkedIn InteractionType = "linkedin"
	InteractionNote     InteractionType = "note"
)

// Lead is a sales prospect. Optional attributes are nil when unknown.
type Lead struct {
	ID             int64         `json:"id"`
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	Email          string        `json:"email"`
	Phone          *string       `json:"phone"`
	CompanyName    string        `json:"company_name"`
	JobTitle       *string       `json:"job_title"`
	CompanySize    *string       `json:"company_size"`
	Industry       *string       `json:"industry"`
	CompanyWebsite *string       `json:"company_website"`
	LinkedInURL    *string       `json:"linkedin_url"`
	Notes          *string       `json:"notes"`
	LeadScore      float64       `json:"lead_score"`
	PipelineStage  PipelineStage `json:"pipeline_stage"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// FullName joins first and last name.
func (l Lead) FullName() string {
	return l.FirstName + " " + l.LastName
}

// LeadPatch carries a partial lead update. Nil fields are left unchanged.
type LeadPatch struct {
	FirstName      *string        `json:"first_name"`
	LastName       *string        `json:"last_name"`
	Email          *string        `json:"email"`
	Phone          *string        `json:"phone"`
	CompanyName    *string        `json:"company_name"`
	JobTitle       *string        `json:"job_title"`
	CompanySize    *string        `json:"company_size"`
	Industry       *string        `json:"industry"`
	CompanyWebsite *string        `json:"company_website"`
	LinkedInURL    *string        `json:"linkedin_url"`
	Notes          *string        `json:"notes"`
	LeadScore      *float64       `json:"lead_score"`
	PipelineStage  *PipelineStage `json:"pipeline_stage"`
}

// LeadFilter narrows ListLeads. Zero values mean no restriction.
type LeadFilter struct {
	Stage  PipelineStage
	Search string
	Offset int
	Limit  int
}

type Interaction struct {
	ID              int64           `json:"id"`
	LeadID          int64           `json:"lead_id"`
	InteractionType InteractionType `json:"interaction_type"`
	Subject         *string         `json:"subject"`
	Content         string          `json:"content"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Message struct {
	ID            int64      `json:"id"`
	LeadID        int64      `json:"lead_id"`
	MessageType   string     `json:"message_type"`
	Subject       *string    `json:"subject"`
	Content       string     `json:"content"`
	PromptUsed    string     `json:"prompt_used"`
	RawCompletion *string    `json:"raw_completion,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SentAt        *time.Time `json:"sent_at"`
}

// ScoringCriterion is a named, weighted dimension used by lead scoring.
// Rules is a JSON object mapping attribute values to scores.
type ScoringCriterion struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Weight      float64   `json:"weight"`
	Rules       string    `json:"criteria_rules"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Evaluation is one recorded test-case outcome from the evaluation harness.
type Evaluation struct {
	ID              int64     `json:"id"`
	RunID           string    `json:"run_id"`
	TestName        string    `json:"test_name"`
	PromptTemplate  string    `json:"prompt_template"`
	TestInput       string    `json:"test_input"`
	ExpectedOutput  *string   `json:"expected_output"`
	ActualOutput    string    `json:"actual_output"`
	Score           *float64  `json:"score"`
	Passed          bool      `json:"passed"`
	ExecutionTimeMS int64     `json:"execution_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// EvaluationSummary aggregates evaluation records.
type EvaluationSummary struct {
	TotalTests             int      `json:"total_tests"`
	PassedTests            int      `json:"passed_tests"`
	FailedTests            int      `json:"failed_tests"`
	AverageScore           *float64 `json:"average_score"`
	AverageExecutionTimeMS *float64 `json:"average_execution_time_ms"`
}
