package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus enumerates the lifecycle of a pipeline execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Stage names one step of the pipeline state machine.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StageAnalysis  Stage = "analysis"
	StageSynthesis Stage = "synthesis"
	StageFinalize  Stage = "finalize"
)

// PipelineExecution is one run of the stage sequence for a stream. Terminal
// states are completed/failed and are never resurrected; a retry at the
// scheduling level creates a fresh execution.
type PipelineExecution struct {
	ID              string          `json:"id"`
	StreamID        string          `json:"streamId"`
	Status          ExecutionStatus `json:"status"`
	Stage           Stage           `json:"stage,omitempty"`
	StartedAt       time.Time       `json:"startedAt,omitempty"`
	FinishedAt      time.Time       `json:"finishedAt,omitempty"`
	SourcesAnalyzed int             `json:"sourcesAnalyzed"`
	Confidence      float64         `json:"confidence"`
	IsAutomated     bool            `json:"isAutomated"`
	Error           string          `json:"error,omitempty"`
}

// NewExecution creates a pending execution for the stream.
func NewExecution(streamID string, automated bool) PipelineExecution {
	return PipelineExecution{
		ID:          uuid.NewString(),
		StreamID:    streamID,
		Status:      ExecutionPending,
		IsAutomated: automated,
	}
}
