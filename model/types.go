package model

import "time"

// Request is one consultation: a recorded description plus an optional photo.
type Request struct {
	ID        string
	AudioPath string
	// ImagePath is empty when no image was supplied.
	ImagePath string
}

// Result is the triple handed back to the caller after a pipeline run.
type Result struct {
	RequestID    string `json:"request_id"`
	Transcript   string `json:"transcript"`
	ResponseText string `json:"response"`
	AudioPath    string `json:"audio_path"`
	// Degraded is set when the analysis stage fell back to a sentinel text.
	Degraded bool `json:"degraded"`
}

// Stage names a step of the consultation pipeline.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageAnalyze    Stage = "analyze"
	StageSynthesize Stage = "synthesize"
	StageDone       Stage = "done"
)

// StageStatus is the outcome reported for a stage.
type StageStatus string

const (
	StatusStarted   StageStatus = "started"
	StatusSucceeded StageStatus = "succeeded"
	StatusDegraded  StageStatus = "degraded"
	StatusSkipped   StageStatus = "skipped"
	StatusFailed    StageStatus = "failed"
)

// StageEvent reports progress of a single pipeline run.
type StageEvent struct {
	RequestID string      `json:"request_id"`
	Stage     Stage       `json:"stage"`
	Status    StageStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	Time      time.Time   `json:"time"`
}
