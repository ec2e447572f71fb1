package api

import "time"

type TaskExternalStatus string

const (
	TaskStatusError TaskExternalStatus = "Error"
)

type TaskResponse struct {
	Id          string             `json:"id"`
	TraceId     string             `json:"trace_id,omitempty"`
	Collection  string             `json:"collection,omitempty"`
	DocumentId  string             `json:"document_id,omitempty"`
	Operation   string             `json:"operation,omitempty"`
	Attempt     int                `json:"attempt,omitempty"`
	MaxAttempts int                `json:"max_attempts,omitempty"`
	Result      Result             `json:"result"`
	Error       *TaskOutgoingError `json:"error,omitempty"`
	StartTime   time.Time          `json:"start_time"`
	EndTime     time.Time          `json:"end_time,omitempty"`
}

type TaskOutgoingError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Retry   bool   `json:"can_retry"`
}

type Result struct {
	Status     string `json:"status"`
	Step       string `json:"step,omitempty"`
	ChunkCount int    `json:"chunk_count,omitempty"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
