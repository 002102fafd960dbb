package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeJobStarted   = "job.started"
	EventTypeJobProgress  = "job.progress"
	EventTypeJobCompleted = "job.completed"
	EventTypeJobFailed    = "job.failed"
	EventTypeJobCancelled = "job.cancelled"
)

type JobStartedEvent struct {
	BaseEvent
	JobID      string `json:"job_id"`
	JobType    string `json:"job_type"`
	TotalItems int    `json:"total_items"`
}

func NewJobStartedEvent(jobID, jobType string, totalItems int) *JobStartedEvent {
	return &JobStartedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeJobStarted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"job_id":      jobID,
				"job_type":    jobType,
				"total_items": totalItems,
			},
		},
		JobID:      jobID,
		JobType:    jobType,
		TotalItems: totalItems,
	}
}

type JobProgressEvent struct {
	BaseEvent
	JobID          string `json:"job_id"`
	ProcessedItems int    `json:"processed_items"`
	TotalItems     int    `json:"total_items"`
	Progress       int    `json:"progress"`
}

func NewJobProgressEvent(jobID string, processedItems, totalItems, progress int) *JobProgressEvent {
	return &JobProgressEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeJobProgress,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"job_id":          jobID,
				"processed_items": processedItems,
				"total_items":     totalItems,
				"progress":        progress,
			},
		},
		JobID:          jobID,
		ProcessedItems: processedItems,
		TotalItems:     totalItems,
		Progress:       progress,
	}
}

type JobFinishedEvent struct {
	BaseEvent
	JobID           string `json:"job_id"`
	FinalStatus     string `json:"final_status"`
	SuccessfulItems int    `json:"successful_items"`
	FailedItems     int    `json:"failed_items"`
	Reason          string `json:"reason,omitempty"`
}

func newJobFinishedEvent(eventType, jobID, finalStatus string, successfulItems, failedItems int, reason string) *JobFinishedEvent {
	return &JobFinishedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"job_id":           jobID,
				"final_status":     finalStatus,
				"successful_items": successfulItems,
				"failed_items":     failedItems,
				"reason":           reason,
			},
		},
		JobID:           jobID,
		FinalStatus:     finalStatus,
		SuccessfulItems: successfulItems,
		FailedItems:     failedItems,
		Reason:          reason,
	}
}

func NewJobCompletedEvent(jobID string, successfulItems, failedItems int) *JobFinishedEvent {
	return newJobFinishedEvent(EventTypeJobCompleted, jobID, "COMPLETED", successfulItems, failedItems, "")
}

func NewJobFailedEvent(jobID string, successfulItems, failedItems int, reason string) *JobFinishedEvent {
	return newJobFinishedEvent(EventTypeJobFailed, jobID, "FAILED", successfulItems, failedItems, reason)
}

func NewJobCancelledEvent(jobID string, successfulItems, failedItems int) *JobFinishedEvent {
	return newJobFinishedEvent(EventTypeJobCancelled, jobID, "CANCELLED", successfulItems, failedItems, "")
}
