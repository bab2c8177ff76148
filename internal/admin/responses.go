package admin

import (
	"time"

	audit "catalog/pkg/platform/audit"
	"catalog/pkg/platform/audit/queue"
)

// FailedJobResponse is the HTTP response DTO for a job in the failed bucket.
type FailedJobResponse struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actor_id,omitempty"`
	Detail     string    `json:"detail"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	FailedAt   time.Time `json:"failed_at"`
}

// FailedJobsResponse wraps the list of failed jobs for HTTP response.
type FailedJobsResponse struct {
	Jobs  []*FailedJobResponse `json:"jobs"`
	Total int                  `json:"total"`
}

func toFailedJobsResponse(jobs []queue.Job) *FailedJobsResponse {
	out := make([]*FailedJobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = &FailedJobResponse{
			ID:         j.ID,
			Action:     string(j.Event.Action),
			ActorID:    j.Event.ActorID,
			Detail:     j.Event.Detail,
			Attempts:   j.Attempts,
			LastError:  j.LastError,
			EnqueuedAt: j.EnqueuedAt,
			FailedAt:   j.FinishedAt,
		}
	}
	return &FailedJobsResponse{Jobs: out, Total: len(out)}
}

// RecordResponse is the HTTP response DTO for one activity record.
type RecordResponse struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actor_id,omitempty"`
	Detail     string    `json:"detail"`
	ClientIP   string    `json:"client_ip,omitempty"`
	Client     string    `json:"client,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type RecordsResponse struct {
	Records []*RecordResponse `json:"records"`
	Total   int               `json:"total"`
}

func toRecordsResponse(records []audit.Record) *RecordsResponse {
	out := make([]*RecordResponse, len(records))
	for i, rec := range records {
		out[i] = &RecordResponse{
			ID:         rec.ID,
			Action:     string(rec.Action),
			ActorID:    rec.ActorID,
			Detail:     rec.Detail,
			ClientIP:   rec.ClientIP,
			Client:     rec.Client,
			OccurredAt: rec.OccurredAt,
		}
	}
	return &RecordsResponse{Records: out, Total: len(out)}
}
