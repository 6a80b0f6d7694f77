package storage

import (
	"errors"
	"time"

	"github.com/kalambet/mitigate/internal/job"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// JobSnapshot is a named, saved copy of a job record.
type JobSnapshot struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Record    job.Record `json:"job"`
}

// JobSummary is the listing view of a snapshot, without the record body.
type JobSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	JobNumber   string    `json:"jobNumber"`
	InsuredName string    `json:"insuredName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListOptions pages and filters ListJobs. Query matches the snapshot name
// or job number, case-insensitively.
type ListOptions struct {
	Query  string
	Limit  int
	Offset int
}
