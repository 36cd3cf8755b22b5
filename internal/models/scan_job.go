package models

import (
	"encoding/json"
	"time"
)

// JobStatus represents the state of a scan job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobMode selects between scanning a single URL and crawling a whole site
type JobMode string

const (
	JobModeSingle JobMode = "single"
	JobModeSite   JobMode = "site"
)

// ScanOptions is the per-job configuration snapshot taken at creation time.
// A nil field falls back to the service-level scanner configuration.
type ScanOptions struct {
	SiteDepth        int      `json:"siteDepth,omitempty" validate:"omitempty,min=1,max=10"`
	MaxPages         int      `json:"maxPages,omitempty" validate:"omitempty,min=1,max=1000"`
	UserAgent        string   `json:"userAgent,omitempty"`
	RequestTimeoutMs int      `json:"requestTimeoutMs,omitempty" validate:"omitempty,min=1000,max=120000"`
	DeviceProfiles   []string `json:"deviceProfiles,omitempty" validate:"omitempty,dive,oneof=desktop tablet mobile"`
}

// Job represents one scan job. A job owns its pages; page rows are never
// reparented. Status transitions are driven exclusively by the executor and
// the scheduler:
//
//	pending -> running -> {completed, failed}
//
// Cancellation is reported as status=failed with a fixed error string and a
// `cancelled` task event.
type Job struct {
	ID            string             `json:"id"`
	TargetURL     string             `json:"targetUrl"`
	Mode          JobMode            `json:"mode"`
	Status        JobStatus          `json:"status"`
	PagesTotal    int                `json:"pagesTotal"`
	PagesFinished int                `json:"pagesFinished"`
	IssuesSummary *AggregatedSummary `json:"issuesSummary,omitempty"`
	Options       *ScanOptions       `json:"options,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	StartedAt     *time.Time         `json:"startedAt,omitempty"`
	CompletedAt   *time.Time         `json:"completedAt,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// IsTerminal reports whether the job has reached a final state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ToJSON serializes ScanOptions for database storage
func (o *ScanOptions) ToJSON() (string, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ScanOptionsFromJSON deserializes ScanOptions from a database column
func ScanOptionsFromJSON(data string) (*ScanOptions, error) {
	if data == "" {
		return nil, nil
	}
	var opts ScanOptions
	if err := json.Unmarshal([]byte(data), &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}
