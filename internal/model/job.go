package model

import "time"

// ProcessingJob represents one run of the stage pipeline against a Source.
// Status and progress are the single source of truth a poller observes;
// progress is monotonically non-decreasing for the lifetime of the run.
type ProcessingJob struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	SourceID         uint       `gorm:"not null;index" json:"sourceId"`
	Status           JobStatus  `gorm:"not null;default:pending" json:"status"`
	Stage            *Stage     `json:"stage"`
	Progress         int        `gorm:"not null;default:0" json:"progress"`
	RecordsProcessed int        `gorm:"not null;default:0" json:"recordsProcessed"`
	TotalRecords     *int       `json:"totalRecords"`
	ErrorMessage     *string    `json:"errorMessage"`
	StartedAt        *time.Time `json:"startedAt"`
	CompletedAt      *time.Time `json:"completedAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"-"`

	Source   *Source   `gorm:"foreignKey:SourceID" json:"-"`
	Datasets []Dataset `gorm:"foreignKey:JobID" json:"datasets,omitempty"`
}

// StartProcessResponse is the 201 body for POST /sources/:id/process.
type StartProcessResponse struct {
	ID        uint      `json:"id"`
	SourceID  uint      `json:"sourceId"`
	Status    JobStatus `json:"status"`
	Stage     *Stage    `json:"stage"`
	Progress  int       `json:"progress"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobProgressResponse is the poll body for GET /jobs/:id/progress.
type JobProgressResponse struct {
	ID               uint      `json:"id"`
	Status           JobStatus `json:"status"`
	Stage            *Stage    `json:"stage"`
	Progress         int       `json:"progress"`
	RecordsProcessed int       `json:"recordsProcessed"`
	TotalRecords     *int      `json:"totalRecords"`
	ErrorMessage     *string   `json:"errorMessage"`
}
