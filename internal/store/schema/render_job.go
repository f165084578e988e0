package schema

import "time"

// RenderJobStatus represents the lifecycle state of a render job
type RenderJobStatus string

const (
	// RenderJobStatusPending means the job is waiting to be picked up
	RenderJobStatusPending RenderJobStatus = "pending"
	// RenderJobStatusGenerating means a worker is rendering the preview
	RenderJobStatusGenerating RenderJobStatus = "generating"
	// RenderJobStatusCompleted means the preview file was written
	RenderJobStatusCompleted RenderJobStatus = "completed"
	// RenderJobStatusFailed means the render failed; the error column has details
	RenderJobStatusFailed RenderJobStatus = "failed"
)

// RenderJob represents the render_jobs table. A token gets at most one row
// (insert-if-absent). Jobs move pending -> generating -> completed|failed and
// never leave a terminal state automatically; resetting a failed job to
// pending is an operator action.
type RenderJob struct {
	// TokenID is the decimal-string token id (primary key)
	TokenID string `gorm:"column:token_id;primaryKey;type:text"`
	// Status is the current lifecycle state
	Status RenderJobStatus `gorm:"column:status;not null;type:text;index:idx_render_jobs_status"`
	// FilePath is the rendered preview location (set on completion)
	FilePath *string `gorm:"column:file_path;type:text"`
	// Error holds the failure message for failed jobs
	Error *string `gorm:"column:error;type:text"`
	// CreatedAt is the timestamp when the job was enqueued
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// GeneratedAt is the timestamp when the preview finished rendering
	GeneratedAt *time.Time `gorm:"column:generated_at;type:timestamptz"`
}

// TableName specifies the table name for the RenderJob model
func (RenderJob) TableName() string {
	return "render_jobs"
}
