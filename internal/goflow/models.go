// Package goflow implements the Job Lifecycle Driver (C11): a client for
// the external job-acquisition RPC and the run-once workflow loop that
// drives a processor through acquire/process/submit/report.
package goflow

// Job is the unit of work returned by the next-job endpoint.
type Job struct {
	JobID      string                 `json:"job_id"`
	ProjectID  string                 `json:"project_id"`
	MediaID    string                 `json:"media_id"`
	AnalysisID string                 `json:"analysis_id"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// JobStatusUpdate reports lifecycle progress for a project.
type JobStatusUpdate struct {
	Status   string   `json:"status"`
	Detail   *string  `json:"detail,omitempty"`
	Progress *float64 `json:"progress,omitempty"`
}

// ResultPayload is the outcome submitted for one (project, media, analysis).
type ResultPayload struct {
	Success bool                   `json:"success"`
	Content map[string]interface{} `json:"content,omitempty"`
	Error   *string                `json:"error,omitempty"`
}

// ReportRequest asks the driver to compile a project report.
type ReportRequest struct {
	ProjectID      string `json:"project_id"`
	IncludeDetails bool   `json:"include_details"`
}

// ReportResponse is the acknowledgement of a report request.
type ReportResponse struct {
	ProjectID string `json:"project_id"`
	ReportID  string `json:"report_id"`
	Status    string `json:"status"`
}

// IterationResult summarizes one RunOnce pass for the caller.
type IterationResult struct {
	Processed bool
	Job       *Job
	Success   bool
	Err       error
}

func floatPtr(f float64) *float64 { return &f }
