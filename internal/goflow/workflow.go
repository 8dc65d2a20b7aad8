package goflow

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Processor runs the caller's analysis pipeline against a job and returns
// the content to submit, or an error if the job could not be processed.
type Processor func(ctx context.Context, job *Job) (map[string]interface{}, error)

// Driver runs the acquire/process/submit/report lifecycle against a Client.
type Driver struct {
	client *Client
	log    *zap.Logger
}

func NewDriver(client *Client, log *zap.Logger) *Driver {
	return &Driver{client: client, log: log}
}

// RunOnce executes a single lifecycle iteration: fetch the next job, publish
// in_progress, run the processor, submit the result, optionally request a
// report, and publish the final status. A failure publishing status is
// logged but never aborts the iteration; only the processor's own failure
// short-circuits it.
func (d *Driver) RunOnce(ctx context.Context, process Processor, requestReport bool) IterationResult {
	job, err := d.client.NextJob(ctx)
	if err != nil {
		return IterationResult{Processed: false, Err: err}
	}
	if job == nil {
		return IterationResult{Processed: false}
	}

	d.publishStatus(ctx, job.ProjectID, "in_progress", floatPtr(0.0), nil)

	content, procErr := process(ctx, job)
	if procErr != nil {
		msg := procErr.Error()
		d.publishStatus(ctx, job.ProjectID, "failed", nil, &msg)
		return IterationResult{Processed: true, Job: job, Success: false, Err: procErr}
	}

	if err := d.client.SubmitResult(ctx, job.ProjectID, job.MediaID, job.AnalysisID, ResultPayload{
		Success: true,
		Content: content,
	}); err != nil {
		d.log.Warn("submit result failed", zap.String("project_id", job.ProjectID), zap.Error(err))
	}

	if requestReport {
		if _, err := d.client.RequestReport(ctx, ReportRequest{ProjectID: job.ProjectID, IncludeDetails: true}); err != nil {
			d.log.Warn("report request failed", zap.String("project_id", job.ProjectID), zap.Error(err))
		}
	}

	d.publishStatus(ctx, job.ProjectID, "completed", floatPtr(1.0), nil)

	return IterationResult{Processed: true, Job: job, Success: true}
}

// Run drives RunOnce forever until ctx is cancelled, pacing the
// no-job-available branch with a token-bucket limiter instead of a bare
// sleep so a burst of newly queued jobs is picked up immediately while an
// idle driver doesn't spin.
func (d *Driver) Run(ctx context.Context, process Processor, requestReport bool, idlePollsPerSecond float64) {
	limiter := rate.NewLimiter(rate.Limit(idlePollsPerSecond), 1)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := d.RunOnce(ctx, process, requestReport)
		if result.Err != nil && !result.Processed {
			d.log.Warn("job acquisition failed", zap.Error(result.Err))
		}
		if !result.Processed {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}
	}
}

func (d *Driver) publishStatus(ctx context.Context, projectID, status string, progress *float64, detail *string) {
	if err := d.client.PublishStatus(ctx, projectID, JobStatusUpdate{Status: status, Progress: progress, Detail: detail}); err != nil {
		d.log.Warn("publish status failed", zap.String("project_id", projectID), zap.String("status", status), zap.Error(err))
	}
}
