package scaling

import (
	"context"

	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
	"github.com/shkond/CloudVid-Bridge/core/queue"
	"github.com/shkond/CloudVid-Bridge/core/quota"
)

// Decision is the action a scaling check settled on
type Decision string

const (
	DecisionStarted     Decision = "started"
	DecisionLeftRunning Decision = "left_running"
	DecisionStopped     Decision = "stopped"
)

// CheckResult summarizes one scaling check
type CheckResult struct {
	PendingJobs int
	ActiveJobs  int
	QuotaOK     bool
	Decision    Decision
}

type ScalingController interface {
	// CheckAndScale inspects the queue and quota and scales the worker dyno
	// up or down accordingly
	CheckAndScale(ctx context.Context) (*CheckResult, error)
}

type scalingController struct {
	logger    logging.Logger
	queue     queue.QueueService
	quota     quota.Tracker
	formation FormationClient
	dynoType  string
}

// NewScalingController creates a new ScalingController
func NewScalingController(logger logging.Logger, queueService queue.QueueService, quotaTracker quota.Tracker, formation FormationClient, dynoType string) *scalingController {

	if logger == nil {
		logger = logging.NopLogger
	}

	return &scalingController{
		logger:    logger,
		queue:     queueService,
		quota:     quotaTracker,
		formation: formation,
		dynoType:  dynoType,
	}
}

// CheckAndScale keeps the worker dyno running only while it has work it can
// actually do. An exhausted upload quota stops the dyno even when jobs are
// waiting, active jobs keep it alive so in-flight transfers can finish.
func (c *scalingController) CheckAndScale(ctx context.Context) (*CheckResult, error) {
	pending, err := c.queue.GetPendingJobs()
	if err != nil {
		c.logger.Error("Failed to get pending jobs", "error", err)
		return nil, err
	}

	active, err := c.queue.GetActiveJobs()
	if err != nil {
		c.logger.Error("Failed to get active jobs", "error", err)
		return nil, err
	}

	result := &CheckResult{
		PendingJobs: len(pending),
		ActiveJobs:  len(active),
		QuotaOK:     c.quota.CanPerform(quota.OpVideosInsert, 1),
	}

	if len(pending) > 0 {
		c.logger.Info("Found pending jobs", "count", len(pending))
	}
	if len(active) > 0 {
		c.logger.Info("Found active jobs", "count", len(active))
	}

	switch {
	case len(active) > 0:
		// Never pull the dyno out from under an in-flight transfer
		started, err := c.formation.EnsureWorkerRunning(ctx, c.dynoType)
		if err != nil {
			return nil, err
		}
		result.Decision = DecisionLeftRunning
		if started {
			result.Decision = DecisionStarted
		}

	case len(pending) > 0 && result.QuotaOK:
		c.logger.Info("Jobs found - ensuring worker is running")
		started, err := c.formation.EnsureWorkerRunning(ctx, c.dynoType)
		if err != nil {
			return nil, err
		}
		result.Decision = DecisionLeftRunning
		if started {
			result.Decision = DecisionStarted
		}

	case len(pending) > 0:
		c.logger.Warn("Upload quota exhausted - stopping worker until the next quota day")
		if err := c.formation.StopWorker(ctx, c.dynoType); err != nil {
			return nil, err
		}
		result.Decision = DecisionStopped

	default:
		c.logger.Info("No jobs - stopping worker to save dyno hours")
		if err := c.formation.StopWorker(ctx, c.dynoType); err != nil {
			return nil, err
		}
		result.Decision = DecisionStopped
	}

	return result, nil
}
