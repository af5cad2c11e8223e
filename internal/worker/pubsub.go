package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubHandler triggers maintenance runs from Pub/Sub messages, so the
// scheduler can stay outside the process.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	maintenanceJob   *MaintenanceJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	MaintenanceJob   *MaintenanceJob
	Logger           zerolog.Logger
}

// MaintenanceMessage represents a maintenance job message.
type MaintenanceMessage struct {
	JobType string `json:"job_type"`

	// Tasks restricts the run to specific tasks. Empty runs the job's
	// configured set.
	Tasks []string `json:"tasks,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings. A network refresh can sit in the
	// parser for minutes, so extend the ack deadline accordingly.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		maintenanceJob:   cfg.MaintenanceJob,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	// Parse message.
	var maintMsg MaintenanceMessage
	if err := json.Unmarshal(msg.Data, &maintMsg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Nack()
		return
	}

	// Handle based on job type.
	var err error
	switch maintMsg.JobType {
	case "maintenance":
		err = h.handleMaintenance(ctx, maintMsg)
	case "health_check":
		err = h.handleHealthCheck(ctx)
	default:
		logger.Warn().Str("job_type", maintMsg.JobType).Msg("unknown job type")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	}

	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
		return
	}

	duration := time.Since(startTime)
	logger.Info().
		Str("job_type", maintMsg.JobType).
		Dur("duration", duration).
		Msg("job completed successfully")

	msg.Ack()
}

func (h *PubSubHandler) handleMaintenance(ctx context.Context, msg MaintenanceMessage) error {
	job := h.maintenanceJob
	if len(msg.Tasks) > 0 {
		// Run only the requested subset, keeping the job's pool and
		// timeout settings.
		config := job.config
		config.Tasks = make([]Task, 0, len(msg.Tasks))
		for _, t := range msg.Tasks {
			config.Tasks = append(config.Tasks, Task(t))
		}
		job = NewMaintenanceJob(MaintenanceJobConfig{
			Config:   config,
			Logger:   h.logger,
			Pipeline: h.maintenanceJob.pipeline,
			Cache:    h.maintenanceJob.cache,
			Flags:    h.maintenanceJob.flags,
		})
	}

	result := job.Run(ctx)

	h.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("maintenance run completed")

	if result.Failed > 0 {
		return fmt.Errorf("maintenance failures: %d/%d", result.Failed, result.TotalTasks)
	}

	return nil
}

func (h *PubSubHandler) handleHealthCheck(ctx context.Context) error {
	h.logger.Debug().Msg("running health check")

	// Flag warming is the cheapest round-trip that still proves the
	// repository is reachable.
	healthCheckJob := NewMaintenanceJob(MaintenanceJobConfig{
		Config: MaintenanceConfig{
			Tasks:       []Task{TaskWarmFlags},
			Concurrency: 1,
			Timeout:     10 * time.Second,
		},
		Logger: h.logger,
		Flags:  h.maintenanceJob.flags,
	})

	result := healthCheckJob.Run(ctx)

	if result.Failed > 0 {
		return fmt.Errorf("health check failed: %d errors", result.Failed)
	}

	h.logger.Debug().Msg("health check passed")
	return nil
}
