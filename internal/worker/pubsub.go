package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types carried by worker messages.
const (
	JobTypeRoutePrewarm = "route_prewarm"
	JobTypeHealthCheck  = "health_check"
)

// PrewarmMessage is a worker job message.
//
//	{"job_type":"route_prewarm","pairs":[{"dep":"4916","arr":"6617"}]}
//	{"job_type":"route_prewarm","stations":["4916","6617","5085"]}
//	{"job_type":"health_check"}
type PrewarmMessage struct {
	JobType string `json:"job_type"`
	Pairs   []Pair `json:"pairs,omitempty"`
	// Stations expands to every ordered pair between the listed stations.
	Stations []string `json:"stations,omitempty"`
}

// Dispatcher runs the job described by a message. A nil error means the message
// should be acknowledged.
type Dispatcher struct {
	job    *PrewarmJob
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher for prewarm and health check jobs.
func NewDispatcher(job *PrewarmJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{job: job, logger: logger}
}

// Dispatch parses data and runs the job. Unknown job types are acknowledged so they
// are not redelivered.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	var msg PrewarmMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("parsing message: %w", err)
	}

	switch msg.JobType {
	case JobTypeRoutePrewarm:
		return d.prewarm(ctx, msg)
	case JobTypeHealthCheck:
		return d.healthCheck(ctx)
	default:
		d.logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return nil
	}
}

func (d *Dispatcher) prewarm(ctx context.Context, msg PrewarmMessage) error {
	pairs := append(msg.Pairs, PairsBetween(msg.Stations)...)

	result := d.job.Run(ctx, pairs)

	if result.Failed > 0 {
		return fmt.Errorf("route prewarm failed for %d/%d pairs", result.Failed, result.TotalPairs)
	}
	return nil
}

func (d *Dispatcher) healthCheck(ctx context.Context) error {
	d.logger.Debug().Msg("running health check")

	if err := d.job.CheckHealth(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	d.logger.Debug().Msg("health check passed")
	return nil
}

// PubSubHandler receives job messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger

	// MaxOutstandingMessages bounds concurrent jobs (default: 10).
	MaxOutstandingMessages int
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	maxOutstanding := cfg.MaxOutstandingMessages
	if maxOutstanding <= 0 {
		maxOutstanding = 10
	}
	subscriber.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
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

	if err := h.dispatcher.Dispatch(ctx, msg.Data); err != nil {
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
		return
	}

	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")

	msg.Ack()
}
