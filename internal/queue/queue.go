// Package queue dispatches campaign sends outside the HTTP request, either
// through RabbitMQ or in-process.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"campaign-mailer-go/internal/apperrors"
	"campaign-mailer-go/internal/config"
	"campaign-mailer-go/internal/metrics"
)

// SendJob asks a worker to send one campaign
type SendJob struct {
	CampaignID uint      `json:"campaign_id"`
	RequestID  string    `json:"request_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Handler runs one job
type Handler func(ctx context.Context, job SendJob) error

// Publisher enqueues send jobs
type Publisher interface {
	PublishSend(ctx context.Context, campaignID uint) (*SendJob, error)
	Close() error
}

func newJob(campaignID uint) *SendJob {
	return &SendJob{
		CampaignID: campaignID,
		RequestID:  uuid.NewString(),
		EnqueuedAt: time.Now().UTC(),
	}
}

// RabbitMQ publishes and consumes send jobs on one durable queue
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	metrics *metrics.Metrics
	mu      sync.Mutex
}

// DialRabbitMQ connects and declares the job queue
func DialRabbitMQ(cfg config.QueueConfig, m *metrics.Metrics) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		cfg.Name, // name
		true,     // durable
		false,    // delete when unused
		false,    // exclusive
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if m == nil {
		m = metrics.NewNopMetrics()
	}
	logrus.WithField("queue", cfg.Name).Info("RabbitMQ connected")
	return &RabbitMQ{conn: conn, channel: channel, queue: cfg.Name, metrics: m}, nil
}

func (q *RabbitMQ) PublishSend(ctx context.Context, campaignID uint) (*SendJob, error) {
	job := newJob(campaignID)
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	q.mu.Lock()
	err = q.channel.PublishWithContext(ctx,
		"",      // exchange
		q.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    job.RequestID,
			Timestamp:    job.EnqueuedAt,
			Body:         body,
		},
	)
	q.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to publish job: %w", err)
	}

	q.metrics.QueuedSends.Inc()
	logrus.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"request_id":  job.RequestID,
	}).Info("Campaign send queued")
	return job, nil
}

// Consume handles jobs one at a time until ctx is cancelled or the channel
// closes.
func (q *RabbitMQ) Consume(ctx context.Context, handle Handler) error {
	if err := q.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := q.channel.Consume(
		q.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logrus.WithField("queue", q.queue).Info("Send worker started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Send worker stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("RabbitMQ delivery channel closed")
			}
			handleDelivery(ctx, d, handle)
		}
	}
}

// handleDelivery acks finished jobs and jobs that can never succeed. A job
// that failed for another reason is requeued once.
func handleDelivery(ctx context.Context, d amqp.Delivery, handle Handler) {
	var job SendJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.CampaignID == 0 {
		logrus.Warnf("Discarding invalid send job: %s", d.Body)
		d.Reject(false)
		return
	}

	log := logrus.WithFields(logrus.Fields{
		"campaign_id": job.CampaignID,
		"request_id":  job.RequestID,
	})

	err := handle(ctx, job)
	switch {
	case err == nil:
		d.Ack(false)
	case apperrors.IsPermanent(err):
		log.Warnf("Send job dropped: %v", err)
		d.Ack(false)
	case d.Redelivered:
		log.Errorf("Send job failed again, giving up: %v", err)
		d.Nack(false, false)
	default:
		log.Errorf("Send job failed, requeueing: %v", err)
		d.Nack(false, true)
	}
}

func (q *RabbitMQ) Close() error {
	if q.channel != nil {
		if err := q.channel.Close(); err != nil {
			logrus.Warnf("Error closing channel: %v", err)
		}
	}
	if q.conn != nil {
		if err := q.conn.Close(); err != nil {
			logrus.Warnf("Error closing connection: %v", err)
		}
	}
	return nil
}

// Local runs send jobs on background goroutines of this process. It stands
// in for RabbitMQ when no broker is configured.
type Local struct {
	handle  Handler
	ctx     context.Context
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewLocal runs jobs with handle. Jobs see ctx with its cancellation removed
// so a finishing request does not abort its send.
func NewLocal(ctx context.Context, handle Handler, m *metrics.Metrics) *Local {
	if m == nil {
		m = metrics.NewNopMetrics()
	}
	return &Local{handle: handle, ctx: context.WithoutCancel(ctx), metrics: m}
}

func (l *Local) PublishSend(_ context.Context, campaignID uint) (*SendJob, error) {
	job := newJob(campaignID)
	l.metrics.QueuedSends.Inc()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.handle(l.ctx, *job); err != nil {
			logrus.WithFields(logrus.Fields{
				"campaign_id": job.CampaignID,
				"request_id":  job.RequestID,
			}).Errorf("Background send failed: %v", err)
		}
	}()
	return job, nil
}

// Close waits for running jobs to finish
func (l *Local) Close() error {
	l.wg.Wait()
	return nil
}
