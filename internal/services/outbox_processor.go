package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"savetrack/internal/amqp"
	"savetrack/internal/core"
	"savetrack/internal/log"
	"savetrack/internal/store"
)

// EventPublisher delivers one committed event downstream. id is stable across
// retries so consumers can deduplicate.
type EventPublisher interface {
	Publish(ctx context.Context, id int64, e core.Event) error
}

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	// PollInterval is how often to check for pending events (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of events to publish per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum publish attempts before marking as failed (default: 3)
	MaxRetries int

	// CleanupInterval is how often to clean up published events (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old published events must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

// DefaultOutboxProcessorConfig returns sensible defaults
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// OutboxProcessor relays events committed alongside ledger and goal changes
type OutboxProcessor struct {
	outbox    store.OutboxReader
	publisher EventPublisher
	config    OutboxProcessorConfig
	logger    *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewOutboxProcessor(outbox store.OutboxReader, publisher EventPublisher, config OutboxProcessorConfig, logger *log.Logger) *OutboxProcessor {
	return &OutboxProcessor{
		outbox:    outbox,
		publisher: publisher,
		config:    config,
		logger:    logger.WithComponent(log.ComponentOutbox),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("outbox processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Outbox processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Outbox processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *OutboxProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *OutboxProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Drain immediately on startup
	p.processBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupPublished(ctx)
		}
	}
}

// ProcessOnce publishes a single batch and reports how many events were delivered.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	entries, err := p.outbox.PendingEvents(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending events: %w", err)
	}

	published := 0
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if err := p.publisher.Publish(ctx, entry.ID, entry.Event); err != nil {
			if errors.Is(err, amqp.ErrCircuitOpen) {
				// The broker is down, not the event. Keep the rest for the next poll.
				p.logger.WarnContext(ctx, "Broker unavailable, deferring outbox batch",
					log.FieldEventID, entry.ID,
					"remaining", len(entries)-i)
				return published, nil
			}
			p.handleFailure(ctx, entry, err)
			continue
		}
		p.handleSuccess(ctx, entry)
		published++
	}
	return published, nil
}

func (p *OutboxProcessor) processBatch(ctx context.Context) {
	n, err := p.ProcessOnce(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to process outbox batch", log.FieldError, err)
		return
	}
	if n > 0 {
		p.logger.DebugContext(ctx, "Published outbox batch", "count", n)
	}
}

func (p *OutboxProcessor) handleSuccess(ctx context.Context, entry store.OutboxEntry) {
	if err := p.outbox.MarkEventPublished(ctx, entry.ID); err != nil {
		p.logger.ErrorContext(ctx, "Failed to mark event published",
			log.FieldEventID, entry.ID, log.FieldError, err)
	}
}

// handleFailure counts the attempt and gives up on the event after MaxRetries.
func (p *OutboxProcessor) handleFailure(ctx context.Context, entry store.OutboxEntry, publishErr error) {
	attempt := entry.Attempts + 1
	p.logger.WarnContext(ctx, "Event publish failed",
		log.FieldEventID, entry.ID,
		log.FieldEventType, string(entry.Event.Type),
		"attempt", attempt,
		log.FieldError, publishErr)

	if attempt >= p.config.MaxRetries {
		if err := p.outbox.MarkEventFailed(ctx, entry.ID, publishErr.Error()); err != nil {
			p.logger.ErrorContext(ctx, "Failed to mark event as failed",
				log.FieldEventID, entry.ID, log.FieldError, err)
		}
		p.logger.ErrorContext(ctx, "Event failed permanently after max retries",
			log.FieldEventID, entry.ID,
			"attempts", attempt)
		return
	}

	if err := p.outbox.MarkEventAttempt(ctx, entry.ID, publishErr.Error()); err != nil {
		p.logger.ErrorContext(ctx, "Failed to record publish attempt",
			log.FieldEventID, entry.ID, log.FieldError, err)
	}
}

func (p *OutboxProcessor) cleanupPublished(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupAge)
	n, err := p.outbox.CleanupPublishedEvents(ctx, cutoff)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to clean up published events", log.FieldError, err)
		return
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "Cleaned up published events", "count", n)
	}
}
