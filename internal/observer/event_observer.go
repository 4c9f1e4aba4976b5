package observer

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// PipelineEvent describes one finished stage of an extraction request.
type PipelineEvent struct {
	EventType    EventType              `json:"event_type"`
	Timestamp    time.Time              `json:"timestamp"`
	Reference    string                 `json:"reference"`
	Duration     time.Duration          `json:"duration"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of pipeline event
type EventType string

const (
	ImageLoaded         EventType = "image_loaded"
	ImageLoadFailed     EventType = "image_load_failed"
	ExtractionCompleted EventType = "extraction_completed"
	ExtractionFailed    EventType = "extraction_failed"
	ReplyParsed         EventType = "reply_parsed"
	ReplyMalformed      EventType = "reply_malformed"
)

// Failed reports whether the event marks a failed stage.
func (t EventType) Failed() bool {
	switch t {
	case ImageLoadFailed, ExtractionFailed, ReplyMalformed:
		return true
	}
	return false
}

// Stage returns the pipeline stage the event belongs to.
func (t EventType) Stage() string {
	switch t {
	case ImageLoaded, ImageLoadFailed:
		return "load"
	case ExtractionCompleted, ExtractionFailed:
		return "extract"
	case ReplyParsed, ReplyMalformed:
		return "parse"
	}
	return "unknown"
}

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event PipelineEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event PipelineEvent)
}

// LoggingObserver logs pipeline events
type LoggingObserver struct {
	logger *logrus.Logger
}

func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

func (o *LoggingObserver) OnEvent(ctx context.Context, event PipelineEvent) {
	fields := logrus.Fields{
		"event_type":  event.EventType,
		"stage":       event.EventType.Stage(),
		"reference":   event.Reference,
		"duration_ms": event.Duration.Milliseconds(),
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case ImageLoaded:
		entry.Debug("Image loaded")
	case ExtractionCompleted:
		entry.Info("Extraction call completed")
	case ReplyParsed:
		entry.Info("Extracted JSON from reply")
	case ImageLoadFailed:
		entry.Error("Failed to fetch or encode image")
	case ExtractionFailed:
		entry.Error("Extraction call failed")
	case ReplyMalformed:
		entry.Error("Failed to extract JSON from reply")
	default:
		entry.Info("Pipeline event occurred")
	}
}

func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

var (
	stageEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_pipeline_events_total",
			Help: "Pipeline stage outcomes by stage and result.",
		},
		[]string{"stage", "result"},
	)
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
)

// MetricsObserver exports stage outcomes to Prometheus and keeps in-process
// counters for the health endpoint.
type MetricsObserver struct {
	mu        sync.RWMutex
	succeeded map[string]int64
	failed    map[string]int64
}

func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{
		succeeded: make(map[string]int64),
		failed:    make(map[string]int64),
	}
}

func (o *MetricsObserver) OnEvent(ctx context.Context, event PipelineEvent) {
	stage := event.EventType.Stage()
	result := "success"
	if event.EventType.Failed() {
		result = "failure"
	}
	stageEventsTotal.WithLabelValues(stage, result).Inc()
	stageDuration.WithLabelValues(stage).Observe(event.Duration.Seconds())

	o.mu.Lock()
	defer o.mu.Unlock()
	if event.EventType.Failed() {
		o.failed[stage]++
	} else {
		o.succeeded[stage]++
	}
}

func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns per-stage success and failure counts.
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[string]interface{}, len(o.succeeded)+len(o.failed))
	for stage, n := range o.succeeded {
		out[stage+"_succeeded"] = n
	}
	for stage, n := range o.failed {
		out[stage+"_failed"] = n
	}
	return out
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers event to every observer synchronously, in
// subscription order. A panicking observer does not stop the others.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event PipelineEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, obs := range observers {
		notify(ctx, obs, event)
	}
}

func notify(ctx context.Context, obs Observer, event PipelineEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
