// -----------------------------------------------------------------------
// Log Consumer - arbor log batches republished on the event channel
// -----------------------------------------------------------------------

package logs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/attesto/internal/interfaces"
)

// Entry is one log line as published on the event channel.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	JobID     string `json:"job_id,omitempty"`
}

// Consumer drains arbor's context channel and republishes log batches as
// EventLogBatch events so connected clients can stream job logs live.
type Consumer struct {
	events        interfaces.EventService
	logger        arbor.ILogger
	channel       chan []arbormodels.LogEvent
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	minEventLevel arbor.LogLevel
}

func NewConsumer(events interfaces.EventService, logger arbor.ILogger, minEventLevel string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		events:        events,
		logger:        logger,
		channel:       make(chan []arbormodels.LogEvent, 10),
		ctx:           ctx,
		cancel:        cancel,
		minEventLevel: parseLogLevel(minEventLevel),
	}
}

// Channel is handed to arbor via SetChannel so derived loggers batch here.
func (c *Consumer) Channel() chan []arbormodels.LogEvent {
	return c.channel
}

func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.consume()
}

func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
}

func (c *Consumer) consume() {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Log consumer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-c.channel:
			if !ok {
				return
			}
			c.publishBatch(batch)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) publishBatch(batch []arbormodels.LogEvent) {
	entries := make([]Entry, 0, len(batch))
	for _, event := range batch {
		// Websocket delivery logs would feed back into the channel they
		// report on; drop them before they loop.
		if strings.Contains(event.Message, "WebSocket client") {
			continue
		}
		if !c.shouldPublish(event.Level) {
			continue
		}
		entries = append(entries, Entry{
			Timestamp: event.Timestamp.Format(time.RFC3339),
			Level:     shortLevel(event.Level.String()),
			Message:   formatMessage(event),
			JobID:     event.CorrelationID,
		})
	}
	if len(entries) == 0 {
		return
	}

	_ = c.events.Publish(c.ctx, interfaces.Event{
		Type:    interfaces.EventLogBatch,
		Payload: entries,
	})
}

func (c *Consumer) shouldPublish(level log.Level) bool {
	return arborlevels.FromLogLevel(level) >= c.minEventLevel
}

// formatMessage appends structured fields to the message text the way the
// console writer renders them.
func formatMessage(event arbormodels.LogEvent) string {
	if len(event.Fields) == 0 {
		return event.Message
	}
	var b strings.Builder
	b.WriteString(event.Message)
	for key, value := range event.Fields {
		fmt.Fprintf(&b, " %s=%v", key, value)
	}
	return b.String()
}

func parseLogLevel(levelStr string) arbor.LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return arbor.DebugLevel
	case "info":
		return arbor.InfoLevel
	case "warn", "warning":
		return arbor.WarnLevel
	case "error":
		return arbor.ErrorLevel
	default:
		return arbor.InfoLevel
	}
}

func shortLevel(level string) string {
	switch strings.ToUpper(level) {
	case "INFO":
		return "INF"
	case "WARN", "WARNING":
		return "WRN"
	case "ERROR":
		return "ERR"
	case "DEBUG":
		return "DBG"
	default:
		if len(level) == 3 {
			return strings.ToUpper(level)
		}
		return "INF"
	}
}
