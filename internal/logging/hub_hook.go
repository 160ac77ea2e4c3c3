package logging

import (
	"context"

	log "github.com/sirupsen/logrus"

	"orfree-go/internal/events"
)

// TopicLogEntry is published for every warning-or-worse log line so the
// management event feed can surface problems live.
const TopicLogEntry = "log.entry"

// HubHook forwards log entries to the event hub.
type HubHook struct {
	publisher events.Publisher
}

func NewHubHook(publisher events.Publisher) *HubHook {
	return &HubHook{publisher: publisher}
}

func (h *HubHook) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel, log.WarnLevel}
}

func (h *HubHook) Fire(entry *log.Entry) error {
	payload := map[string]any{
		"level":   entry.Level.String(),
		"message": entry.Message,
		"time":    entry.Time,
	}
	if len(entry.Data) > 0 {
		fields := make(map[string]any, len(entry.Data))
		for k, v := range entry.Data {
			fields[k] = v
		}
		payload["fields"] = fields
	}
	h.publisher.Publish(context.Background(), TopicLogEntry, payload, nil)
	return nil
}
