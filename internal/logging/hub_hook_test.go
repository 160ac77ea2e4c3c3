package logging

import (
	"context"
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"orfree-go/internal/events"
)

func TestHubHookForwardsWarnings(t *testing.T) {
	hub := events.NewHub()
	var got []events.Event
	hub.Subscribe(TopicLogEntry, func(_ context.Context, ev events.Event) {
		got = append(got, ev)
	})

	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(NewHubHook(hub))

	logger.WithField("key", "sk-or-...abc123").Warn("key rejected")
	logger.Info("routine message")

	require.Len(t, got, 1)
	payload, ok := got[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "warning", payload["level"])
	require.Equal(t, "key rejected", payload["message"])
}
