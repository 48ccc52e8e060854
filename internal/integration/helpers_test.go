package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/flexigpt/botdialogs-go/spec"
)

func message(conv, text string) spec.Message {
	return spec.Message{
		Type: spec.MessageTypeMessage,
		Text: text,
		Address: spec.Address{
			ChannelID:      "test",
			ConversationID: conv,
			UserID:         "u1",
		},
	}
}

type recordingConnector struct {
	mu   sync.Mutex
	sent []spec.Message
}

func (c *recordingConnector) Send(ctx context.Context, msgs []spec.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msgs...)
	return nil
}

func (c *recordingConnector) lastText(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].Type == spec.MessageTypeMessage {
			return c.sent[i].Text
		}
	}
	t.Fatal("no text messages sent")
	return ""
}
