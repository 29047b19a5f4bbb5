package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"chat-relay-go/internal/config"
	"chat-relay-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokerList(" a:9092, ,b:9092 "))
	assert.Nil(t, brokerList(""))
}

func TestNewMessage(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := newMessage(model.ConversationEvent{ConversationID: "abc", Turns: 2, Preview: "hi", Chunks: 3, UpdatedAt: at})
	require.NoError(t, err)

	assert.Equal(t, "abc", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "abc", decoded["conversationId"])
	assert.Equal(t, float64(2), decoded["turns"])
	assert.Equal(t, "hi", decoded["preview"])
}

func TestNewPublisher(t *testing.T) {
	p := NewPublisher(config.KafkaConfig{Brokers: "localhost:9092", Topic: "conversation-events"})
	assert.Equal(t, "conversation-events", p.writer.Topic)
	assert.NoError(t, p.Close())
}
