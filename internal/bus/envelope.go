package bus

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// PushEnvelope is the wire form used when a broker pushes messages over
// HTTP instead of a consumer group pull. The payload travels base64-encoded
// inside a nested message object.
type PushEnvelope struct {
	Message struct {
		Data        string            `json:"data"`
		MessageID   string            `json:"messageId"`
		PublishTime time.Time         `json:"publishTime"`
		Attributes  map[string]string `json:"attributes,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription,omitempty"`
}

// EncodePush wraps a payload in the push envelope.
func EncodePush(msg *Message) ([]byte, error) {
	var env PushEnvelope
	env.Message.Data = base64.StdEncoding.EncodeToString(msg.Payload)
	env.Message.MessageID = msg.ID
	env.Message.PublishTime = msg.PublishTime
	if msg.Key != "" {
		env.Message.Attributes = map[string]string{"key": msg.Key}
	}
	return json.Marshal(env)
}

// DecodePush unwraps a push envelope into a Message.
func DecodePush(body []byte, topic string) (*Message, error) {
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode push envelope: %w", err)
	}
	if env.Message.Data == "" && env.Message.MessageID == "" {
		return nil, fmt.Errorf("push envelope missing message")
	}
	payload, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return nil, fmt.Errorf("decode push payload: %w", err)
	}
	return &Message{
		ID:          env.Message.MessageID,
		Topic:       topic,
		Key:         env.Message.Attributes["key"],
		Payload:     payload,
		PublishTime: env.Message.PublishTime,
	}, nil
}
