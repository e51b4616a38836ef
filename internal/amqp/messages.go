package amqp

import (
	"encoding/json"
	"time"
)

// Refresh reasons.
const (
	ReasonFillUpSubmitted = "fillup_submitted"
	ReasonManual          = "manual"
)

// RefreshMessage tells every dashboard instance that the history changed.
// It carries no data; receivers refetch from the history webhook.
type RefreshMessage struct {
	Origin    string    `json:"origin"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRefreshMessage(origin, reason string) *RefreshMessage {
	return &RefreshMessage{
		Origin:    origin,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

func (m *RefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RefreshMessageFromJSON(data []byte) (*RefreshMessage, error) {
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
