package ingest

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/OptimCE/crm-backend-sub001/domain"
)

// Message is the JSON payload published by metering gateways.
//
//	{"owner": {"kind": "meter", "ean": "5414..."},
//	 "samples": [{"timestamp": "2024-05-01T10:00:00Z", "gross": "1.25"}]}
//
// The community always comes from the topic (communities/<id>/consumption),
// which is what broker ACLs bind a gateway to. A payload community must
// match it.
type Message struct {
	Community string                     `json:"community,omitempty"`
	Owner     domain.ConsumptionOwner    `json:"owner"`
	Samples   []domain.ConsumptionSample `json:"samples"`
}

// Decode parses and validates one broker message.
func Decode(topic string, payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, domain.WrapError(domain.ErrCodeInvalid, domain.ErrInvalidPayload.Message, err)
	}
	community := communityFromTopic(topic)
	if community == "" {
		return Message{}, domain.Invalidf("no community in topic %q", topic)
	}
	if msg.Community != "" && msg.Community != community {
		return Message{}, domain.Invalidf("payload community %q does not match topic %q", msg.Community, topic)
	}
	msg.Community = community
	if err := msg.Owner.Validate(); err != nil {
		return Message{}, err
	}
	if len(msg.Samples) == 0 {
		return Message{}, domain.Invalidf("message has no samples")
	}
	return msg, nil
}

func communityFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "communities" {
		return ""
	}
	return parts[1]
}
