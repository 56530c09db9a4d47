package websocket

import (
	"fmt"

	"github.com/google/uuid"
)

type SocketMessageType int

const (
	Update SocketMessageType = iota
	Command
	Response
	ErrorResponse
	Welcome
)

// SocketMessage is the envelope for everything sent over the activity
// socket. The ID of a command is echoed back in the reply so the client
// can pair the two. Origin and Target are never serialised: they identify
// the client a command came from and the client a reply is destined for.
type SocketMessage struct {
	Title  string            `json:"title"`
	Body   map[string]any    `json:"arguments"`
	ID     int               `json:"id"`
	Type   SocketMessageType `json:"type"`
	Origin *uuid.UUID        `json:"-"`
	Target *uuid.UUID        `json:"-"`
}

// ValidateArguments checks that each of the required keys is present in the
// body of the message with the expected primitive type ("number" or "string").
func (message *SocketMessage) ValidateArguments(required map[string]string) error {
	const errFmt = "failed to validate key '%v' with type '%v' - %#v"

	for key, expected := range required {
		v, ok := message.Body[key]
		if !ok {
			return fmt.Errorf("failed to validate key '%v' - key is missing", key)
		}

		switch expected {
		case "number", "int":
			if _, ok := v.(float64); !ok {
				return fmt.Errorf(errFmt, key, expected, v)
			}
		case "string":
			if s, ok := v.(string); !ok || s == "" {
				return fmt.Errorf(errFmt, key, expected, v)
			}
		default:
			return fmt.Errorf(errFmt, key, expected, "unknown type")
		}
	}

	return nil
}

// FormReply returns a new message addressed to the origin of this message,
// carrying the same ID.
func (message *SocketMessage) FormReply(replyTitle string, replyBody map[string]any, replyType SocketMessageType) *SocketMessage {
	if replyBody == nil {
		replyBody = make(map[string]any)
	}
	replyBody["command"] = message.Body

	return &SocketMessage{
		Title:  replyTitle,
		Body:   replyBody,
		Type:   replyType,
		ID:     message.ID,
		Target: message.Origin,
	}
}
