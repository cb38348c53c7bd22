package api

import (
	"courier/domain"
	"time"
)

type Empty struct{}

type SendToUserRequest struct {
	Recipient string         `json:"recipient"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type SendToServiceRequest struct {
	Service  string         `json:"service"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type SendToGroupRequest struct {
	Group    string         `json:"group"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type SendResponse struct {
	Message domain.Message `json:"message"`
}

type SendToServiceResponse struct {
	Message domain.Message  `json:"message"`
	Reply   *domain.Message `json:"reply,omitempty"`
	Handled bool            `json:"handled"`
}

type SendToGroupResponse struct {
	Message    domain.Message `json:"message"`
	Recipients int            `json:"recipients"`
}

type GroupRequest struct {
	Group string `json:"group"`
}

type LoadMessagesRequest struct {
	Inbound bool       `json:"inbound"`
	From    *time.Time `json:"from,omitempty"`
}

type MessagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

type MarkAsReadRequest struct {
	MessageID string `json:"messageId"`
}

type SearchMessagesRequest struct {
	Text  string `json:"text"`
	Limit int    `json:"limit,omitempty"`
}

type CredentialRequest struct {
	Kind   domain.Kind `json:"kind"`
	Name   string      `json:"name"`
	Secret string      `json:"secret"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ConnectRequest struct{}

// Event is one push on the Connect stream. Group is set for group messages.
type Event struct {
	Type    string         `json:"type"`
	Group   string         `json:"group,omitempty"`
	Message domain.Message `json:"message"`
}

// ToEvent converts a routed event into its wire form.
func ToEvent(e domain.Event) Event {
	switch evt := e.(type) {
	case domain.GroupMessageReceived:
		return Event{Type: evt.Name(), Group: evt.Group, Message: evt.Message}
	case domain.MessageReceived:
		return Event{Type: evt.Name(), Message: evt.Message}
	default:
		return Event{Type: e.Name()}
	}
}

// Domain converts the wire event back into a routed event.
func (e Event) Domain() domain.Event {
	if e.Group != "" {
		return domain.GroupMessageReceived{Group: e.Group, Message: e.Message}
	}
	return domain.MessageReceived{Message: e.Message}
}
