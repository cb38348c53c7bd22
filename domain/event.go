package domain

// Event is pushed to a connected session.
type Event interface {
	Name() string
}

// MessageReceived is pushed for messages addressed directly to the session owner.
type MessageReceived struct {
	Message Message
}

func (MessageReceived) Name() string { return "messageReceived" }

// GroupMessageReceived is pushed for group fan-out copies.
type GroupMessageReceived struct {
	Group   string
	Message Message
}

func (GroupMessageReceived) Name() string { return "groupMessageReceived" }

// EventFor wraps a stored inbound copy into the event a live session expects.
func EventFor(m Message) Event {
	if m.RecipientType == KindGroup {
		return GroupMessageReceived{Group: m.RecipientID, Message: m}
	}
	return MessageReceived{Message: m}
}
