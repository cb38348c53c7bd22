// Package domain contains core concepts of the message routing system.
// This file defines Message records and related rules.
// Messages are immutable once created, apart from the read flag.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DayLayout is the partition format of the storage tree (yyyy-MM-dd).
const DayLayout = "2006-01-02"

// Direction of a message relative to the identity owning the copy.
type Direction int

const (
	Inbound Direction = iota + 1
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unknown"
	}
}

func (d Direction) Valid() bool {
	return d == Inbound || d == Outbound
}

// Message represents a routed message as it is persisted on disk.
type Message struct {
	ID            uuid.UUID      `json:"id"`
	Content       string         `json:"content"`
	SenderID      string         `json:"senderId"`
	SenderType    Kind           `json:"senderType"`
	RecipientID   string         `json:"recipientId"`
	RecipientType Kind           `json:"recipientType"`
	Timestamp     time.Time      `json:"timestamp"`
	IsRead        bool           `json:"isRead"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a fresh unread message stamped with the current UTC time.
func NewMessage(sender, recipient Identity, content string, metadata map[string]any) Message {
	return Message{
		ID:            uuid.New(),
		Content:       content,
		SenderID:      sender.Name,
		SenderType:    sender.Kind,
		RecipientID:   recipient.Name,
		RecipientType: recipient.Kind,
		Timestamp:     time.Now().UTC(),
		Metadata:      metadata,
	}
}

func (m Message) Sender() Identity {
	return Identity{Kind: m.SenderType, Name: m.SenderID}
}

func (m Message) Recipient() Identity {
	return Identity{Kind: m.RecipientType, Name: m.RecipientID}
}

// Day returns the UTC calendar day partition of the message.
func (m Message) Day() string {
	return m.Timestamp.UTC().Format(DayLayout)
}

// Reply is what a service processor hands back for a message.
type Reply struct {
	Content  string
	Metadata map[string]any
}

// ProcessorOutcome separates "no processor registered" (Handled == false)
// from "handled, nothing to send back" (Handled == true, Reply == nil).
type ProcessorOutcome struct {
	Handled bool
	Reply   *Reply
}
