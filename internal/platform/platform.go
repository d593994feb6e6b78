// Package platform defines the chat-platform collaborator surface the bot
// depends on: sending and mutating rich messages, capability (role)
// bookkeeping on members, and a dispatcher for inbound events.
package platform

import (
	"context"
	"errors"
	"time"
)

// ErrMessageGone is returned by DeleteMessage when the target message no
// longer exists. Callers performing best-effort cleanup treat it as success.
var ErrMessageGone = errors.New("message no longer exists")

// EventType identifies the kind of inbound platform event.
type EventType string

const (
	// EventMessage is a plain message posted in a channel.
	EventMessage EventType = "message"

	// EventButtonClick is the activation of a decision control. The token
	// embedded in the control arrives in Event.CustomID.
	EventButtonClick EventType = "button_click"
)

// Event is a normalized inbound platform event.
type Event struct {
	ID        string
	Type      EventType
	ChannelID string

	// MessageID is the message the event concerns: the posted message for
	// EventMessage, the host message for EventButtonClick.
	MessageID string

	ActorID    string
	ActorName  string
	ActorIsBot bool

	// Content is the message text for EventMessage.
	Content string

	// CustomID is the identity token of the clicked control for
	// EventButtonClick.
	CustomID string

	Timestamp time.Time
}

// ButtonStyle selects the visual treatment of a decision control.
type ButtonStyle string

const (
	ButtonSuccess ButtonStyle = "success"
	ButtonDanger  ButtonStyle = "danger"
	ButtonDefault ButtonStyle = "default"
)

// Button is a decision control attached to a message.
type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
}

// EmbedField is a labeled field in a rich embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is the rich content of a message.
type Embed struct {
	Title       string
	Description string
	Color       string // hex, e.g. "#FFA500"
	Fields      []EmbedField
	Image       string
	Thumbnail   string
	Timestamp   time.Time
}

// Message is outbound content: plain text, an embed, or both, with optional
// decision controls and a file attachment.
type Message struct {
	Text           string
	Embed          *Embed
	Buttons        []Button
	AttachmentPath string
}

// MessageRef identifies a previously sent message.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// IsZero reports whether the reference points at nothing.
func (r MessageRef) IsZero() bool {
	return r.MessageID == ""
}

// Gateway is the outbound half of the chat platform collaborator.
type Gateway interface {
	// SendMessage posts msg to the channel and returns a reference to the
	// created message.
	SendMessage(ctx context.Context, channelID string, msg Message) (MessageRef, error)

	// EditMessage replaces the content and controls of an existing message.
	EditMessage(ctx context.Context, ref MessageRef, msg Message) error

	// DeleteMessage removes a message. Returns ErrMessageGone when the
	// message was already deleted.
	DeleteMessage(ctx context.Context, ref MessageRef) error

	// ReplyEphemeral delivers text privately to the actor of ev.
	ReplyEphemeral(ctx context.Context, ev Event, text string) error

	// HasCapability reports whether the member holds the named capability.
	HasCapability(ctx context.Context, memberID, capability string) (bool, error)

	// GrantCapability grants the named capability to the member.
	// Granting an already-held capability is a no-op.
	GrantCapability(ctx context.Context, memberID, capability string) error

	// RevokeCapability removes the named capability from the member.
	// Revoking an absent capability is a no-op.
	RevokeCapability(ctx context.Context, memberID, capability string) error
}
