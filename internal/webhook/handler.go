// Package webhook ingests Lark event callbacks over HTTP, verifies
// them, and normalizes them into platform events for the command router.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nia-ops/warden/internal/platform"
)

const (
	eventTypeMessage    = "im.message.receive_v1"
	eventTypeCardAction = "card.action.trigger"
)

// EventSink consumes normalized platform events
type EventSink interface {
	HandleEvent(ctx context.Context, ev platform.Event)
}

// Handler handles webhook requests
type Handler struct {
	verifier *Verifier
	sink     EventSink
	botID    string
	logger   *zap.Logger
}

// NewHandler creates a new webhook handler. botID is the bot's own
// sender ID, used to flag its messages so they never trigger commands.
func NewHandler(verifier *Verifier, sink EventSink, botID string, logger *zap.Logger) *Handler {
	return &Handler{
		verifier: verifier,
		sink:     sink,
		botID:    botID,
		logger:   logger,
	}
}

// callbackEnvelope is the outer shape of a Lark event callback
type callbackEnvelope struct {
	Schema  string          `json:"schema"`
	Header  EventHeader     `json:"header"`
	Event   json.RawMessage `json:"event"`
	Encrypt string          `json:"encrypt"`
}

// EventHeader contains event metadata
type EventHeader struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Token      string `json:"token"`
	AppID      string `json:"app_id"`
	TenantKey  string `json:"tenant_key"`
}

// messageEvent is the payload of im.message.receive_v1
type messageEvent struct {
	Sender struct {
		SenderID struct {
			OpenID string `json:"open_id"`
		} `json:"sender_id"`
		SenderType string `json:"sender_type"`
	} `json:"sender"`
	Message struct {
		MessageID   string `json:"message_id"`
		ChatID      string `json:"chat_id"`
		MessageType string `json:"message_type"`
		Content     string `json:"content"`
		CreateTime  string `json:"create_time"`
	} `json:"message"`
}

// cardActionEvent is the payload of card.action.trigger
type cardActionEvent struct {
	Operator struct {
		OpenID string `json:"open_id"`
	} `json:"operator"`
	Action struct {
		Tag   string `json:"tag"`
		Value struct {
			Token string `json:"token"`
		} `json:"value"`
	} `json:"action"`
	Context struct {
		OpenMessageID string `json:"open_message_id"`
		OpenChatID    string `json:"open_chat_id"`
	} `json:"context"`
}

// Handle processes incoming webhook requests
func (h *Handler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	timestamp := c.GetHeader("X-Lark-Request-Timestamp")
	nonce := c.GetHeader("X-Lark-Request-Nonce")
	signature := c.GetHeader("X-Lark-Signature")

	// Challenge requests arrive during endpoint registration
	var challengeCheck struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &challengeCheck); err == nil && challengeCheck.Type == "url_verification" {
		challenge, err := h.verifier.VerifyChallenge(body)
		if err != nil {
			h.logger.Error("Challenge verification failed", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Challenge verification failed"})
			return
		}

		h.logger.Info("Challenge verified successfully")
		c.JSON(http.StatusOK, gin.H{"challenge": challenge})
		return
	}

	if !h.verifier.VerifySignature(timestamp, nonce, signature, string(body)) {
		h.logger.Warn("Invalid webhook signature",
			zap.String("timestamp", timestamp),
			zap.String("nonce", nonce))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var envelope callbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.logger.Error("Failed to parse event", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse event"})
		return
	}

	if envelope.Encrypt != "" {
		plaintext, err := h.verifier.DecryptData(envelope.Encrypt)
		if err != nil {
			h.logger.Error("Failed to decrypt event", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to decrypt event"})
			return
		}
		if err := json.Unmarshal([]byte(plaintext), &envelope); err != nil {
			h.logger.Error("Failed to parse decrypted event", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse event"})
			return
		}
	}

	if !h.verifier.ValidateEventType(envelope.Header.EventType) {
		c.JSON(http.StatusOK, gin.H{"message": "Event type not supported"})
		return
	}

	ev, ok := h.normalize(&envelope)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"message": "Event ignored"})
		return
	}

	h.logger.Info("Received event",
		zap.String("event_id", envelope.Header.EventID),
		zap.String("event_type", envelope.Header.EventType))

	// Respond to Lark immediately; the event is handled off-request.
	go h.deliver(ev)

	c.JSON(http.StatusOK, gin.H{"message": "Event received"})
}

func (h *Handler) deliver(ev platform.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic in event processing", zap.Any("panic", r))
		}
	}()
	h.sink.HandleEvent(context.Background(), ev)
}

// normalize converts a verified callback into a platform event. Events
// the bot does not act on come back with ok false.
func (h *Handler) normalize(envelope *callbackEnvelope) (platform.Event, bool) {
	switch envelope.Header.EventType {
	case eventTypeMessage:
		var me messageEvent
		if err := json.Unmarshal(envelope.Event, &me); err != nil {
			h.logger.Error("Failed to parse message event", zap.Error(err))
			return platform.Event{}, false
		}
		if me.Message.MessageType != "text" {
			return platform.Event{}, false
		}

		var content struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(me.Message.Content), &content); err != nil {
			h.logger.Error("Failed to parse message content", zap.Error(err))
			return platform.Event{}, false
		}

		actorID := me.Sender.SenderID.OpenID
		return platform.Event{
			ID:         envelope.Header.EventID,
			Type:       platform.EventMessage,
			ChannelID:  me.Message.ChatID,
			MessageID:  me.Message.MessageID,
			ActorID:    actorID,
			ActorName:  actorID,
			ActorIsBot: me.Sender.SenderType != "user" || actorID == h.botID,
			Content:    content.Text,
			Timestamp:  parseMillis(me.Message.CreateTime),
		}, true

	case eventTypeCardAction:
		var ce cardActionEvent
		if err := json.Unmarshal(envelope.Event, &ce); err != nil {
			h.logger.Error("Failed to parse card action event", zap.Error(err))
			return platform.Event{}, false
		}

		return platform.Event{
			ID:        envelope.Header.EventID,
			Type:      platform.EventButtonClick,
			ChannelID: ce.Context.OpenChatID,
			MessageID: ce.Context.OpenMessageID,
			ActorID:   ce.Operator.OpenID,
			ActorName: ce.Operator.OpenID,
			CustomID:  ce.Action.Value.Token,
			Timestamp: parseMillis(envelope.Header.CreateTime),
		}, true
	}

	return platform.Event{}, false
}

// parseMillis converts a millisecond epoch string, falling back to now
func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
