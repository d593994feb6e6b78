package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/nia-ops/warden/internal/platform"
)

// Lark API code for a message that no longer exists
const codeMessageNotFound = 230011

// CapabilityStore persists which capabilities each member holds. Lark
// has no group-level role concept, so grants live in the bot's own
// database.
type CapabilityStore interface {
	Has(memberID, capability string) (bool, error)
	Grant(memberID, capability string) error
	Revoke(memberID, capability string) error
}

// Gateway implements platform.Gateway on top of the Lark messaging APIs
type Gateway struct {
	client *Client
	caps   CapabilityStore
	logger *zap.Logger
}

// NewGateway creates a Lark-backed platform gateway
func NewGateway(client *Client, caps CapabilityStore, logger *zap.Logger) *Gateway {
	return &Gateway{
		client: client,
		caps:   caps,
		logger: logger,
	}
}

// SendMessage posts msg to a chat as an interactive card, or plain text
// when the message carries no rich content.
func (g *Gateway) SendMessage(ctx context.Context, channelID string, msg platform.Message) (platform.MessageRef, error) {
	msgType, content, err := g.renderContent(ctx, msg)
	if err != nil {
		return platform.MessageRef{}, err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(channelID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := g.client.client.Im.Message.Create(ctx, req)
	if err != nil {
		g.logger.Error("Failed to send message",
			zap.String("chat_id", channelID),
			zap.Error(err))
		return platform.MessageRef{}, fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		g.logger.Error("API returned failure",
			zap.String("chat_id", channelID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return platform.MessageRef{}, fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	return platform.MessageRef{ChannelID: channelID, MessageID: messageID}, nil
}

// EditMessage replaces the content of an existing card message
func (g *Gateway) EditMessage(ctx context.Context, ref platform.MessageRef, msg platform.Message) error {
	_, content, err := g.renderContent(ctx, msg)
	if err != nil {
		return err
	}

	req := larkim.NewPatchMessageReqBuilder().
		MessageId(ref.MessageID).
		Body(larkim.NewPatchMessageReqBodyBuilder().
			Content(content).
			Build()).
		Build()

	resp, err := g.client.client.Im.Message.Patch(ctx, req)
	if err != nil {
		g.logger.Error("Failed to edit message",
			zap.String("message_id", ref.MessageID),
			zap.Error(err))
		return fmt.Errorf("failed to edit message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	return nil
}

// DeleteMessage removes a message the bot sent. A message that was
// already deleted maps to platform.ErrMessageGone.
func (g *Gateway) DeleteMessage(ctx context.Context, ref platform.MessageRef) error {
	req := larkim.NewDeleteMessageReqBuilder().
		MessageId(ref.MessageID).
		Build()

	resp, err := g.client.client.Im.Message.Delete(ctx, req)
	if err != nil {
		g.logger.Error("Failed to delete message",
			zap.String("message_id", ref.MessageID),
			zap.Error(err))
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if !resp.Success() {
		if resp.Code == codeMessageNotFound {
			return platform.ErrMessageGone
		}
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	return nil
}

// ReplyEphemeral delivers text to the event actor in a direct chat
func (g *Gateway) ReplyEphemeral(ctx context.Context, ev platform.Event, text string) error {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("open_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(ev.ActorID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := g.client.client.Im.Message.Create(ctx, req)
	if err != nil {
		g.logger.Error("Failed to send private reply",
			zap.String("open_id", ev.ActorID),
			zap.Error(err))
		return fmt.Errorf("failed to send private reply: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	return nil
}

// HasCapability reports whether the member holds the named capability
func (g *Gateway) HasCapability(ctx context.Context, memberID, capability string) (bool, error) {
	return g.caps.Has(memberID, capability)
}

// GrantCapability grants the named capability to the member
func (g *Gateway) GrantCapability(ctx context.Context, memberID, capability string) error {
	return g.caps.Grant(memberID, capability)
}

// RevokeCapability removes the named capability from the member
func (g *Gateway) RevokeCapability(ctx context.Context, memberID, capability string) error {
	return g.caps.Revoke(memberID, capability)
}

// renderContent picks the Lark message type for msg and encodes its
// content JSON. Any embed, button, or attachment forces a card.
func (g *Gateway) renderContent(ctx context.Context, msg platform.Message) (string, string, error) {
	if msg.Embed == nil && len(msg.Buttons) == 0 && msg.AttachmentPath == "" {
		content, err := json.Marshal(map[string]string{"text": msg.Text})
		if err != nil {
			return "", "", fmt.Errorf("failed to encode text content: %w", err)
		}
		return "text", string(content), nil
	}

	card, err := g.buildCard(ctx, msg)
	if err != nil {
		return "", "", err
	}
	content, err := json.Marshal(card)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode card: %w", err)
	}
	return "interactive", string(content), nil
}

// buildCard assembles an interactive card from the message parts
func (g *Gateway) buildCard(ctx context.Context, msg platform.Message) (map[string]interface{}, error) {
	card := map[string]interface{}{
		"config": map[string]interface{}{
			"wide_screen_mode": true,
		},
	}

	var elements []interface{}

	if msg.Text != "" {
		elements = append(elements, mdElement(msg.Text))
	}

	if e := msg.Embed; e != nil {
		if e.Title != "" {
			card["header"] = map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": e.Title,
				},
				"template": headerTemplate(e.Color),
			}
		}
		if e.Description != "" {
			elements = append(elements, mdElement(e.Description))
		}
		if len(e.Fields) > 0 {
			fields := make([]interface{}, 0, len(e.Fields))
			for _, f := range e.Fields {
				fields = append(fields, map[string]interface{}{
					"is_short": f.Inline,
					"text": map[string]interface{}{
						"tag":     "lark_md",
						"content": fmt.Sprintf("**%s**\n%s", f.Name, f.Value),
					},
				})
			}
			elements = append(elements, map[string]interface{}{
				"tag":    "div",
				"fields": fields,
			})
		}
	}

	if msg.AttachmentPath != "" {
		imageKey, err := g.uploadImage(ctx, msg.AttachmentPath)
		if err != nil {
			return nil, err
		}
		elements = append(elements, map[string]interface{}{
			"tag":     "img",
			"img_key": imageKey,
			"alt": map[string]interface{}{
				"tag":     "plain_text",
				"content": "",
			},
		})
	}

	if len(msg.Buttons) > 0 {
		actions := make([]interface{}, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			actions = append(actions, map[string]interface{}{
				"tag": "button",
				"text": map[string]interface{}{
					"tag":     "plain_text",
					"content": b.Label,
				},
				"type": buttonType(b.Style),
				"value": map[string]interface{}{
					"token": b.CustomID,
				},
			})
		}
		elements = append(elements, map[string]interface{}{
			"tag":     "action",
			"actions": actions,
		})
	}

	card["elements"] = elements
	return card, nil
}

// uploadImage stages a local image file with Lark and returns its key
func (g *Gateway) uploadImage(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()

	req := larkim.NewCreateImageReqBuilder().
		Body(larkim.NewCreateImageReqBodyBuilder().
			ImageType("message").
			Image(f).
			Build()).
		Build()

	resp, err := g.client.client.Im.Image.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.ImageKey == nil {
		return "", fmt.Errorf("image upload returned no key")
	}

	return *resp.Data.ImageKey, nil
}

func mdElement(text string) map[string]interface{} {
	return map[string]interface{}{
		"tag": "div",
		"text": map[string]interface{}{
			"tag":     "lark_md",
			"content": text,
		},
	}
}

// headerTemplate maps an embed hex color onto the nearest card header
// template name.
func headerTemplate(hex string) string {
	switch hex {
	case "#FFA500":
		return "orange"
	case "#00FF00":
		return "green"
	case "#FF0000":
		return "red"
	case "#808080":
		return "grey"
	case "#031a8c", "#110478":
		return "indigo"
	default:
		return "blue"
	}
}

func buttonType(style platform.ButtonStyle) string {
	switch style {
	case platform.ButtonSuccess:
		return "primary"
	case platform.ButtonDanger:
		return "danger"
	default:
		return "default"
	}
}
