// Package commands routes inbound chat events: button clicks go to the
// collector dispatcher with a late-decision fallback, and prefixed
// messages are parsed and executed as bot commands.
package commands

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nia-ops/warden/internal/approval"
	"github.com/nia-ops/warden/internal/badge"
	"github.com/nia-ops/warden/internal/platform"
	"github.com/nia-ops/warden/internal/repository"
	"github.com/nia-ops/warden/internal/roster"
	"github.com/nia-ops/warden/internal/sticky"
)

// Deps bundles the collaborators the command handlers act on
type Deps struct {
	Gateway     platform.Gateway
	Dispatcher  *platform.Dispatcher
	Approval    *approval.Service
	Sticky      *sticky.Registry
	Punishments *repository.PunishmentRepository
	Officers    *repository.OfficerRepository
	Roster      *roster.Workbook
	Badges      *badge.Generator
	Logger      *zap.Logger
}

// Config holds command routing settings
type Config struct {
	// Prefix marks a message as a command, e.g. "n!"
	Prefix string

	// AdminCapability gates the management commands
	AdminCapability string

	// AgencyName appears in generated embeds
	AgencyName string
}

type handlerFunc func(ctx context.Context, ev platform.Event, args string)

// Router dispatches normalized platform events
type Router struct {
	cfg  Config
	deps Deps

	handlers map[string]handlerFunc
	clock    func() time.Time
}

// NewRouter creates the command router and registers all handlers
func NewRouter(cfg Config, deps Deps) *Router {
	r := &Router{
		cfg:   cfg,
		deps:  deps,
		clock: time.Now,
	}
	r.handlers = map[string]handlerFunc{
		"ping":             r.handlePing,
		"loa":              r.handleLeave,
		"requestrole":      r.handleRequestRole,
		"sticky":           r.handleSticky,
		"punish":           r.handlePunish,
		"punishments":      r.handlePunishments,
		"punishmentremove": r.handlePunishmentRemove,
		"onboard":          r.handleOnboard,
		"move":             r.handleMove,
		"rosterremove":     r.handleRosterRemove,
		"badge":            r.handleBadge,
		"createembed":      r.handleCreateEmbed,
	}
	return r
}

// HandleEvent is the single entry point for normalized inbound events.
// Button clicks are offered to the live collectors first; clicks nothing
// consumed belong to requests that already resolved or expired.
func (r *Router) HandleEvent(ctx context.Context, ev platform.Event) {
	switch ev.Type {
	case platform.EventButtonClick:
		if r.deps.Dispatcher.Dispatch(ev) == 0 {
			r.deps.Approval.HandleLateDecision(ctx, ev)
		}

	case platform.EventMessage:
		r.deps.Dispatcher.Dispatch(ev)
		if ev.ActorIsBot {
			return
		}
		if !strings.HasPrefix(ev.Content, r.cfg.Prefix) {
			return
		}
		name, args := splitCommand(strings.TrimPrefix(ev.Content, r.cfg.Prefix))
		handler, ok := r.handlers[name]
		if !ok {
			return
		}
		r.deps.Logger.Info("command received",
			zap.String("command", name),
			zap.String("actor", ev.ActorID),
			zap.String("channel", ev.ChannelID))
		handler(ctx, ev, args)
	}
}

// requireAdmin checks the actor against the admin capability and tells
// them off privately when they lack it.
func (r *Router) requireAdmin(ctx context.Context, ev platform.Event) bool {
	ok, err := r.deps.Gateway.HasCapability(ctx, ev.ActorID, r.cfg.AdminCapability)
	if err != nil {
		r.deps.Logger.Error("capability lookup failed",
			zap.String("actor", ev.ActorID),
			zap.Error(err))
		r.replyEphemeral(ctx, ev, "Something went wrong while checking your permissions.")
		return false
	}
	if !ok {
		r.replyEphemeral(ctx, ev, "You do not have the required role to execute this command.")
		return false
	}
	return true
}

func (r *Router) replyEphemeral(ctx context.Context, ev platform.Event, text string) {
	if err := r.deps.Gateway.ReplyEphemeral(ctx, ev, text); err != nil {
		r.deps.Logger.Error("ephemeral reply failed",
			zap.String("actor", ev.ActorID),
			zap.Error(err))
	}
}

func (r *Router) replyChannel(ctx context.Context, ev platform.Event, msg platform.Message) {
	if _, err := r.deps.Gateway.SendMessage(ctx, ev.ChannelID, msg); err != nil {
		r.deps.Logger.Error("channel reply failed",
			zap.String("channel", ev.ChannelID),
			zap.Error(err))
	}
}
