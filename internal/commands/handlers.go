package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nia-ops/warden/internal/approval"
	"github.com/nia-ops/warden/internal/models"
	"github.com/nia-ops/warden/internal/platform"
	"github.com/nia-ops/warden/internal/roster"
	"github.com/nia-ops/warden/internal/sticky"
	"github.com/nia-ops/warden/pkg/utils"
)

const (
	colorInfo    = "#FFA500"
	colorDanger  = "#FF0000"
	colorSuccess = "#00FF00"
	colorAgency  = "#110478"
)

// punishmentKeys maps the short command argument onto the stored
// punishment type.
var punishmentKeys = map[string]string{
	"verbal":      models.PunishmentVerbalWarning,
	"written":     models.PunishmentWrittenWarning,
	"strike":      models.PunishmentStrike,
	"termination": models.PunishmentTermination,
}

func (r *Router) handlePing(ctx context.Context, ev platform.Event, args string) {
	start := r.clock()
	ref, err := r.deps.Gateway.SendMessage(ctx, ev.ChannelID, platform.Message{Text: "Pinging..."})
	if err != nil {
		r.deps.Logger.Error("ping send failed", zap.Error(err))
		return
	}
	latency := r.clock().Sub(start)

	text := fmt.Sprintf("Pong! Round trip took **%dms**.", latency.Milliseconds())
	if err := r.deps.Gateway.EditMessage(ctx, ref, platform.Message{Text: text}); err != nil {
		r.deps.Logger.Error("ping edit failed", zap.Error(err))
	}
}

func (r *Router) handleLeave(ctx context.Context, ev platform.Event, args string) {
	daysArg, _ := nextArg(args)
	if daysArg == "" {
		r.replyEphemeral(ctx, ev, "Usage: loa <days> - request a leave of absence.")
		return
	}

	days, err := strconv.Atoi(daysArg)
	if err != nil {
		r.replyEphemeral(ctx, ev, "The number of days must be a whole number.")
		return
	}

	_, err = r.deps.Approval.SubmitLeave(ctx, ev.ActorID, ev.ActorName, days)
	if errors.Is(err, approval.ErrInvalidDuration) {
		r.replyEphemeral(ctx, ev, "The number of days must be greater than zero.")
		return
	}
	if err != nil {
		r.deps.Logger.Error("leave submission failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "Your leave request could not be submitted. Try again.")
		return
	}

	r.replyEphemeral(ctx, ev, "Your leave request has been submitted for review.")
}

func (r *Router) handleRequestRole(ctx context.Context, ev platform.Event, args string) {
	if args == "" {
		r.replyEphemeral(ctx, ev, "Usage: requestrole <role name> - request a role grant.")
		return
	}

	if _, err := r.deps.Approval.SubmitRole(ctx, ev.ActorID, ev.ActorName, args); err != nil {
		r.deps.Logger.Error("role request failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "Your role request could not be submitted. Try again.")
		return
	}

	r.replyEphemeral(ctx, ev, fmt.Sprintf("Your request for **%s** has been submitted for review.", args))
}

func (r *Router) handleSticky(ctx context.Context, ev platform.Event, args string) {
	sub, rest := nextArg(args)

	switch strings.ToLower(sub) {
	case "stick":
		if rest == "" {
			r.replyEphemeral(ctx, ev, "Please provide a message to stick.")
			return
		}
		if err := r.deps.Sticky.Stick(ctx, ev.ChannelID, rest); err != nil {
			r.deps.Logger.Error("stick failed", zap.Error(err))
			r.replyEphemeral(ctx, ev, "The sticky message could not be set. Try again.")
			return
		}
		r.replyEphemeral(ctx, ev, "Sticky message has been set.")

	case "unstick":
		err := r.deps.Sticky.Unstick(ctx, ev.ChannelID)
		switch {
		case errors.Is(err, sticky.ErrNothingToUnstick):
			r.replyEphemeral(ctx, ev, "There is no sticky message set for this channel.")
		case errors.Is(err, sticky.ErrAlreadyRemoved):
			r.replyEphemeral(ctx, ev, "Sticky message was already removed.")
		case err != nil:
			r.deps.Logger.Error("unstick failed", zap.Error(err))
			r.replyEphemeral(ctx, ev, "An error occurred while trying to remove the sticky message.")
		default:
			r.replyEphemeral(ctx, ev, "Sticky message successfully removed from this channel.")
		}

	default:
		r.replyEphemeral(ctx, ev, `Please specify either "stick" or "unstick".`)
	}
}

func (r *Router) handlePunish(ctx context.Context, ev platform.Event, args string) {
	if !r.requireAdmin(ctx, ev) {
		return
	}

	memberID, rest := nextArg(args)
	typeKey, reason := nextArg(rest)
	punishmentType, ok := punishmentKeys[strings.ToLower(typeKey)]
	if memberID == "" || !ok || reason == "" {
		r.replyEphemeral(ctx, ev, "Usage: punish <member> <verbal|written|strike|termination> <reason>")
		return
	}

	reason = utils.SanitizeString(reason)
	p := &models.Punishment{
		MemberID:     memberID,
		MemberName:   memberID,
		Type:         punishmentType,
		Reason:       reason,
		ExecutorID:   ev.ActorID,
		ExecutorName: ev.ActorName,
	}
	if err := r.deps.Punishments.Create(p); err != nil {
		r.deps.Logger.Error("punishment insert failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "An error occurred while assigning the punishment.")
		return
	}

	color := colorInfo
	if punishmentType == models.PunishmentTermination {
		color = colorDanger
	}

	r.replyChannel(ctx, ev, platform.Message{Embed: &platform.Embed{
		Title: "Punishment Assigned",
		Color: color,
		Fields: []platform.EmbedField{
			{Name: "Punished Member", Value: memberID, Inline: true},
			{Name: "Punishment Type", Value: punishmentType, Inline: true},
			{Name: "Reason", Value: reason},
			{Name: "Executor", Value: fmt.Sprintf("%s (%s)", ev.ActorName, ev.ActorID), Inline: true},
		},
		Timestamp: r.clock(),
	}})
}

func (r *Router) handlePunishments(ctx context.Context, ev platform.Event, args string) {
	memberID, _ := nextArg(args)
	if memberID == "" {
		r.replyEphemeral(ctx, ev, "Usage: punishments <member>")
		return
	}

	records, err := r.deps.Punishments.GetByMemberID(memberID)
	if err != nil {
		r.deps.Logger.Error("punishment lookup failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "An error occurred while fetching punishments.")
		return
	}
	if len(records) == 0 {
		r.replyEphemeral(ctx, ev, fmt.Sprintf("No punishments found for %s.", memberID))
		return
	}

	fields := make([]platform.EmbedField, 0, len(records))
	for _, p := range records {
		fields = append(fields, platform.EmbedField{
			Name: fmt.Sprintf("ID: %d - %s", p.ID, p.Type),
			Value: fmt.Sprintf("**Reason:** %s\n**Executor:** %s\n**Date:** %s",
				p.Reason, p.ExecutorName, p.CreatedAt.Format("2006-01-02 15:04")),
		})
	}

	r.replyChannel(ctx, ev, platform.Message{Embed: &platform.Embed{
		Title:       fmt.Sprintf("Punishments for %s", memberID),
		Description: fmt.Sprintf("Showing all punishments for **%s**.", memberID),
		Color:       colorInfo,
		Fields:      fields,
		Timestamp:   r.clock(),
	}})
}

func (r *Router) handlePunishmentRemove(ctx context.Context, ev platform.Event, args string) {
	if !r.requireAdmin(ctx, ev) {
		return
	}

	memberID, rest := nextArg(args)
	idArg, _ := nextArg(rest)
	id, err := strconv.ParseInt(idArg, 10, 64)
	if memberID == "" || err != nil {
		r.replyEphemeral(ctx, ev, "Usage: punishmentremove <member> <id>")
		return
	}

	p, err := r.deps.Punishments.GetByID(id)
	if err != nil {
		r.deps.Logger.Error("punishment lookup failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "An error occurred while removing the punishment.")
		return
	}
	if p == nil || p.MemberID != memberID {
		r.replyEphemeral(ctx, ev, fmt.Sprintf("No punishment with ID **%d** found for %s.", id, memberID))
		return
	}

	if err := r.deps.Punishments.Delete(id); err != nil {
		r.deps.Logger.Error("punishment delete failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "An error occurred while removing the punishment.")
		return
	}

	r.replyChannel(ctx, ev, platform.Message{Embed: &platform.Embed{
		Title:       "Punishment Removed",
		Description: fmt.Sprintf("The punishment for **%s** has been successfully removed.", memberID),
		Color:       colorSuccess,
		Fields: []platform.EmbedField{
			{Name: "Punishment ID", Value: strconv.FormatInt(id, 10), Inline: true},
			{Name: "Executor", Value: fmt.Sprintf("%s (%s)", ev.ActorName, ev.ActorID), Inline: true},
		},
		Timestamp: r.clock(),
	}})
}

func (r *Router) handleOnboard(ctx context.Context, ev platform.Event, args string) {
	if !r.requireAdmin(ctx, ev) {
		return
	}

	memberID, rest := nextArg(args)
	timezone, name := nextArg(rest)
	if memberID == "" || timezone == "" || name == "" {
		r.replyEphemeral(ctx, ev, "Usage: onboard <member> <timezone> <name>")
		return
	}

	date := r.clock().Format("2006-01-02")
	res, err := r.deps.Roster.Onboard(name, memberID, timezone, date)
	if errors.Is(err, roster.ErrNoFreeSlot) {
		r.replyEphemeral(ctx, ev, "No available slot found on the employee roster.")
		return
	}
	if err != nil {
		r.deps.Logger.Error("onboard failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "An error occurred while onboarding the officer.")
		return
	}

	officer := &models.Officer{
		MemberID:    memberID,
		Name:        name,
		BadgeNumber: res.BadgeNumber,
		Timezone:    timezone,
	}
	if err := r.deps.Officers.Create(officer); err != nil {
		r.deps.Logger.Error("officer insert failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "The roster was updated but the officer record could not be saved.")
		return
	}

	r.replyChannel(ctx, ev, platform.Message{Embed: &platform.Embed{
		Title:       "Officer Onboarded",
		Description: fmt.Sprintf("Officer **%s** has been successfully onboarded.", name),
		Color:       colorAgency,
		Fields: []platform.EmbedField{
			{Name: "Badge Number", Value: res.BadgeNumber, Inline: true},
			{Name: "Timezone", Value: timezone, Inline: true},
			{Name: "Member", Value: memberID, Inline: true},
		},
		Timestamp: r.clock(),
	}})
}

func (r *Router) handleMove(ctx context.Context, ev platform.Event, args string) {
	if !r.requireAdmin(ctx, ev) {
		return
	}

	target, rank := nextArg(args)
	if target == "" || rank == "" {
		r.replyEphemeral(ctx, ev, "Usage: move <member|badge> <rank>")
		return
	}

	// The target is either a member ID or a five digit badge number.
	var officer *models.Officer
	var err error
	if utils.ValidateBadgeNumber(target) == nil {
		officer, err = r.deps.Officers.GetByBadge(target)
	} else {
		officer, err = r.deps.Officers.GetByMemberID(target)
	}
	if err != nil {
		r.deps.Logger.Error("officer lookup failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "An error occurred while looking up the officer.")
		return
	}
	if officer == nil {
		r.replyEphemeral(ctx, ev, fmt.Sprintf("No badge number found for %s.", target))
		return
	}

	res, err := r.deps.Roster.Move(officer.BadgeNumber, rank)
	switch {
	case errors.Is(err, roster.ErrUnknownRank):
		ranks := r.deps.Roster.Ranks()
		sort.Strings(ranks)
		r.replyEphemeral(ctx, ev, fmt.Sprintf("Unknown rank **%s**. Valid ranks: %s.", rank, strings.Join(ranks, ", ")))
		return
	case errors.Is(err, roster.ErrBadgeNotFound):
		r.replyEphemeral(ctx, ev, fmt.Sprintf("Badge number %s was not found on the master roster.", officer.BadgeNumber))
		return
	case err != nil:
		r.deps.Logger.Error("move failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "An error occurred while moving the officer.")
		return
	}

	r.replyChannel(ctx, ev, platform.Message{Embed: &platform.Embed{
		Title:       "Officer Moved",
		Description: fmt.Sprintf("**%s | %s** has been moved to the rank **%s**.", res.Prefix, res.Name, rank),
		Color:       colorAgency,
		Fields: []platform.EmbedField{
			{Name: "Badge Number", Value: officer.BadgeNumber, Inline: true},
		},
		Timestamp: r.clock(),
	}})
}

func (r *Router) handleRosterRemove(ctx context.Context, ev platform.Event, args string) {
	if !r.requireAdmin(ctx, ev) {
		return
	}

	memberID, _ := nextArg(args)
	if memberID == "" {
		r.replyEphemeral(ctx, ev, "Usage: rosterremove <member>")
		return
	}

	row, err := r.deps.Roster.Remove(memberID)
	if errors.Is(err, roster.ErrMemberNotFound) {
		r.replyEphemeral(ctx, ev, fmt.Sprintf("%s was not found on the employee roster.", memberID))
		return
	}
	if err != nil {
		r.deps.Logger.Error("roster remove failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "An error occurred while removing the officer from the roster.")
		return
	}

	if err := r.deps.Officers.Delete(memberID); err != nil {
		r.deps.Logger.Warn("officer record delete failed",
			zap.String("member_id", memberID),
			zap.Error(err))
	}

	r.replyChannel(ctx, ev, platform.Message{Embed: &platform.Embed{
		Title:       "Officer Removed from Roster",
		Description: fmt.Sprintf("**%s** has been removed from the employee roster.", memberID),
		Color:       colorDanger,
		Fields: []platform.EmbedField{
			{Name: "Row Cleared", Value: strconv.Itoa(row), Inline: true},
		},
		Timestamp: r.clock(),
	}})
}

func (r *Router) handleBadge(ctx context.Context, ev platform.Event, args string) {
	badgeType, rank := nextArg(args)
	if badgeType == "" || rank == "" {
		r.replyEphemeral(ctx, ev, "Usage: badge <hc|lowcmd|patrol|supervisor|triallowcmd> <rank>")
		return
	}

	officer, err := r.deps.Officers.GetByMemberID(ev.ActorID)
	if err != nil {
		r.deps.Logger.Error("officer lookup failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "An error occurred while looking up your badge number.")
		return
	}
	if officer == nil {
		r.replyEphemeral(ctx, ev, "No badge number or name found for you. Ask an admin to onboard you first.")
		return
	}

	path, err := r.deps.Badges.Generate(ctx, strings.ToLower(badgeType), rank, officer.Name, officer.BadgeNumber)
	if err != nil {
		r.deps.Logger.Error("badge generation failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "An error occurred while generating your badge.")
		return
	}
	defer os.Remove(path)

	r.replyChannel(ctx, ev, platform.Message{
		Text:           "Here is your badge!",
		AttachmentPath: path,
	})
}

func (r *Router) handleCreateEmbed(ctx context.Context, ev platform.Event, args string) {
	if !r.requireAdmin(ctx, ev) {
		return
	}

	kv := parseKeyValues(args)
	if kv["title"] == "" && kv["content"] == "" {
		r.replyEphemeral(ctx, ev, `Usage: createembed title="..." content="..." [channel=...] [color=#rrggbb] [image=url] [thumbnail=url]`)
		return
	}

	channelID := kv["channel"]
	if channelID == "" {
		channelID = ev.ChannelID
	}
	color := kv["color"]
	if color == "" {
		color = colorAgency
	} else if err := utils.ValidateHexColor(color); err != nil {
		r.replyEphemeral(ctx, ev, "The color must be a hex code like #ff0000.")
		return
	}

	embed := &platform.Embed{
		Title:       kv["title"],
		Description: kv["content"],
		Color:       color,
		Image:       kv["image"],
		Thumbnail:   kv["thumbnail"],
		Timestamp:   r.clock(),
	}

	if _, err := r.deps.Gateway.SendMessage(ctx, channelID, platform.Message{Embed: embed}); err != nil {
		r.deps.Logger.Error("embed send failed", zap.Error(err))
		r.replyEphemeral(ctx, ev, "The embed could not be sent.")
		return
	}

	if channelID != ev.ChannelID {
		r.replyEphemeral(ctx, ev, "Embed sent.")
	}
}
