// Package approval owns the interactive approval workflow: a request is
// posted to the review channel with approve/decline controls, a bounded
// collector feeds reviewer decisions into a per-request state machine, and an
// approved leave schedules its own reversal. Pending requests live only in
// memory; a restart loses them and the requester re-issues the command.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nia-ops/warden/internal/collector"
	"github.com/nia-ops/warden/internal/domain/workflow"
	"github.com/nia-ops/warden/internal/platform"
	"github.com/nia-ops/warden/internal/scheduler"
)

// ErrInvalidDuration is returned when a leave request asks for zero or
// negative days.
var ErrInvalidDuration = errors.New("duration must be greater than zero")

const (
	colorPending     = "#FFA500"
	colorRolePending = "#031a8c"
	colorApproved    = "#00FF00"
	colorDeclined    = "#FF0000"
	colorTimedOut    = "#808080"
)

const (
	replyNotAuthorized   = "You are not authorized to approve or decline requests."
	replyAlreadyResolved = "This request has already been resolved."
	replyMalformedToken  = "This decision control is malformed and cannot be processed."
	replyGenericFailure  = "Something went wrong while processing the decision. Try again."
)

// Config holds the approval workflow settings.
type Config struct {
	// ReviewChannelID is where request artifacts are posted.
	ReviewChannelID string

	// ApproverCapability gates who may decide requests.
	ApproverCapability string

	// LeaveCapability is granted on an approved leave and revoked when the
	// leave elapses.
	LeaveCapability string

	// RequestTTL bounds how long a request collects decisions.
	RequestTTL time.Duration
}

// Request is one pending request's in-memory record.
type Request struct {
	Kind          Kind
	RequesterID   string
	RequesterName string
	SubjectID     string
	Param         string
	Artifact      platform.MessageRef
	CreatedAt     time.Time

	machine   workflow.StateMachine
	collector *collector.Collector
	decidedBy string
}

// Service runs the request lifecycle for every pending request.
type Service struct {
	cfg        Config
	gw         platform.Gateway
	dispatcher *platform.Dispatcher
	sched      *scheduler.Scheduler
	logger     *zap.Logger
	clock      func() time.Time

	mu      sync.Mutex
	pending map[string]*Request // keyed by artifact message ID
}

// NewService creates the approval service.
func NewService(cfg Config, gw platform.Gateway, dispatcher *platform.Dispatcher, sched *scheduler.Scheduler, logger *zap.Logger) *Service {
	return &Service{
		cfg:        cfg,
		gw:         gw,
		dispatcher: dispatcher,
		sched:      sched,
		logger:     logger,
		clock:      time.Now,
		pending:    make(map[string]*Request),
	}
}

// SubmitLeave posts a leave-of-absence request for the requester and opens
// its decision window.
func (s *Service) SubmitLeave(ctx context.Context, requesterID, requesterName string, days int) (platform.MessageRef, error) {
	if days <= 0 {
		return platform.MessageRef{}, ErrInvalidDuration
	}

	req := &Request{
		Kind:          KindLeave,
		RequesterID:   requesterID,
		RequesterName: requesterName,
		SubjectID:     requesterID,
		Param:         strconv.Itoa(days),
		CreatedAt:     s.clock(),
	}
	return s.post(ctx, req)
}

// SubmitRole posts a role-grant request for the requester and opens its
// decision window.
func (s *Service) SubmitRole(ctx context.Context, requesterID, requesterName, capability string) (platform.MessageRef, error) {
	if capability == "" {
		return platform.MessageRef{}, fmt.Errorf("capability is required")
	}

	req := &Request{
		Kind:          KindRole,
		RequesterID:   requesterID,
		RequesterName: requesterName,
		SubjectID:     requesterID,
		Param:         capability,
		CreatedAt:     s.clock(),
	}
	return s.post(ctx, req)
}

func (s *Service) post(ctx context.Context, req *Request) (platform.MessageRef, error) {
	msg := platform.Message{
		Embed:   s.renderEmbed(req, workflow.StatePending),
		Buttons: decisionButtons(req),
	}

	ref, err := s.gw.SendMessage(ctx, s.cfg.ReviewChannelID, msg)
	if err != nil {
		return platform.MessageRef{}, fmt.Errorf("post request artifact: %w", err)
	}
	req.Artifact = ref
	req.machine = workflow.NewRequestMachine()

	s.mu.Lock()
	s.pending[ref.MessageID] = req
	s.mu.Unlock()

	req.collector = collector.Open(s.dispatcher, collector.Config{
		TTL: s.cfg.RequestTTL,
		Filter: func(ev platform.Event) bool {
			return ev.Type == platform.EventButtonClick && ev.MessageID == ref.MessageID
		},
		OnCollect: func(ev platform.Event) {
			s.handleDecision(context.Background(), req, ev)
		},
		OnEnd: func(collected int, reason collector.EndReason) {
			s.handleEnd(context.Background(), req, collected, reason)
		},
	})

	s.logger.Info("request posted",
		zap.String("kind", string(req.Kind)),
		zap.String("requester", req.RequesterID),
		zap.String("param", req.Param),
		zap.String("message_id", ref.MessageID))
	return ref, nil
}

// handleDecision processes one reviewer control activation. Only the first
// qualifying decision transitions the request; everything after gets the
// already-resolved notice.
func (s *Service) handleDecision(ctx context.Context, req *Request, ev platform.Event) {
	tok, err := ParseDecisionToken(ev.CustomID)
	if err != nil {
		s.logger.Warn("rejecting malformed decision token",
			zap.String("custom_id", ev.CustomID),
			zap.Error(err))
		s.reply(ctx, ev, replyMalformedToken)
		return
	}

	authorized, err := s.gw.HasCapability(ctx, ev.ActorID, s.cfg.ApproverCapability)
	if err != nil {
		s.logger.Error("capability lookup failed",
			zap.String("actor", ev.ActorID),
			zap.Error(err))
		s.reply(ctx, ev, replyGenericFailure)
		return
	}
	if !authorized {
		s.reply(ctx, ev, replyNotAuthorized)
		return
	}

	trigger := workflow.TriggerDecline
	if tok.Action == ActionApprove {
		trigger = workflow.TriggerApprove
	}

	s.mu.Lock()
	if req.machine.State().IsTerminal() {
		s.mu.Unlock()
		s.reply(ctx, ev, replyAlreadyResolved)
		return
	}
	if err := req.machine.Fire(ctx, trigger); err != nil {
		s.mu.Unlock()
		s.reply(ctx, ev, replyAlreadyResolved)
		return
	}
	req.decidedBy = ev.ActorName
	if req.decidedBy == "" {
		req.decidedBy = ev.ActorID
	}
	state := req.machine.State()
	s.mu.Unlock()

	// The transition is committed; side effects and the re-render are
	// best-effort from here per the error-handling design.
	if state == workflow.StateApproved {
		s.applyApproval(ctx, req, tok, ev)
	}
	s.render(ctx, req, state)
	req.collector.Stop()

	s.logger.Info("request resolved",
		zap.String("kind", string(req.Kind)),
		zap.String("state", state.String()),
		zap.String("decided_by", ev.ActorID),
		zap.String("message_id", req.Artifact.MessageID))

	switch state {
	case workflow.StateApproved:
		if req.Kind == KindLeave {
			s.reply(ctx, ev, fmt.Sprintf("Leave for **%s** approved for %s day(s).", req.RequesterName, req.Param))
		} else {
			s.reply(ctx, ev, fmt.Sprintf("Role **%s** approved for **%s**.", req.Param, req.RequesterName))
		}
	case workflow.StateDeclined:
		s.reply(ctx, ev, fmt.Sprintf("Request from **%s** declined.", req.RequesterName))
	}
}

// applyApproval grants the capability and, for duration-bearing requests,
// schedules the reversal. A failure here leaves the request terminal; the
// partially-applied side effect is an accepted limitation.
func (s *Service) applyApproval(ctx context.Context, req *Request, tok DecisionToken, ev platform.Event) {
	capability := tok.Param
	if req.Kind == KindLeave {
		capability = s.cfg.LeaveCapability
	}

	if err := s.gw.GrantCapability(ctx, tok.SubjectID, capability); err != nil {
		s.logger.Error("capability grant failed",
			zap.String("subject", tok.SubjectID),
			zap.String("capability", capability),
			zap.Error(err))
		s.reply(ctx, ev, replyGenericFailure)
		return
	}

	if req.Kind != KindLeave {
		return
	}

	days, err := strconv.Atoi(tok.Param)
	if err != nil || days <= 0 {
		s.logger.Error("unusable leave duration in token", zap.String("param", tok.Param))
		return
	}

	fireAt := s.clock().Add(time.Duration(days) * 24 * time.Hour)
	subject := tok.SubjectID
	s.sched.Schedule(fireAt, func(ctx context.Context) {
		s.revertLeave(ctx, subject, capability)
	})
}

// revertLeave removes the leave capability when the granted duration has
// elapsed. Revoking an already-absent capability is skipped silently.
func (s *Service) revertLeave(ctx context.Context, subjectID, capability string) {
	held, err := s.gw.HasCapability(ctx, subjectID, capability)
	if err != nil {
		s.logger.Error("reversal capability check failed",
			zap.String("subject", subjectID),
			zap.Error(err))
		return
	}
	if !held {
		s.logger.Info("reversal skipped, capability no longer held",
			zap.String("subject", subjectID),
			zap.String("capability", capability))
		return
	}
	if err := s.gw.RevokeCapability(ctx, subjectID, capability); err != nil {
		s.logger.Error("reversal revoke failed",
			zap.String("subject", subjectID),
			zap.Error(err))
		return
	}
	s.logger.Info("leave capability reverted",
		zap.String("subject", subjectID),
		zap.String("capability", capability))
}

// handleEnd runs once per request when its collector closes. A request still
// pending at that point becomes TimedOut; otherwise the terminal transition
// was already applied and this is a no-op beyond registry cleanup.
func (s *Service) handleEnd(ctx context.Context, req *Request, collected int, reason collector.EndReason) {
	s.mu.Lock()
	timedOut := false
	if !req.machine.State().IsTerminal() {
		if err := req.machine.Fire(ctx, workflow.TriggerTimeout); err == nil {
			timedOut = true
		}
	}
	delete(s.pending, req.Artifact.MessageID)
	s.mu.Unlock()

	if !timedOut {
		return
	}

	s.render(ctx, req, workflow.StateTimedOut)
	s.logger.Info("request timed out",
		zap.String("kind", string(req.Kind)),
		zap.String("message_id", req.Artifact.MessageID),
		zap.Int("collected", collected),
		zap.String("reason", string(reason)))
}

// HandleLateDecision answers a control activation that no live collector
// consumed: the request either resolved already or expired.
func (s *Service) HandleLateDecision(ctx context.Context, ev platform.Event) {
	if _, err := ParseDecisionToken(ev.CustomID); err != nil {
		s.reply(ctx, ev, replyMalformedToken)
		return
	}
	s.reply(ctx, ev, "This request has already been resolved or has expired.")
}

// PendingCount returns how many requests are awaiting a decision.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// render mutates the visible artifact to reflect the request state, removing
// decision controls on any terminal state.
func (s *Service) render(ctx context.Context, req *Request, state workflow.State) {
	msg := platform.Message{Embed: s.renderEmbed(req, state)}
	if state == workflow.StatePending {
		msg.Buttons = decisionButtons(req)
	}
	if err := s.gw.EditMessage(ctx, req.Artifact, msg); err != nil {
		s.logger.Error("artifact re-render failed",
			zap.String("message_id", req.Artifact.MessageID),
			zap.Error(err))
	}
}

func (s *Service) renderEmbed(req *Request, state workflow.State) *platform.Embed {
	var title, description, pendingColor string
	switch req.Kind {
	case KindLeave:
		title = "Leave of Absence Request"
		description = fmt.Sprintf("%s has requested a leave of absence for **%s day(s)**.", req.RequesterName, req.Param)
		pendingColor = colorPending
	default:
		title = "Role Request"
		description = fmt.Sprintf("%s has requested the role **%s**.", req.RequesterName, req.Param)
		pendingColor = colorRolePending
	}

	status := "Pending"
	color := pendingColor
	switch state {
	case workflow.StateApproved:
		if req.Kind == KindLeave {
			status = fmt.Sprintf("Approved by %s for %s day(s)", req.decidedBy, req.Param)
		} else {
			status = fmt.Sprintf("Approved by %s", req.decidedBy)
		}
		color = colorApproved
	case workflow.StateDeclined:
		status = fmt.Sprintf("Declined by %s", req.decidedBy)
		color = colorDeclined
	case workflow.StateTimedOut:
		status = "Timed Out"
		color = colorTimedOut
	}

	return &platform.Embed{
		Title:       title,
		Description: description,
		Color:       color,
		Fields:      []platform.EmbedField{{Name: "Status", Value: status, Inline: true}},
		Timestamp:   req.CreatedAt,
	}
}

func (s *Service) reply(ctx context.Context, ev platform.Event, text string) {
	if err := s.gw.ReplyEphemeral(ctx, ev, text); err != nil {
		s.logger.Error("ephemeral reply failed",
			zap.String("actor", ev.ActorID),
			zap.Error(err))
	}
}

func decisionButtons(req *Request) []platform.Button {
	base := DecisionToken{
		Kind:        req.Kind,
		RequesterID: req.RequesterID,
		SubjectID:   req.SubjectID,
		Param:       req.Param,
	}

	approve := base
	approve.Action = ActionApprove
	decline := base
	decline.Action = ActionDecline

	return []platform.Button{
		{CustomID: approve.Encode(), Label: "Approve", Style: platform.ButtonSuccess},
		{CustomID: decline.Encode(), Label: "Decline", Style: platform.ButtonDanger},
	}
}
