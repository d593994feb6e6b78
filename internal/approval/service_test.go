package approval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nia-ops/warden/internal/platform"
	"github.com/nia-ops/warden/internal/scheduler"
)

// fakeGateway records every platform interaction for assertion.
type fakeGateway struct {
	mu       sync.Mutex
	nextID   int
	sent     map[string]platform.Message // by message ID
	edited   map[string]platform.Message // last edit by message ID
	deleted  map[string]int
	gone     map[string]bool
	caps     map[string]map[string]bool // member -> capability set
	replies  []reply
	sendErr  error
	grantErr error
}

type reply struct {
	actor string
	text  string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sent:    make(map[string]platform.Message),
		edited:  make(map[string]platform.Message),
		deleted: make(map[string]int),
		gone:    make(map[string]bool),
		caps:    make(map[string]map[string]bool),
	}
}

func (g *fakeGateway) SendMessage(_ context.Context, channelID string, msg platform.Message) (platform.MessageRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return platform.MessageRef{}, g.sendErr
	}
	g.nextID++
	id := fmt.Sprintf("m%d", g.nextID)
	g.sent[id] = msg
	return platform.MessageRef{ChannelID: channelID, MessageID: id}, nil
}

func (g *fakeGateway) EditMessage(_ context.Context, ref platform.MessageRef, msg platform.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edited[ref.MessageID] = msg
	return nil
}

func (g *fakeGateway) DeleteMessage(_ context.Context, ref platform.MessageRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gone[ref.MessageID] {
		return platform.ErrMessageGone
	}
	g.deleted[ref.MessageID]++
	g.gone[ref.MessageID] = true
	return nil
}

func (g *fakeGateway) ReplyEphemeral(_ context.Context, ev platform.Event, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, reply{actor: ev.ActorID, text: text})
	return nil
}

func (g *fakeGateway) HasCapability(_ context.Context, memberID, capability string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.caps[memberID][capability], nil
}

func (g *fakeGateway) GrantCapability(_ context.Context, memberID, capability string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.grantErr != nil {
		return g.grantErr
	}
	if g.caps[memberID] == nil {
		g.caps[memberID] = make(map[string]bool)
	}
	g.caps[memberID][capability] = true
	return nil
}

func (g *fakeGateway) RevokeCapability(_ context.Context, memberID, capability string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.caps[memberID], capability)
	return nil
}

func (g *fakeGateway) grant(memberID, capability string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.caps[memberID] == nil {
		g.caps[memberID] = make(map[string]bool)
	}
	g.caps[memberID][capability] = true
}

func (g *fakeGateway) lastEdit(messageID string) (platform.Message, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg, ok := g.edited[messageID]
	return msg, ok
}

func (g *fakeGateway) sentButtons(messageID string) []platform.Button {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sent[messageID].Buttons
}

func (g *fakeGateway) replyTexts(actor string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, r := range g.replies {
		if r.actor == actor {
			out = append(out, r.text)
		}
	}
	return out
}

const (
	approverCap = "request-approver"
	leaveCap    = "on-leave"
	reviewerID  = "u_reviewer"
	requesterID = "u_requester"
)

type fixture struct {
	svc        *Service
	gw         *fakeGateway
	dispatcher *platform.Dispatcher
	sched      *scheduler.Scheduler
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()
	gw := newFakeGateway()
	gw.grant(reviewerID, approverCap)
	dispatcher := platform.NewDispatcher()
	sched := scheduler.New(zap.NewNop())
	t.Cleanup(sched.Close)

	svc := NewService(Config{
		ReviewChannelID:    "review",
		ApproverCapability: approverCap,
		LeaveCapability:    leaveCap,
		RequestTTL:         ttl,
	}, gw, dispatcher, sched, zap.NewNop())

	return &fixture{svc: svc, gw: gw, dispatcher: dispatcher, sched: sched}
}

// click dispatches a decision control activation and falls back to the late
// handler when no collector consumed it, mirroring the command router.
func (f *fixture) click(ref platform.MessageRef, actorID, customID string) {
	ev := platform.Event{
		Type:      platform.EventButtonClick,
		ChannelID: ref.ChannelID,
		MessageID: ref.MessageID,
		ActorID:   actorID,
		ActorName: actorID,
		CustomID:  customID,
		Timestamp: time.Now(),
	}
	if f.dispatcher.Dispatch(ev) == 0 {
		f.svc.HandleLateDecision(context.Background(), ev)
	}
}

func embedStatus(msg platform.Message) string {
	if msg.Embed == nil {
		return ""
	}
	for _, field := range msg.Embed.Fields {
		if field.Name == "Status" {
			return field.Value
		}
	}
	return ""
}

func TestSubmitLeave_RejectsNonPositiveDays(t *testing.T) {
	f := newFixture(t, time.Hour)
	_, err := f.svc.SubmitLeave(context.Background(), requesterID, "Requester", 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
	assert.Equal(t, 0, f.svc.PendingCount())
}

func TestLeaveRequest_ApprovedGrantsLeaveAndSchedulesReversal(t *testing.T) {
	f := newFixture(t, time.Hour)

	ref, err := f.svc.SubmitLeave(context.Background(), requesterID, "Requester", 3)
	require.NoError(t, err)

	buttons := f.gw.sentButtons(ref.MessageID)
	require.Len(t, buttons, 2)
	f.click(ref, reviewerID, buttons[0].CustomID)

	held, _ := f.gw.HasCapability(context.Background(), requesterID, leaveCap)
	assert.True(t, held, "leave capability should be granted on approval")
	assert.Equal(t, 1, f.sched.Pending(), "reversal should be scheduled")

	edit, ok := f.gw.lastEdit(ref.MessageID)
	require.True(t, ok, "artifact should be re-rendered")
	assert.Equal(t, "Approved by "+reviewerID+" for 3 day(s)", embedStatus(edit))
	assert.Empty(t, edit.Buttons, "decision controls removed on terminal transition")

	require.Eventually(t, func() bool { return f.svc.PendingCount() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestLeaveRequest_UnauthorizedActorDoesNotChangeState(t *testing.T) {
	f := newFixture(t, time.Hour)

	ref, err := f.svc.SubmitLeave(context.Background(), requesterID, "Requester", 5)
	require.NoError(t, err)

	buttons := f.gw.sentButtons(ref.MessageID)
	f.click(ref, "u_random", buttons[0].CustomID)

	assert.Equal(t, 1, f.svc.PendingCount(), "request must stay pending")
	_, edited := f.gw.lastEdit(ref.MessageID)
	assert.False(t, edited, "artifact must not change for unauthorized decisions")

	texts := f.gw.replyTexts("u_random")
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "not authorized")

	held, _ := f.gw.HasCapability(context.Background(), requesterID, leaveCap)
	assert.False(t, held)
}

func TestLeaveRequest_TimesOutWithZeroDecisions(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)

	ref, err := f.svc.SubmitLeave(context.Background(), requesterID, "Requester", 2)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.svc.PendingCount() == 0 },
		2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		edit, ok := f.gw.lastEdit(ref.MessageID)
		return ok && embedStatus(edit) == "Timed Out"
	}, 2*time.Second, 5*time.Millisecond)

	edit, _ := f.gw.lastEdit(ref.MessageID)
	assert.Empty(t, edit.Buttons)
	assert.Equal(t, 0, f.sched.Pending())
}

func TestLeaveRequest_FirstDecisionWins(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.gw.grant("u_reviewer2", approverCap)

	ref, err := f.svc.SubmitLeave(context.Background(), requesterID, "Requester", 1)
	require.NoError(t, err)

	buttons := f.gw.sentButtons(ref.MessageID)
	f.click(ref, reviewerID, buttons[0].CustomID)    // approve
	f.click(ref, "u_reviewer2", buttons[1].CustomID) // decline, same tick

	edit, ok := f.gw.lastEdit(ref.MessageID)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(embedStatus(edit), "Approved by "+reviewerID),
		"first arrival wins, status = %q", embedStatus(edit))

	texts := f.gw.replyTexts("u_reviewer2")
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[len(texts)-1], "already been resolved")
}

func TestLeaveRequest_MalformedTokenIsTypedRejection(t *testing.T) {
	f := newFixture(t, time.Hour)

	ref, err := f.svc.SubmitLeave(context.Background(), requesterID, "Requester", 1)
	require.NoError(t, err)

	f.click(ref, reviewerID, "approve-with-wrong-shape")

	assert.Equal(t, 1, f.svc.PendingCount())
	texts := f.gw.replyTexts(reviewerID)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "malformed")
}

func TestRoleRequest_ApprovedGrantsRoleWithoutReversal(t *testing.T) {
	f := newFixture(t, time.Hour)

	ref, err := f.svc.SubmitRole(context.Background(), requesterID, "Requester", "field-agent")
	require.NoError(t, err)

	buttons := f.gw.sentButtons(ref.MessageID)
	require.Len(t, buttons, 2)
	f.click(ref, reviewerID, buttons[0].CustomID)

	held, _ := f.gw.HasCapability(context.Background(), requesterID, "field-agent")
	assert.True(t, held)
	assert.Equal(t, 0, f.sched.Pending(), "role grants schedule no reversal")
}

func TestRoleRequest_CapabilityWithDelimiterIsDecidable(t *testing.T) {
	f := newFixture(t, time.Hour)

	ref, err := f.svc.SubmitRole(context.Background(), requesterID, "Requester", "regional:lead")
	require.NoError(t, err)

	buttons := f.gw.sentButtons(ref.MessageID)
	require.Len(t, buttons, 2)
	f.click(ref, reviewerID, buttons[0].CustomID)

	texts := f.gw.replyTexts(reviewerID)
	for _, text := range texts {
		assert.NotContains(t, text, "malformed")
	}

	held, _ := f.gw.HasCapability(context.Background(), requesterID, "regional:lead")
	assert.True(t, held)
	require.Eventually(t, func() bool { return f.svc.PendingCount() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestRoleRequest_DeclinedLeavesCapabilityAbsent(t *testing.T) {
	f := newFixture(t, time.Hour)

	ref, err := f.svc.SubmitRole(context.Background(), requesterID, "Requester", "field-agent")
	require.NoError(t, err)

	buttons := f.gw.sentButtons(ref.MessageID)
	f.click(ref, reviewerID, buttons[1].CustomID)

	held, _ := f.gw.HasCapability(context.Background(), requesterID, "field-agent")
	assert.False(t, held)

	edit, ok := f.gw.lastEdit(ref.MessageID)
	require.True(t, ok)
	assert.Equal(t, "Declined by "+reviewerID, embedStatus(edit))
}

func TestRevertLeave_SkipsWhenCapabilityAlreadyAbsent(t *testing.T) {
	f := newFixture(t, time.Hour)

	// Not held: the reversal is a silent no-op.
	f.svc.revertLeave(context.Background(), requesterID, leaveCap)
	held, _ := f.gw.HasCapability(context.Background(), requesterID, leaveCap)
	assert.False(t, held)

	// Held: the reversal revokes.
	f.gw.grant(requesterID, leaveCap)
	f.svc.revertLeave(context.Background(), requesterID, leaveCap)
	held, _ = f.gw.HasCapability(context.Background(), requesterID, leaveCap)
	assert.False(t, held)
}

func TestHandleLateDecision_AnswersAfterExpiry(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)

	ref, err := f.svc.SubmitLeave(context.Background(), requesterID, "Requester", 1)
	require.NoError(t, err)
	buttons := f.gw.sentButtons(ref.MessageID)

	require.Eventually(t, func() bool { return f.svc.PendingCount() == 0 },
		2*time.Second, 5*time.Millisecond)

	f.click(ref, reviewerID, buttons[0].CustomID)
	texts := f.gw.replyTexts(reviewerID)
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[len(texts)-1], "already been resolved or has expired")
}
