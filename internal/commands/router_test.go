package commands

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/nia-ops/warden/internal/approval"
	"github.com/nia-ops/warden/internal/badge"
	"github.com/nia-ops/warden/internal/models"
	"github.com/nia-ops/warden/internal/platform"
	"github.com/nia-ops/warden/internal/repository"
	"github.com/nia-ops/warden/internal/roster"
	"github.com/nia-ops/warden/internal/scheduler"
	"github.com/nia-ops/warden/internal/sticky"
)

type sentMessage struct {
	channelID string
	msg       platform.Message
	ref       platform.MessageRef
}

// fakeGateway records outbound traffic and serves capability checks
// from an in-memory map.
type fakeGateway struct {
	mu      sync.Mutex
	sent    []sentMessage
	edits   map[string]platform.Message
	replies []string
	caps    map[string]bool // "member/capability"
	nextID  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		edits: make(map[string]platform.Message),
		caps:  make(map[string]bool),
	}
}

func (f *fakeGateway) SendMessage(ctx context.Context, channelID string, msg platform.Message) (platform.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ref := platform.MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("m_%d", f.nextID)}
	f.sent = append(f.sent, sentMessage{channelID: channelID, msg: msg, ref: ref})
	return ref, nil
}

func (f *fakeGateway) EditMessage(ctx context.Context, ref platform.MessageRef, msg platform.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[ref.MessageID] = msg
	return nil
}

func (f *fakeGateway) DeleteMessage(ctx context.Context, ref platform.MessageRef) error {
	return nil
}

func (f *fakeGateway) ReplyEphemeral(ctx context.Context, ev platform.Event, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeGateway) HasCapability(ctx context.Context, memberID, capability string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caps[memberID+"/"+capability], nil
}

func (f *fakeGateway) GrantCapability(ctx context.Context, memberID, capability string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caps[memberID+"/"+capability] = true
	return nil
}

func (f *fakeGateway) RevokeCapability(ctx context.Context, memberID, capability string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.caps, memberID+"/"+capability)
	return nil
}

func (f *fakeGateway) lastSent(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func (f *fakeGateway) lastReply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

type fixture struct {
	gw     *fakeGateway
	router *Router
	db     *sql.DB
}

const schema = `
CREATE TABLE officers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	member_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	badge_number TEXT NOT NULL,
	timezone TEXT NOT NULL DEFAULT '',
	onboarded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE punishments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	member_id TEXT NOT NULL,
	member_name TEXT NOT NULL,
	type TEXT NOT NULL,
	reason TEXT NOT NULL,
	executor_id TEXT NOT NULL,
	executor_name TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE member_roles (
	member_id TEXT NOT NULL,
	role TEXT NOT NULL,
	granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (member_id, role)
);
`

func newTestWorkbookFile(t *testing.T) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", "Employee Data"))
	_, err := f.NewSheet("Master Roster")
	require.NoError(t, err)

	require.NoError(t, f.SetCellValue("Employee Data", "B23", "00101"))
	require.NoError(t, f.SetCellValue("Master Roster", "B5", "AGT"))
	require.NoError(t, f.SetCellValue("Master Roster", "C5", "Open Slot"))

	path := filepath.Join(t.TempDir(), "roster.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func newFixture(t *testing.T, badgeURL string) *fixture {
	t.Helper()
	logger := zap.NewNop()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(schema)
	require.NoError(t, err)

	gw := newFakeGateway()
	dispatcher := platform.NewDispatcher()
	sched := scheduler.New(logger)
	t.Cleanup(sched.Close)

	approvals := approval.NewService(approval.Config{
		ReviewChannelID:    "oc_review",
		ApproverCapability: "approver",
		LeaveCapability:    "on_leave",
		RequestTTL:         time.Second,
	}, gw, dispatcher, sched, logger)

	deps := Deps{
		Gateway:     gw,
		Dispatcher:  dispatcher,
		Approval:    approvals,
		Sticky:      sticky.NewRegistry(gw, dispatcher, time.Second, logger),
		Punishments: repository.NewPunishmentRepository(db, logger),
		Officers:    repository.NewOfficerRepository(db, logger),
		Roster: roster.NewWorkbook(newTestWorkbookFile(t), "Employee Data", "Master Roster",
			map[string]string{"Agent": "D5:D7"}, logger),
		Badges: badge.NewGenerator(badgeURL, "NATIONAL INTELLIGENCE", t.TempDir(), logger),
		Logger: logger,
	}

	router := NewRouter(Config{
		Prefix:          "n!",
		AdminCapability: "admin",
		AgencyName:      "National Intelligence",
	}, deps)

	return &fixture{gw: gw, router: router, db: db}
}

func (fx *fixture) message(actorID, channelID, content string) platform.Event {
	return platform.Event{
		Type:      platform.EventMessage,
		ChannelID: channelID,
		ActorID:   actorID,
		ActorName: actorID,
		Content:   content,
		Timestamp: time.Now(),
	}
}

func (fx *fixture) run(content string) {
	fx.router.HandleEvent(context.Background(), fx.message("u_actor", "oc_general", content))
}

func (fx *fixture) makeAdmin(memberID string) {
	fx.gw.mu.Lock()
	defer fx.gw.mu.Unlock()
	fx.gw.caps[memberID+"/admin"] = true
}

func TestRouterIgnoresUnprefixedMessages(t *testing.T) {
	fx := newFixture(t, "")
	fx.run("just chatting")
	assert.Empty(t, fx.gw.sent)
	assert.Empty(t, fx.gw.replies)
}

func TestRouterIgnoresUnknownCommand(t *testing.T) {
	fx := newFixture(t, "")
	fx.run("n!selfdestruct now")
	assert.Empty(t, fx.gw.sent)
	assert.Empty(t, fx.gw.replies)
}

func TestPingEditsWithLatency(t *testing.T) {
	fx := newFixture(t, "")
	fx.run("n!ping")

	require.Len(t, fx.gw.sent, 1)
	assert.Equal(t, "Pinging...", fx.gw.sent[0].msg.Text)

	edited, ok := fx.gw.edits[fx.gw.sent[0].ref.MessageID]
	require.True(t, ok)
	assert.Contains(t, edited.Text, "Pong!")
}

func TestLeaveCommandSubmitsRequest(t *testing.T) {
	fx := newFixture(t, "")
	fx.run("n!loa 3")

	require.Len(t, fx.gw.sent, 1)
	assert.Equal(t, "oc_review", fx.gw.sent[0].channelID)
	require.NotNil(t, fx.gw.sent[0].msg.Embed)
	assert.Equal(t, "Leave of Absence Request", fx.gw.sent[0].msg.Embed.Title)
	assert.Equal(t, "Your leave request has been submitted for review.", fx.gw.lastReply())
}

func TestLeaveCommandRejectsBadDuration(t *testing.T) {
	fx := newFixture(t, "")

	fx.run("n!loa zero")
	assert.Equal(t, "The number of days must be a whole number.", fx.gw.lastReply())

	fx.run("n!loa -2")
	assert.Equal(t, "The number of days must be greater than zero.", fx.gw.lastReply())

	assert.Empty(t, fx.gw.sent)
}

func TestRoleCommandSubmitsRequest(t *testing.T) {
	fx := newFixture(t, "")
	fx.run("n!requestrole Field Training Officer")

	require.Len(t, fx.gw.sent, 1)
	require.NotNil(t, fx.gw.sent[0].msg.Embed)
	assert.Equal(t, "Role Request", fx.gw.sent[0].msg.Embed.Title)
	assert.Contains(t, fx.gw.sent[0].msg.Embed.Description, "Field Training Officer")
}

func TestStickyCommand(t *testing.T) {
	fx := newFixture(t, "")

	fx.run("n!sticky stick Read the pinned rules.")
	assert.Equal(t, "Sticky message has been set.", fx.gw.lastReply())
	require.Len(t, fx.gw.sent, 1)
	assert.Equal(t, "Read the pinned rules.", fx.gw.sent[0].msg.Text)

	fx.run("n!sticky unstick")
	assert.Equal(t, "Sticky message successfully removed from this channel.", fx.gw.lastReply())

	fx.run("n!sticky unstick")
	assert.Equal(t, "There is no sticky message set for this channel.", fx.gw.lastReply())

	fx.run("n!sticky sideways")
	assert.Equal(t, `Please specify either "stick" or "unstick".`, fx.gw.lastReply())
}

func TestPunishRequiresAdmin(t *testing.T) {
	fx := newFixture(t, "")
	fx.run("n!punish u_target strike ignored orders")

	assert.Equal(t, "You do not have the required role to execute this command.", fx.gw.lastReply())

	var n int
	require.NoError(t, fx.db.QueryRow("SELECT COUNT(*) FROM punishments").Scan(&n))
	assert.Zero(t, n)
}

func TestPunishInsertsRecord(t *testing.T) {
	fx := newFixture(t, "")
	fx.makeAdmin("u_actor")

	fx.run("n!punish u_target strike ignored direct orders")

	last := fx.gw.lastSent(t)
	require.NotNil(t, last.msg.Embed)
	assert.Equal(t, "Punishment Assigned", last.msg.Embed.Title)

	var storedType, reason string
	require.NoError(t, fx.db.QueryRow("SELECT type, reason FROM punishments WHERE member_id = ?", "u_target").
		Scan(&storedType, &reason))
	assert.Equal(t, models.PunishmentStrike, storedType)
	assert.Equal(t, "ignored direct orders", reason)
}

func TestPunishTerminationUsesDangerColor(t *testing.T) {
	fx := newFixture(t, "")
	fx.makeAdmin("u_actor")

	fx.run("n!punish u_target termination repeated strikes")

	last := fx.gw.lastSent(t)
	require.NotNil(t, last.msg.Embed)
	assert.Equal(t, colorDanger, last.msg.Embed.Color)
}

func TestPunishmentsListsRecords(t *testing.T) {
	fx := newFixture(t, "")
	fx.makeAdmin("u_actor")

	fx.run("n!punish u_target verbal first offense")
	fx.run("n!punish u_target written second offense")
	fx.run("n!punishments u_target")

	last := fx.gw.lastSent(t)
	require.NotNil(t, last.msg.Embed)
	assert.Len(t, last.msg.Embed.Fields, 2)
}

func TestPunishmentsEmptyForCleanMember(t *testing.T) {
	fx := newFixture(t, "")
	fx.run("n!punishments u_saint")
	assert.Equal(t, "No punishments found for u_saint.", fx.gw.lastReply())
}

func TestPunishmentRemove(t *testing.T) {
	fx := newFixture(t, "")
	fx.makeAdmin("u_actor")

	fx.run("n!punish u_target verbal first offense")

	var id int64
	require.NoError(t, fx.db.QueryRow("SELECT id FROM punishments WHERE member_id = ?", "u_target").Scan(&id))

	fx.run(fmt.Sprintf("n!punishmentremove u_target %d", id))

	last := fx.gw.lastSent(t)
	require.NotNil(t, last.msg.Embed)
	assert.Equal(t, "Punishment Removed", last.msg.Embed.Title)

	var n int
	require.NoError(t, fx.db.QueryRow("SELECT COUNT(*) FROM punishments").Scan(&n))
	assert.Zero(t, n)
}

func TestPunishmentRemoveWrongMember(t *testing.T) {
	fx := newFixture(t, "")
	fx.makeAdmin("u_actor")

	fx.run("n!punish u_target verbal first offense")
	fx.run("n!punishmentremove u_other 1")

	assert.Contains(t, fx.gw.lastReply(), "No punishment with ID")
}

func TestOnboardMoveRemoveLifecycle(t *testing.T) {
	fx := newFixture(t, "")
	fx.makeAdmin("u_actor")

	fx.run("n!onboard u_rookie EST Jane Doe")
	last := fx.gw.lastSent(t)
	require.NotNil(t, last.msg.Embed)
	assert.Equal(t, "Officer Onboarded", last.msg.Embed.Title)

	officer, err := repositoryOfficer(fx, "u_rookie")
	require.NoError(t, err)
	require.NotNil(t, officer)
	assert.Equal(t, "00101", officer.BadgeNumber)

	fx.run("n!move u_rookie Agent")
	last = fx.gw.lastSent(t)
	require.NotNil(t, last.msg.Embed)
	assert.Equal(t, "Officer Moved", last.msg.Embed.Title)

	fx.run("n!rosterremove u_rookie")
	last = fx.gw.lastSent(t)
	require.NotNil(t, last.msg.Embed)
	assert.Equal(t, "Officer Removed from Roster", last.msg.Embed.Title)

	officer, err = repositoryOfficer(fx, "u_rookie")
	require.NoError(t, err)
	assert.Nil(t, officer)
}

func repositoryOfficer(fx *fixture, memberID string) (*models.Officer, error) {
	repo := repository.NewOfficerRepository(fx.db, zap.NewNop())
	return repo.GetByMemberID(memberID)
}

func TestMoveUnknownOfficer(t *testing.T) {
	fx := newFixture(t, "")
	fx.makeAdmin("u_actor")

	fx.run("n!move u_ghost Agent")
	assert.Equal(t, "No badge number found for u_ghost.", fx.gw.lastReply())
}

func TestMoveByBadgeNumber(t *testing.T) {
	fx := newFixture(t, "")
	fx.makeAdmin("u_actor")

	fx.run("n!onboard u_rookie EST Jane Doe")

	fx.run("n!move 00101 Agent")
	last := fx.gw.lastSent(t)
	require.NotNil(t, last.msg.Embed)
	assert.Equal(t, "Officer Moved", last.msg.Embed.Title)
}

func TestMoveUnknownRankListsConfiguredRanks(t *testing.T) {
	fx := newFixture(t, "")
	fx.makeAdmin("u_actor")

	fx.run("n!onboard u_rookie EST Jane Doe")

	fx.run("n!move u_rookie Captain")
	reply := fx.gw.lastReply()
	assert.Contains(t, reply, "Unknown rank **Captain**")
	assert.Contains(t, reply, "Valid ranks: Agent")
}

func TestBadgeCommandAttachesImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	fx := newFixture(t, srv.URL)
	fx.makeAdmin("u_actor")
	fx.run("n!onboard u_actor EST Jane Doe")

	fx.run("n!badge patrol Agent")

	last := fx.gw.lastSent(t)
	assert.Equal(t, "Here is your badge!", last.msg.Text)
	assert.NotEmpty(t, last.msg.AttachmentPath)
}

func TestBadgeCommandWithoutOnboarding(t *testing.T) {
	fx := newFixture(t, "")
	fx.run("n!badge patrol Agent")
	assert.Contains(t, fx.gw.lastReply(), "No badge number or name found")
}

func TestCreateEmbed(t *testing.T) {
	fx := newFixture(t, "")
	fx.makeAdmin("u_actor")

	fx.run(`n!createembed title="Patrol Logs" content="Post your logs here." color=#ff0000`)

	last := fx.gw.lastSent(t)
	require.NotNil(t, last.msg.Embed)
	assert.Equal(t, "Patrol Logs", last.msg.Embed.Title)
	assert.Equal(t, "Post your logs here.", last.msg.Embed.Description)
	assert.Equal(t, "#ff0000", last.msg.Embed.Color)
	assert.Equal(t, "oc_general", last.channelID)
}

func TestLateButtonClickGetsResolvedNotice(t *testing.T) {
	fx := newFixture(t, "")

	tok := approval.DecisionToken{
		Action:      approval.ActionApprove,
		Kind:        approval.KindLeave,
		RequesterID: "u_actor",
		SubjectID:   "u_actor",
		Param:       "3",
	}
	fx.router.HandleEvent(context.Background(), platform.Event{
		Type:      platform.EventButtonClick,
		ChannelID: "oc_review",
		MessageID: "m_gone",
		ActorID:   "u_reviewer",
		CustomID:  tok.Encode(),
	})

	assert.Equal(t, "This request has already been resolved or has expired.", fx.gw.lastReply())
}

func TestStickyRepostsUnderTraffic(t *testing.T) {
	fx := newFixture(t, "")

	fx.run("n!sticky stick Read the pinned rules.")
	firstRef := fx.gw.sent[0].ref

	fx.run("hello everyone")

	require.Eventually(t, func() bool {
		fx.gw.mu.Lock()
		defer fx.gw.mu.Unlock()
		return len(fx.gw.sent) >= 2
	}, time.Second, 10*time.Millisecond)

	last := fx.gw.lastSent(t)
	assert.Equal(t, "Read the pinned rules.", last.msg.Text)
	assert.NotEqual(t, firstRef.MessageID, last.ref.MessageID)
}
