// Package sticky keeps at most one managed "sticky" message per channel. The
// message is reposted underneath every new non-bot message and disappears
// after the channel has been quiet for the idle window.
package sticky

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nia-ops/warden/internal/collector"
	"github.com/nia-ops/warden/internal/platform"
)

// DefaultIdle is how long a channel may stay quiet before its sticky entry
// is cleared.
const DefaultIdle = 60 * time.Second

var (
	// ErrNothingToUnstick is returned when the channel has no sticky entry.
	ErrNothingToUnstick = errors.New("no sticky message set for this channel")

	// ErrAlreadyRemoved is returned when the entry existed but its artifact
	// was already deleted externally. The entry is still cleared.
	ErrAlreadyRemoved = errors.New("sticky message was already removed")
)

// Entry is the live record for one channel's sticky message.
type Entry struct {
	ChannelID string
	Content   string
	Artifact  platform.MessageRef

	collector *collector.Collector
}

// Registry maps channel IDs to at most one live sticky entry each.
type Registry struct {
	gw         platform.Gateway
	dispatcher *platform.Dispatcher
	idle       time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry creates a sticky registry. A non-positive idle falls back to
// DefaultIdle.
func NewRegistry(gw platform.Gateway, dispatcher *platform.Dispatcher, idle time.Duration, logger *zap.Logger) *Registry {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Registry{
		gw:         gw,
		dispatcher: dispatcher,
		idle:       idle,
		logger:     logger,
		entries:    make(map[string]*Entry),
	}
}

// Stick installs content as the channel's sticky message, retiring any
// previous entry for the same channel first. Replacement is never additive:
// the old collector is stopped and the old artifact deleted best-effort.
func (r *Registry) Stick(ctx context.Context, channelID, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[channelID]; ok {
		existing.collector.Stop()
		r.deleteArtifact(ctx, existing.Artifact)
		delete(r.entries, channelID)
	}

	ref, err := r.gw.SendMessage(ctx, channelID, platform.Message{Text: content})
	if err != nil {
		return err
	}

	entry := &Entry{
		ChannelID: channelID,
		Content:   content,
		Artifact:  ref,
	}
	entry.collector = collector.Open(r.dispatcher, collector.Config{
		Idle: r.idle,
		Filter: func(ev platform.Event) bool {
			return ev.Type == platform.EventMessage &&
				ev.ChannelID == channelID &&
				!ev.ActorIsBot
		},
		OnCollect: func(ev platform.Event) {
			r.repost(context.Background(), channelID, entry)
		},
		OnEnd: func(collected int, reason collector.EndReason) {
			r.retire(channelID, entry, reason)
		},
	})
	r.entries[channelID] = entry

	r.logger.Info("sticky message set",
		zap.String("channel_id", channelID),
		zap.String("message_id", ref.MessageID))
	return nil
}

// Unstick clears the channel's sticky entry. The entry is removed in every
// case; the error distinguishes "nothing there" and "artifact already gone".
func (r *Registry) Unstick(ctx context.Context, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[channelID]
	if !ok {
		return ErrNothingToUnstick
	}

	entry.collector.Stop()
	delete(r.entries, channelID)

	err := r.gw.DeleteMessage(ctx, entry.Artifact)
	if errors.Is(err, platform.ErrMessageGone) {
		return ErrAlreadyRemoved
	}
	if err != nil {
		// Best-effort cleanup: surfaced to logs, never aborts the unstick.
		r.logger.Error("sticky artifact delete failed",
			zap.String("channel_id", channelID),
			zap.Error(err))
	}

	r.logger.Info("sticky message removed", zap.String("channel_id", channelID))
	return nil
}

// Entry returns a copy of the live entry for the channel, if any.
func (r *Registry) Entry(channelID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[channelID]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Len returns the number of channels with a live sticky entry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// repost replaces the sticky artifact after someone else posted in the
// channel. The registry entry is the single source of truth for the current
// artifact: the deletion targets the reference held at call time and the
// swap happens under the registry lock.
func (r *Registry) repost(ctx context.Context, channelID string, entry *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[channelID]
	if !ok || current != entry {
		// A concurrent stick or unstick replaced this entry already.
		return
	}

	r.deleteArtifact(ctx, entry.Artifact)

	ref, err := r.gw.SendMessage(ctx, channelID, platform.Message{Text: entry.Content})
	if err != nil {
		r.logger.Error("sticky repost failed",
			zap.String("channel_id", channelID),
			zap.Error(err))
		return
	}
	entry.Artifact = ref
}

// retire removes the entry when its collector ends, whether by idle timeout
// or an explicit stop. A newer entry under the same key is left alone. Idle
// expiry also clears the artifact so the channel holds no managed message
// afterwards; stop-driven ends leave cleanup to whoever stopped it.
func (r *Registry) retire(channelID string, entry *Entry, reason collector.EndReason) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[channelID]
	if !ok || current != entry {
		return
	}
	delete(r.entries, channelID)

	if reason == collector.ReasonIdle {
		r.deleteArtifact(context.Background(), entry.Artifact)
		r.logger.Info("sticky entry expired idle",
			zap.String("channel_id", channelID))
	}
}

func (r *Registry) deleteArtifact(ctx context.Context, ref platform.MessageRef) {
	if ref.IsZero() {
		return
	}
	err := r.gw.DeleteMessage(ctx, ref)
	if err == nil || errors.Is(err, platform.ErrMessageGone) {
		return
	}
	r.logger.Error("sticky artifact delete failed",
		zap.String("message_id", ref.MessageID),
		zap.Error(err))
}
