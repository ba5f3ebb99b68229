// Package session provides the per-session discovery cache.
//
// A [Session] holds at most one [Entry]. Readers always observe the last
// committed entry; writers are serialized. Invalidation discards the whole
// entry. Sessions never share state, so separate sessions need no
// coordination.
package session

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/macropower/loadout/pkg/log"
	"github.com/macropower/loadout/pkg/manifest"
)

// Key identifies a session.
type Key string

// NewKey returns a new random session key.
func NewKey() Key {
	return Key(uuid.NewString())
}

// Trigger names the reason a cached entry was invalidated.
type Trigger string

const (
	TriggerNone            Trigger = ""
	TriggerManifestChanged Trigger = "manifest changed"
	TriggerRescan          Trigger = "rescan"
	TriggerUnseenSuffix    Trigger = "unseen suffix"
	TriggerContextChanged  Trigger = "context changed"
)

// Entry is a committed discovery result. Entries are never modified after
// they are stored.
type Entry[T any] struct {
	Timestamp time.Time
	Value     T
	Signature string
	Context   string
	Suffixes  []string // Sorted.
}

// Session caches the most recent discovery result of one session.
type Session[T any] struct {
	entry       atomic.Pointer[Entry[T]]
	key         Key
	lastTrigger Trigger
	mu          sync.Mutex
}

// New creates an empty [Session].
func New[T any](key Key) *Session[T] {
	return &Session[T]{key: key}
}

// Key returns the session key.
func (s *Session[T]) Key() Key {
	return s.key
}

// Get returns the committed entry, if any.
func (s *Session[T]) Get() (*Entry[T], bool) {
	e := s.entry.Load()

	return e, e != nil
}

// Put commits entry, replacing any previous one.
func (s *Session[T]) Put(entry *Entry[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entry.Store(entry)
}

// Invalidate discards the committed entry.
func (s *Session[T]) Invalidate(reason Trigger) {
	s.InvalidateContext(context.Background(), reason)
}

// InvalidateContext discards the committed entry, logging with ctx.
func (s *Session[T]) InvalidateContext(ctx context.Context, reason Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.entry.Swap(nil)
	s.lastTrigger = reason

	log.WithContext(ctx).DebugContext(ctx, "invalidate session",
		slog.String("session", string(s.key)),
		slog.String("reason", string(reason)),
		slog.Bool("had_entry", prev != nil),
	)
}

// LastTrigger returns the reason given to the most recent invalidation.
func (s *Session[T]) LastTrigger() Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastTrigger
}

// Check compares the committed entry with the current project signature,
// request context and file suffixes. It returns [TriggerNone] when the entry
// is still valid or there is no entry.
func (s *Session[T]) Check(signature, reqContext string, suffixes []string) Trigger {
	e := s.entry.Load()
	if e == nil {
		return TriggerNone
	}

	if e.Signature != signature {
		return TriggerManifestChanged
	}
	if e.Context != reqContext {
		return TriggerContextChanged
	}

	for _, suffix := range suffixes {
		if _, found := slices.BinarySearch(e.Suffixes, suffix); !found {
			return TriggerUnseenSuffix
		}
	}

	return TriggerNone
}

// Signature returns the BLAKE3 digest of the declaration files, independent
// of their order.
func Signature(files []manifest.File) string {
	sorted := slices.Clone(files)
	slices.SortFunc(sorted, func(a, b manifest.File) int {
		return strings.Compare(a.Path, b.Path)
	})

	h := blake3.New()

	var size [8]byte
	for _, f := range sorted {
		for _, part := range [][]byte{[]byte(f.Path), f.Content} {
			binary.LittleEndian.PutUint64(size[:], uint64(len(part)))
			_, _ = h.Write(size[:])
			_, _ = h.Write(part)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
