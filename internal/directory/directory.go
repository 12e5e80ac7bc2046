// internal/directory/directory.go
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/user/studychat/internal/types"
)

// listKey identifies one independently-cached collection: a category in
// either active or archived mode.
type listKey struct {
	category types.ChatCategory
	archived bool
}

func (k listKey) String() string {
	mode := "active"
	if k.archived {
		mode = "archived"
	}
	return string(k.category) + ":" + mode
}

// ListState is a point-in-time snapshot of one cached collection. Loading
// and error state are tracked per collection, never shared across
// categories or modes.
type ListState struct {
	Sessions  []*types.Session
	Loading   bool
	Err       error
	FetchedAt time.Time
}

// Directory caches the active and archived session lists per chat category.
// Concurrent fetches for the same category+mode are collapsed into one
// backend call, and a superseded in-flight response is discarded rather
// than overwriting fresher data.
//
// Archive and Restore are write passthroughs: the directory never moves
// entries between its own collections optimistically. Callers re-fetch the
// affected lists after a confirmed write, trading a brief staleness window
// for the certainty that cache and backend cannot diverge.
type Directory struct {
	api   types.SessionAPI
	group singleflight.Group

	mu        sync.Mutex
	lists     map[listKey]*ListState
	gen       map[listKey]uint64 // latest issued fetch token per collection
	committed map[listKey]uint64 // token of the last committed response
}

func New(api types.SessionAPI) *Directory {
	return &Directory{
		api:       api,
		lists:     make(map[listKey]*ListState),
		gen:       make(map[listKey]uint64),
		committed: make(map[listKey]uint64),
	}
}

// Fetch loads the active session list for a category. Idempotent and
// re-entrant safe: a fetch already in flight is joined, not duplicated.
func (d *Directory) Fetch(ctx context.Context, category types.ChatCategory) ([]*types.Session, error) {
	return d.fetch(ctx, listKey{category: category})
}

// FetchArchived loads the archived session list for a category.
func (d *Directory) FetchArchived(ctx context.Context, category types.ChatCategory) ([]*types.Session, error) {
	return d.fetch(ctx, listKey{category: category, archived: true})
}

func (d *Directory) fetch(ctx context.Context, k listKey) ([]*types.Session, error) {
	if !k.category.Valid() {
		return nil, fmt.Errorf("invalid chat category: %q", k.category)
	}

	d.mu.Lock()
	d.gen[k]++
	token := d.gen[k]
	d.stateLocked(k).Loading = true
	d.mu.Unlock()

	v, err, _ := d.group.Do(k.String(), func() (any, error) {
		if k.archived {
			return d.api.ListArchivedSessions(ctx, k.category)
		}
		return d.api.ListSessions(ctx, k.category)
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.stateLocked(k)

	// Last response wins: a slower fetch whose token was superseded by an
	// already-committed newer one must not overwrite fresher state.
	if token < d.committed[k] {
		return copySessions(st.Sessions), st.Err
	}
	d.committed[k] = token
	st.Loading = d.gen[k] > token
	st.Err = err
	if err != nil {
		return nil, err
	}
	st.Sessions = v.([]*types.Session)
	st.FetchedAt = time.Now()
	return copySessions(st.Sessions), nil
}

// Invalidate drops the cached lists for a category, so the next fetch goes
// to the backend even if an identical one is still in flight.
func (d *Directory) Invalidate(category types.ChatCategory) {
	for _, k := range []listKey{{category: category}, {category: category, archived: true}} {
		d.group.Forget(k.String())
		d.mu.Lock()
		delete(d.lists, k)
		d.mu.Unlock()
	}
}

// Cached returns the cached active list for a category without fetching.
func (d *Directory) Cached(category types.ChatCategory) ([]*types.Session, bool) {
	return d.cached(listKey{category: category})
}

// CachedArchived returns the cached archived list for a category.
func (d *Directory) CachedArchived(category types.ChatCategory) ([]*types.Session, bool) {
	return d.cached(listKey{category: category, archived: true})
}

func (d *Directory) cached(k listKey) ([]*types.Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.lists[k]
	if !ok || st.FetchedAt.IsZero() {
		return nil, false
	}
	return copySessions(st.Sessions), true
}

// State returns a snapshot of one collection's cache, including its loading
// and error state.
func (d *Directory) State(category types.ChatCategory, archived bool) ListState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.stateLocked(listKey{category: category, archived: archived})
	return ListState{
		Sessions:  copySessions(st.Sessions),
		Loading:   st.Loading,
		Err:       st.Err,
		FetchedAt: st.FetchedAt,
	}
}

// Archive marks a session archived on the backend. The cached lists are not
// touched; callers re-fetch after success.
func (d *Directory) Archive(ctx context.Context, id types.SessionID) error {
	if err := d.api.ArchiveSession(ctx, id); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return nil
}

// Restore moves an archived session back to active on the backend.
func (d *Directory) Restore(ctx context.Context, id types.SessionID) error {
	if err := d.api.RestoreSession(ctx, id); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	return nil
}

// Lookup scans every cached collection for a session id. Used for display
// state only; a miss is not an error (deep links to unknown sessions are
// adopted optimistically and resolved by the message fetch).
func (d *Directory) Lookup(id types.SessionID) (session *types.Session, archived bool, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, st := range d.lists {
		for _, s := range st.Sessions {
			if s.ID == id {
				return s, k.archived, true
			}
		}
	}
	return nil, false, false
}

// Sorted returns the cached active list for a category in presentation
// order: updated_at descending, created_at when updated_at is absent. The
// order is computed here, at read time, so message activity that touches
// updated_at is reflected without a re-sort step.
func (d *Directory) Sorted(category types.ChatCategory) []*types.Session {
	sessions, _ := d.Cached(category)
	SortSessions(sessions)
	return sessions
}

// SortedArchived is Sorted over the archived collection.
func (d *Directory) SortedArchived(category types.ChatCategory) []*types.Session {
	sessions, _ := d.CachedArchived(category)
	SortSessions(sessions)
	return sessions
}

// SortSessions orders sessions in place, most recently touched first.
func SortSessions(sessions []*types.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].SortKey().After(sessions[j].SortKey())
	})
}

func (d *Directory) stateLocked(k listKey) *ListState {
	st, ok := d.lists[k]
	if !ok {
		st = &ListState{}
		d.lists[k] = st
	}
	return st
}

func copySessions(sessions []*types.Session) []*types.Session {
	if sessions == nil {
		return nil
	}
	out := make([]*types.Session, len(sessions))
	copy(out, sessions)
	return out
}
