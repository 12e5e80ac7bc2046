// internal/directory/directory_test.go
package directory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/studychat/internal/types"
)

// fakeAPI is a scriptable SessionAPI with call counting and optional
// per-call blocking.
type fakeAPI struct {
	mu       sync.Mutex
	active   map[types.ChatCategory][]*types.Session
	archived map[types.ChatCategory][]*types.Session

	listCalls atomic.Int64
	block     chan struct{} // when non-nil, list calls wait on it
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		active:   make(map[types.ChatCategory][]*types.Session),
		archived: make(map[types.ChatCategory][]*types.Session),
	}
}

func (f *fakeAPI) ListSessions(_ context.Context, category types.ChatCategory) ([]*types.Session, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Session(nil), f.active[category]...), nil
}

func (f *fakeAPI) setBlock(block chan struct{}) {
	f.mu.Lock()
	f.block = block
	f.mu.Unlock()
}

func (f *fakeAPI) ListArchivedSessions(_ context.Context, category types.ChatCategory) ([]*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Session(nil), f.archived[category]...), nil
}

func (f *fakeAPI) CreateSession(_ context.Context, category types.ChatCategory) (*types.Session, error) {
	return &types.Session{ID: "new", ChatType: category}, nil
}

func (f *fakeAPI) ArchiveSession(_ context.Context, id types.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for cat, list := range f.active {
		for i, s := range list {
			if s.ID == id {
				f.active[cat] = append(list[:i:i], list[i+1:]...)
				s.Status = types.SessionArchived
				f.archived[cat] = append(f.archived[cat], s)
				return nil
			}
		}
	}
	return nil
}

func (f *fakeAPI) RestoreSession(_ context.Context, id types.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for cat, list := range f.archived {
		for i, s := range list {
			if s.ID == id {
				f.archived[cat] = append(list[:i:i], list[i+1:]...)
				s.Status = types.SessionActive
				f.active[cat] = append(f.active[cat], s)
				return nil
			}
		}
	}
	return nil
}

func (f *fakeAPI) ListMessages(_ context.Context, _ types.SessionID) ([]*types.Message, error) {
	return nil, nil
}

func (f *fakeAPI) GenerateTitle(_ context.Context, _ types.SessionID) (string, error) {
	return "", nil
}

func TestFetchCachesPerCategory(t *testing.T) {
	api := newFakeAPI()
	api.active[types.CategoryGeneral] = []*types.Session{{ID: "g1", ChatType: types.CategoryGeneral}}
	api.active[types.CategoryAdmission] = []*types.Session{{ID: "a1", ChatType: types.CategoryAdmission}}
	d := New(api)

	general, err := d.Fetch(context.Background(), types.CategoryGeneral)
	if err != nil {
		t.Fatal(err)
	}
	if len(general) != 1 || general[0].ID != "g1" {
		t.Errorf("unexpected list: %+v", general)
	}

	if _, ok := d.Cached(types.CategoryGeneral); !ok {
		t.Error("expected general cache populated")
	}
	if _, ok := d.Cached(types.CategoryAdmission); ok {
		t.Error("admission cache must be independent")
	}
}

func TestConcurrentFetchesCollapse(t *testing.T) {
	api := newFakeAPI()
	block := make(chan struct{})
	api.setBlock(block)
	api.active[types.CategoryGeneral] = []*types.Session{{ID: "g1"}}
	d := New(api)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Fetch(context.Background(), types.CategoryGeneral)
		}()
	}

	// Give all five a chance to join the flight, then release it.
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	if calls := api.listCalls.Load(); calls != 1 {
		t.Errorf("expected 1 backend call for 5 concurrent fetches, got %d", calls)
	}
}

func TestStaleInFlightResponseDiscarded(t *testing.T) {
	api := newFakeAPI()
	blockFirst := make(chan struct{})
	api.setBlock(blockFirst)
	api.active[types.CategoryGeneral] = []*types.Session{{ID: "old"}}
	d := New(api)

	// First fetch hangs on the backend.
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = d.Fetch(context.Background(), types.CategoryGeneral)
	}()
	time.Sleep(20 * time.Millisecond)

	// The backend state changes and a newer fetch completes first.
	api.mu.Lock()
	api.active[types.CategoryGeneral] = []*types.Session{{ID: "new"}}
	api.mu.Unlock()
	d.Invalidate(types.CategoryGeneral)
	api.setBlock(nil)
	fresh, err := d.Fetch(context.Background(), types.CategoryGeneral)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 || fresh[0].ID != "new" {
		t.Fatalf("unexpected fresh list: %+v", fresh)
	}

	// Now the old in-flight response lands; it must not clobber the cache.
	close(blockFirst)
	<-firstDone

	cached, ok := d.Cached(types.CategoryGeneral)
	if !ok || len(cached) != 1 || cached[0].ID != "new" {
		t.Errorf("stale response overwrote fresher state: %+v", cached)
	}
}

func TestArchiveRestoreRoundTrip(t *testing.T) {
	api := newFakeAPI()
	api.active[types.CategoryGeneral] = []*types.Session{{ID: "abc"}, {ID: "def"}}
	d := New(api)
	ctx := context.Background()

	if err := d.Archive(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	// Consistent-after-confirm: cache untouched until re-fetch.
	active, _ := d.Fetch(ctx, types.CategoryGeneral)
	archived, _ := d.FetchArchived(ctx, types.CategoryGeneral)
	if containsID(active, "abc") {
		t.Error("archived session still in active list")
	}
	if !containsID(archived, "abc") {
		t.Error("archived session missing from archived list")
	}

	if err := d.Restore(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	active, _ = d.Fetch(ctx, types.CategoryGeneral)
	archived, _ = d.FetchArchived(ctx, types.CategoryGeneral)
	if !containsID(active, "abc") {
		t.Error("restored session missing from active list")
	}
	if containsID(archived, "abc") {
		t.Error("restored session still in archived list")
	}

	// No duplicates in either list.
	if countID(active, "abc") != 1 || countID(archived, "abc") != 0 {
		t.Errorf("duplicate entries after round trip: active=%+v archived=%+v", active, archived)
	}
}

func TestLookupAcrossModes(t *testing.T) {
	api := newFakeAPI()
	api.active[types.CategoryGeneral] = []*types.Session{{ID: "act"}}
	api.archived[types.CategoryGeneral] = []*types.Session{{ID: "arc"}}
	d := New(api)
	ctx := context.Background()
	_, _ = d.Fetch(ctx, types.CategoryGeneral)
	_, _ = d.FetchArchived(ctx, types.CategoryGeneral)

	if _, archived, ok := d.Lookup("act"); !ok || archived {
		t.Error("expected act found in active mode")
	}
	if _, archived, ok := d.Lookup("arc"); !ok || !archived {
		t.Error("expected arc found in archived mode")
	}
	if _, _, ok := d.Lookup("missing"); ok {
		t.Error("expected miss for unknown id")
	}
}

func TestSortPolicy(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions := []*types.Session{
		{ID: "created-late", CreatedAt: base.Add(3 * time.Hour)},
		{ID: "updated-latest", CreatedAt: base, UpdatedAt: base.Add(5 * time.Hour)},
		{ID: "updated-old", CreatedAt: base, UpdatedAt: base.Add(1 * time.Hour)},
	}
	SortSessions(sessions)

	want := []types.SessionID{"updated-latest", "created-late", "updated-old"}
	for i, id := range want {
		if sessions[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, sessions[i].ID)
		}
	}
}

func containsID(sessions []*types.Session, id types.SessionID) bool {
	return countID(sessions, id) > 0
}

func countID(sessions []*types.Session, id types.SessionID) int {
	var n int
	for _, s := range sessions {
		if s.ID == id {
			n++
		}
	}
	return n
}
