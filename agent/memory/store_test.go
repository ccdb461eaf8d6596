package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
)

// scoredIndex returns every record of the owner, unsorted, with a score
// looked up by record text.
type scoredIndex struct {
	mu     sync.Mutex
	recs   []MemoryRecord
	scores map[string]float32
	err    error
}

func (x *scoredIndex) Put(_ context.Context, rec MemoryRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.err != nil {
		return x.err
	}
	for i := range x.recs {
		if x.recs[i].ID == rec.ID {
			x.recs[i] = rec
			return nil
		}
	}
	x.recs = append(x.recs, rec)
	return nil
}

func (x *scoredIndex) Query(_ context.Context, _ string, _ int, ownerID string) ([]MemoryRecord, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.err != nil {
		return nil, x.err
	}
	var out []MemoryRecord
	for _, r := range x.recs {
		if r.OwnerID == ownerID {
			r.Score = x.scores[r.Text]
			out = append(out, r)
		}
	}
	return out, nil
}

func (x *scoredIndex) All(ctx context.Context, ownerID string) ([]MemoryRecord, error) {
	return x.Query(ctx, "", 0, ownerID)
}

func newTestStore(t *testing.T, idx Index) *Store {
	t.Helper()
	s, err := NewStore(idx, DefaultConfig())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("mem-%02d", n)
	}
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		base = base.Add(time.Minute)
		return base
	}
	return s
}

func TestUpsertUpdatesNearDuplicateInPlace(t *testing.T) {
	t.Parallel()

	idx := &scoredIndex{scores: map[string]float32{"Lives in Madrid": 0.95}}
	s := newTestStore(t, idx)
	ctx := context.Background()

	first, err := s.Upsert(ctx, contractx.MemoryInput{Text: "Lives in Madrid", OwnerID: "u1"})
	if err != nil || first.Updated {
		t.Fatalf("first write must insert: %+v %v", first, err)
	}
	second, err := s.Upsert(ctx, contractx.MemoryInput{Text: "Lives in Madrid, Spain", OwnerID: "u1", OriginalUserMessage: "Madrid'de yaşıyorum"})
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if !second.Updated || second.ID != first.ID {
		t.Fatalf("near-duplicate must keep id %s, got %+v", first.ID, second)
	}
	if len(idx.recs) != 1 || idx.recs[0].Text != "Lives in Madrid, Spain" {
		t.Fatalf("record must be replaced in place: %+v", idx.recs)
	}
	if idx.recs[0].Source != SourceConversation || idx.recs[0].OriginalUserMessage != "Madrid'de yaşıyorum" {
		t.Fatalf("unexpected record fields: %+v", idx.recs[0])
	}
}

func TestUpsertUpdatesBestMatchAmongSeveral(t *testing.T) {
	t.Parallel()

	idx := &scoredIndex{scores: map[string]float32{
		"Works as an engineer": 0.2,
		"Lives in Madrid":      0.97,
	}}
	s := newTestStore(t, idx)
	ctx := context.Background()

	for _, text := range []string{"Works as an engineer", "Lives in Madrid"} {
		idx.recs = append(idx.recs, MemoryRecord{ID: text, OwnerID: "u1", Text: text})
	}
	res, err := s.Upsert(ctx, contractx.MemoryInput{Text: "Lives in Madrid, Spain", OwnerID: "u1"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !res.Updated || res.ID != "Lives in Madrid" {
		t.Fatalf("expected the best match to be updated, got %+v", res)
	}
	if len(idx.recs) != 2 || idx.recs[0].Text != "Works as an engineer" {
		t.Fatalf("unrelated record must stay untouched: %+v", idx.recs)
	}
}

func TestUpsertBelowThresholdInserts(t *testing.T) {
	t.Parallel()

	idx := &scoredIndex{scores: map[string]float32{"Lives in Madrid": 0.89}}
	s := newTestStore(t, idx)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, contractx.MemoryInput{Text: "Lives in Madrid", OwnerID: "u1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err := s.Upsert(ctx, contractx.MemoryInput{Text: "Works as an engineer", OwnerID: "u1"})
	if err != nil || res.Updated {
		t.Fatalf("expected insert, got %+v %v", res, err)
	}
	if len(idx.recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(idx.recs))
	}
}

func TestUpsertDedupIsOwnerScoped(t *testing.T) {
	t.Parallel()

	idx := &scoredIndex{scores: map[string]float32{"Lives in Madrid": 1}}
	s := newTestStore(t, idx)
	ctx := context.Background()

	a, _ := s.Upsert(ctx, contractx.MemoryInput{Text: "Lives in Madrid", OwnerID: "u1"})
	b, err := s.Upsert(ctx, contractx.MemoryInput{Text: "Lives in Madrid", OwnerID: "u2"})
	if err != nil || b.Updated || b.ID == a.ID {
		t.Fatalf("another owner's record must not be updated: %+v %v", b, err)
	}
}

func TestUpsertRejectsEmptyAndWrapsIndexErrors(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &scoredIndex{})
	if _, err := s.Upsert(context.Background(), contractx.MemoryInput{Text: "  "}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	broken := newTestStore(t, &scoredIndex{err: errors.New("disk full")})
	if _, err := broken.Upsert(context.Background(), contractx.MemoryInput{Text: "x"}); !errors.Is(err, contractx.ErrMemoryStore) {
		t.Fatalf("expected ErrMemoryStore, got %v", err)
	}
}

func TestSearchRanksAndTruncates(t *testing.T) {
	t.Parallel()

	idx := &scoredIndex{scores: map[string]float32{"c": 0.7, "a": 0.7, "b": 0.9, "d": 0.1}}
	idx.recs = []MemoryRecord{
		{ID: "id-c", Text: "c", OwnerID: "u1"},
		{ID: "id-d", Text: "d", OwnerID: "u1"},
		{ID: "id-a", Text: "a", OwnerID: "u1"},
		{ID: "id-b", Text: "b", OwnerID: "u1"},
		{ID: "id-x", Text: "b", OwnerID: "u2"},
	}
	s := newTestStore(t, idx)

	hits, err := s.Search(context.Background(), "where do I live", 0, "u1")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := make([]string, 0, len(hits))
	for _, h := range hits {
		got = append(got, h.ID)
	}
	want := []string{"id-b", "id-a", "id-c"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatalf("scores must not increase: %+v", hits)
		}
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	t.Parallel()

	hits, err := newTestStore(t, &scoredIndex{}).Search(context.Background(), " ", 3, "u1")
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected no hits, got %v %v", hits, err)
	}
}

func TestUpsertConcurrentSameOwnerSingleRecord(t *testing.T) {
	t.Parallel()

	idx := &scoredIndex{scores: map[string]float32{"Prefers a quiet room": 0.99}}
	s, err := NewStore(idx, DefaultConfig())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Upsert(context.Background(), contractx.MemoryInput{Text: "Prefers a quiet room", OwnerID: "u1"}); err != nil {
				t.Errorf("upsert: %v", err)
			}
		}()
	}
	wg.Wait()
	if len(idx.recs) != 1 {
		t.Fatalf("serialized writes must converge on one record, got %d", len(idx.recs))
	}
}
