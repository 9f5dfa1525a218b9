package enrich

import (
	"sync"
	"testing"

	"github.com/mvanwyck/reverie/pkg/convo"
)

// ─── Insert uniqueness ────────────────────────────────────────────────────────

func TestInsertUniqueAcrossCollections(t *testing.T) {
	t.Parallel()

	st := NewState(&convo.Session{ID: 1}, &convo.Turn{ID: 10}, nil)

	if !st.Insert(convo.ContextData{ID: 7, Type: convo.TypeMemory, Content: "first"}) {
		t.Fatal("first insert should report new")
	}
	// Same id delivered by another enricher, even under a different type.
	if st.Insert(convo.ContextData{ID: 7, Type: convo.TypeInsight, Content: "second"}) {
		t.Error("duplicate id insert should be a no-op")
	}

	memories := st.Items(convo.TypeMemory)
	if len(memories) != 1 || memories[0].Content != "first" {
		t.Errorf("memories = %+v, want the first-inserted item only", memories)
	}
	if got := st.Items(convo.TypeInsight); len(got) != 0 {
		t.Errorf("insights = %+v, want empty", got)
	}
}

func TestInsertConcurrent(t *testing.T) {
	t.Parallel()

	st := NewState(&convo.Session{ID: 1}, &convo.Turn{ID: 10}, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := int64(1); id <= 50; id++ {
				st.Insert(convo.ContextData{ID: id, Type: convo.TypeMemory})
			}
		}()
	}
	wg.Wait()

	if got := len(st.Items(convo.TypeMemory)); got != 50 {
		t.Errorf("item count after concurrent inserts = %d, want 50", got)
	}
}

// ─── Derived fields ───────────────────────────────────────────────────────────

func TestItemIDsIncludesUserProfile(t *testing.T) {
	t.Parallel()

	st := NewState(&convo.Session{ID: 1}, &convo.Turn{ID: 10}, nil)
	st.Insert(convo.ContextData{ID: 3, Type: convo.TypeMemory})
	st.Insert(convo.ContextData{ID: 1, Type: convo.TypeQuote})
	st.SetUserProfile(&convo.ContextData{ID: 9, Type: convo.TypeCharacterProfile, Name: "Mira"})

	ids := st.ItemIDs()
	want := []int64{1, 3, 9}
	if len(ids) != len(want) {
		t.Fatalf("ItemIDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ItemIDs()[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
	if got := st.UserName(); got != "Mira" {
		t.Errorf("UserName() = %q, want Mira", got)
	}
}

func TestUserNameDefault(t *testing.T) {
	t.Parallel()

	st := NewState(&convo.Session{ID: 1}, &convo.Turn{ID: 10}, nil)
	if got := st.UserName(); got != "User" {
		t.Errorf("UserName() = %q, want User", got)
	}
}

func TestSetRecentTurnsDerivesPrevious(t *testing.T) {
	t.Parallel()

	st := NewState(&convo.Session{ID: 1}, &convo.Turn{ID: 10}, nil)
	st.SetRecentTurns([]convo.Turn{
		{ID: 1, Response: "older"},
		{ID: 2, Response: "newest"},
	})

	if prev := st.PreviousTurn(); prev == nil || prev.ID != 2 {
		t.Errorf("PreviousTurn() = %+v, want turn 2", prev)
	}
	if got := st.PreviousResponse(); got != "newest" {
		t.Errorf("PreviousResponse() = %q, want newest", got)
	}
}

func TestPersonaNameSeeded(t *testing.T) {
	t.Parallel()

	st := NewState(&convo.Session{ID: 1}, &convo.Turn{ID: 10},
		&convo.SystemMessage{Name: "Aria"})
	if st.PersonaName != "Aria" {
		t.Errorf("PersonaName = %q, want Aria", st.PersonaName)
	}
}
