package session

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdeck/internal/testutils"
	"chatdeck/pkg/chattypes"
)

var baseTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, persister *testutils.MockPersister) (*Store, *testutils.ManualClock) {
	t.Helper()
	clock := testutils.NewManualClock(baseTime)
	store := Open(persister,
		WithClock(clock.Now),
		WithIDGenerator(testutils.SequentialIDs("chat")),
	)
	return store, clock
}

func TestOpen_EmptyCreatesSession(t *testing.T) {
	persister := testutils.NewMockPersister(nil, "")
	store, _ := newTestStore(t, persister)

	require.Equal(t, 1, store.Len())
	active := store.Active()
	assert.Equal(t, "chat-1", active.ID)
	assert.Equal(t, chattypes.UntitledTitle, active.Title)
	require.Len(t, active.Messages, 1)
	assert.Equal(t, chattypes.RoleBot, active.Messages[0].Role)
	assert.Equal(t, chattypes.GreetingText, active.Messages[0].Text)
	assert.True(t, active.CreatedAt.Equal(baseTime))

	saved, lastActive := persister.Snapshot()
	assert.Len(t, saved, 1)
	assert.Equal(t, "chat-1", lastActive)
}

func TestOpen_RestoresLastActive(t *testing.T) {
	gen := testutils.NewTestDataGenerator()
	persisted := []chattypes.Session{
		gen.TitledSession("newest", "Newest", baseTime),
		gen.TitledSession("older", "Older", baseTime.Add(-time.Hour)),
	}

	tests := []struct {
		name       string
		lastActive string
		expected   string
	}{
		{name: "last active exists", lastActive: "older", expected: "older"},
		{name: "last active missing", lastActive: "gone", expected: "newest"},
		{name: "no last active", lastActive: "", expected: "newest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t, testutils.NewMockPersister(persisted, tt.lastActive))
			assert.Equal(t, tt.expected, store.ActiveID())
			assert.Equal(t, 2, store.Len(), "no session should be created when history exists")
		})
	}
}

func TestCreateSession_InsertsAtFrontAndActivates(t *testing.T) {
	store, clock := newTestStore(t, testutils.NewMockPersister(nil, ""))

	clock.Advance(time.Minute)
	second := store.CreateSession()

	assert.Equal(t, "chat-2", second.ID)
	assert.Equal(t, "chat-2", store.ActiveID())
	testutils.NewAssertionHelpers(t).AssertSessionIDs([]string{"chat-2", "chat-1"}, store.Sessions())
	assert.True(t, second.CreatedAt.Equal(baseTime.Add(time.Minute)))
}

func TestCreateSession_SkipsCollidingIDs(t *testing.T) {
	ids := []string{"dup", "dup", "", "fresh"}
	i := 0
	next := func() string {
		id := ids[i]
		i++
		return id
	}

	store := Open(testutils.NewMockPersister(nil, ""), WithIDGenerator(next))
	assert.Equal(t, "dup", store.ActiveID())

	created := store.CreateSession()
	assert.Equal(t, "fresh", created.ID)
}

func TestSelectSession(t *testing.T) {
	store, _ := newTestStore(t, testutils.NewMockPersister(nil, ""))
	store.CreateSession()

	selected, err := store.SelectSession("chat-1")
	require.NoError(t, err)
	assert.Equal(t, "chat-1", selected.ID)
	assert.Equal(t, "chat-1", store.ActiveID())

	_, err = store.SelectSession("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "chat-1", store.ActiveID(), "failed select leaves the active session alone")
}

func TestSelectOrCreate_FallsBackToNewSession(t *testing.T) {
	store, _ := newTestStore(t, testutils.NewMockPersister(nil, ""))

	got := store.SelectOrCreate("missing")
	assert.Equal(t, "chat-2", got.ID)
	assert.Equal(t, "chat-2", store.ActiveID())
	assert.Equal(t, 2, store.Len())

	got = store.SelectOrCreate("chat-1")
	assert.Equal(t, "chat-1", got.ID)
	assert.Equal(t, 2, store.Len())
}

func TestAppendMessage_TitleDerivation(t *testing.T) {
	store, _ := newTestStore(t, testutils.NewMockPersister(nil, ""))
	id := store.ActiveID()

	// Bot messages never derive a title
	require.NoError(t, store.AppendMessage(id, chattypes.BotMessage("bot talks first")))
	s, _ := store.Get(id)
	assert.Equal(t, chattypes.UntitledTitle, s.Title)

	require.NoError(t, store.AppendMessage(id, chattypes.UserMessage("Hello")))
	s, _ = store.Get(id)
	assert.Equal(t, "Hello", s.Title)

	// Second user message leaves the derived title untouched
	require.NoError(t, store.AppendMessage(id, chattypes.UserMessage("Something else entirely")))
	s, _ = store.Get(id)
	assert.Equal(t, "Hello", s.Title)
	assert.Len(t, s.Messages, 4)
}

func TestAppendMessage_TitleDerivedOnceEvenWhenPlaceholder(t *testing.T) {
	store, _ := newTestStore(t, testutils.NewMockPersister(nil, ""))
	id := store.ActiveID()

	require.NoError(t, store.AppendMessage(id, chattypes.UserMessage(chattypes.UntitledTitle)))
	require.NoError(t, store.AppendMessage(id, chattypes.UserMessage("second message")))

	s, _ := store.Get(id)
	assert.Equal(t, chattypes.UntitledTitle, s.Title)
	assert.False(t, s.IsPristine())
}

func TestAppendMessage_LongTitleTruncated(t *testing.T) {
	store, _ := newTestStore(t, testutils.NewMockPersister(nil, ""))
	id := store.ActiveID()

	long := strings.Repeat("x", 40)
	require.NoError(t, store.AppendMessage(id, chattypes.UserMessage(long)))

	s, _ := store.Get(id)
	assert.Equal(t, strings.Repeat("x", 30)+"...", s.Title)
	assert.Equal(t, long, s.Messages[1].Text, "the message itself is never truncated")
}

func TestAppendMessage_Errors(t *testing.T) {
	persister := testutils.NewMockPersister(nil, "")
	store, _ := newTestStore(t, persister)
	saves := persister.SaveCount()

	err := store.AppendMessage("missing", chattypes.UserMessage("hi"))
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.AppendMessage(store.ActiveID(), chattypes.Message{Role: "chatbot", Text: "x"})
	assert.Error(t, err)

	assert.Equal(t, saves, persister.SaveCount(), "failed operations do not write")
}

func TestDeleteSession(t *testing.T) {
	t.Run("non-active session keeps active pointer", func(t *testing.T) {
		store, _ := newTestStore(t, testutils.NewMockPersister(nil, ""))
		store.CreateSession() // chat-2 active

		store.DeleteSession("chat-1")
		assert.Equal(t, "chat-2", store.ActiveID())
		assert.Equal(t, 1, store.Len())
	})

	t.Run("active session selects newest remaining", func(t *testing.T) {
		store, _ := newTestStore(t, testutils.NewMockPersister(nil, ""))
		store.CreateSession() // chat-2
		store.CreateSession() // chat-3
		_, err := store.SelectSession("chat-2")
		require.NoError(t, err)

		store.DeleteSession("chat-2")
		assert.Equal(t, "chat-3", store.ActiveID())
		testutils.NewAssertionHelpers(t).AssertSessionIDs([]string{"chat-3", "chat-1"}, store.Sessions())
	})

	t.Run("only session is replaced by a fresh one", func(t *testing.T) {
		persister := testutils.NewMockPersister(nil, "")
		store, _ := newTestStore(t, persister)

		store.DeleteSession("chat-1")
		require.Equal(t, 1, store.Len())
		assert.Equal(t, "chat-2", store.ActiveID())
		assert.True(t, store.Active().IsPristine())

		saved, lastActive := persister.Snapshot()
		require.Len(t, saved, 1)
		assert.Equal(t, "chat-2", saved[0].ID)
		assert.Equal(t, "chat-2", lastActive)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		persister := testutils.NewMockPersister(nil, "")
		store, _ := newTestStore(t, persister)
		saves := persister.SaveCount()

		store.DeleteSession("chat-1")
		store.DeleteSession("chat-1") // double click
		store.DeleteSession("never-existed")

		assert.Equal(t, 1, store.Len())
		assert.Equal(t, saves+1, persister.SaveCount())
	})
}

func TestReadsReturnCopies(t *testing.T) {
	store, _ := newTestStore(t, testutils.NewMockPersister(nil, ""))

	sessions := store.Sessions()
	sessions[0].Title = "hacked"
	sessions[0].Messages[0].Text = "hacked"

	active := store.Active()
	assert.Equal(t, chattypes.UntitledTitle, active.Title)
	assert.Equal(t, chattypes.GreetingText, active.Messages[0].Text)
}

func TestPersistence_WriteThrough(t *testing.T) {
	persister := testutils.NewMockPersister(nil, "")
	store, _ := newTestStore(t, persister)
	id := store.ActiveID()

	require.NoError(t, store.AppendMessage(id, chattypes.UserMessage("persist me")))

	saved, _ := persister.Snapshot()
	require.Len(t, saved, 1)
	assert.Equal(t, "persist me", saved[0].Title)
	assert.Len(t, saved[0].Messages, 2)
}

func TestPersistence_FailureThenRetry(t *testing.T) {
	persister := testutils.NewMockPersister(nil, "")
	store, _ := newTestStore(t, persister)
	id := store.ActiveID()

	persister.FailNextSaves(1)
	require.NoError(t, store.AppendMessage(id, chattypes.UserMessage("first")))

	// In-memory state is authoritative even though the write failed
	s, _ := store.Get(id)
	assert.Equal(t, "first", s.Title)
	assert.ErrorIs(t, store.PersistErr(), testutils.ErrMockSave)

	saved, _ := persister.Snapshot()
	assert.Len(t, saved[0].Messages, 1, "failed write did not reach the persister")

	// The next mutation rewrites everything
	store.CreateSession()
	assert.NoError(t, store.PersistErr())
	saved, _ = persister.Snapshot()
	require.Len(t, saved, 2)
	assert.Len(t, saved[1].Messages, 2)
}

func TestFlush(t *testing.T) {
	persister := testutils.NewMockPersister(nil, "")
	store, _ := newTestStore(t, persister)

	saves := persister.SaveCount()
	assert.NoError(t, store.Flush())
	assert.Equal(t, saves, persister.SaveCount(), "clean store does not rewrite")

	persister.FailNextSaves(2)
	store.CreateSession()
	assert.ErrorIs(t, store.Flush(), testutils.ErrMockSave)
	assert.NoError(t, store.Flush())

	saved, _ := persister.Snapshot()
	assert.Len(t, saved, 2)
}

func TestSubscribe_Events(t *testing.T) {
	store, _ := newTestStore(t, testutils.NewMockPersister(nil, ""))

	var events []Event
	store.Subscribe(func(e Event) {
		// Listeners run outside the lock and may read the store
		_ = store.Sessions()
		events = append(events, e)
	})

	store.CreateSession()
	_, _ = store.SelectSession("chat-1")
	require.NoError(t, store.AppendMessage("chat-1", chattypes.UserMessage("hi")))
	store.DeleteSession("chat-1")
	store.DeleteSession("chat-2")
	store.DeleteSession("missing")

	assert.Equal(t, []Event{
		{Kind: EventCreated, SessionID: "chat-2"},
		{Kind: EventSelected, SessionID: "chat-1"},
		{Kind: EventAppended, SessionID: "chat-1"},
		{Kind: EventDeleted, SessionID: "chat-1"},
		{Kind: EventSelected, SessionID: "chat-2"},
		{Kind: EventDeleted, SessionID: "chat-2"},
		{Kind: EventCreated, SessionID: "chat-3"},
	}, events)
}

// TestInvariants_RandomOperations drives random create/select/delete/append
// sequences and checks the store invariants after every step.
func TestInvariants_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		persister := testutils.NewMockPersister(nil, "")
		store, clock := newTestStore(t, persister)
		known := []string{"chat-1", "ghost"}

		for step := 0; step < 60; step++ {
			clock.Advance(time.Duration(rng.Intn(3600)) * time.Second)
			target := known[rng.Intn(len(known))]

			switch rng.Intn(4) {
			case 0:
				known = append(known, store.CreateSession().ID)
			case 1:
				store.SelectOrCreate(target)
			case 2:
				store.DeleteSession(target)
			case 3:
				_ = store.AppendMessage(target, chattypes.UserMessage("msg"))
			}

			sessions := store.Sessions()
			require.NotEmpty(t, sessions, "run %d step %d: store must never be empty", run, step)

			activeFound := false
			seen := map[string]bool{}
			for i, s := range sessions {
				require.False(t, seen[s.ID], "ids must be unique")
				seen[s.ID] = true
				require.NotEmpty(t, s.Messages, "sessions are never empty")
				if s.ID == store.ActiveID() {
					activeFound = true
				}
				if i > 0 {
					require.False(t, s.CreatedAt.After(sessions[i-1].CreatedAt), "newest first")
				}
			}
			require.True(t, activeFound, "run %d step %d: active id must reference a session", run, step)

			saved, lastActive := persister.Snapshot()
			require.Equal(t, len(sessions), len(saved), "persisted copy matches memory")
			require.Equal(t, store.ActiveID(), lastActive)
		}
	}
}
