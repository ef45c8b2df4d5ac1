package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdeck/internal/cohere"
	"chatdeck/internal/session"
	"chatdeck/internal/storage"
	"chatdeck/internal/testutils"
	"chatdeck/internal/transcript"
	"chatdeck/pkg/chattypes"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

type stubAPI struct {
	err error
}

func (s stubAPI) Chat(_ context.Context, _ string, req cohere.ChatRequest) (*cohere.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &cohere.ChatResponse{Text: "echo: " + req.Message}, nil
}

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	app       *App
	store     *session.Store
	persister *testutils.MockPersister
	settings  *storage.SettingsRepository
	clipboard []string
	answers   []string
}

func newFixture(t *testing.T, api transcript.ChatAPI, sessions []chattypes.Session, lastActive string) *fixture {
	t.Helper()
	f := &fixture{}

	clock := testutils.NewManualClock(now)
	f.persister = testutils.NewMockPersister(sessions, lastActive)
	f.store = session.Open(f.persister,
		session.WithClock(clock.Now),
		session.WithIDGenerator(testutils.SequentialIDs("chat")))
	f.settings = storage.NewSettingsRepository(storage.NewMemoryKV(),
		chattypes.Persona{Name: "Alex", Prompt: "Be helpful."}, "")
	ctrl := transcript.NewController(f.store, api, f.settings, transcript.Options{Model: "command-r", Temperature: 0.7})

	f.app = NewApp(Deps{
		Store:        f.store,
		Controller:   ctrl,
		Settings:     f.settings,
		SidebarWidth: 32,
		Now:          clock.Now,
		Clipboard: func(text string) error {
			f.clipboard = append(f.clipboard, text)
			return nil
		},
		ReadLine: func() string {
			if len(f.answers) == 0 {
				return ""
			}
			answer := f.answers[0]
			f.answers = f.answers[1:]
			return answer
		},
	})
	return f
}

func TestApp_SendWithoutKey(t *testing.T) {
	f := newFixture(t, stubAPI{}, nil, "")
	var out bytes.Buffer

	err := f.app.Send(context.Background(), &out, "Hello")
	require.Error(t, err)
	assert.Equal(t, "Please save your Cohere API key first!", err.Error())
	assert.Len(t, f.store.Active().Messages, 1)
}

func TestApp_SendPrintsReply(t *testing.T) {
	f := newFixture(t, stubAPI{}, nil, "")
	var out bytes.Buffer
	require.NoError(t, f.app.SaveKey(&out, "  sk-test-1234  "))
	assert.Equal(t, "API Key saved successfully!\n", out.String())
	out.Reset()

	require.NoError(t, f.app.Send(context.Background(), &out, "Hello"))
	assert.Equal(t, "Alex:\necho: Hello\n", out.String())
	assert.Equal(t, "Hello", f.store.Active().Title)
}

func TestApp_SendEmptyIsIgnored(t *testing.T) {
	f := newFixture(t, stubAPI{}, nil, "")
	var out bytes.Buffer
	require.NoError(t, f.app.Send(context.Background(), &out, "   "))
	assert.Empty(t, out.String())
}

func TestApp_SendFailurePrintsDiagnostic(t *testing.T) {
	f := newFixture(t, stubAPI{err: &cohere.ProtocolError{StatusCode: 500}}, nil, "")
	require.NoError(t, f.settings.SaveAPIKey("k"))

	var out bytes.Buffer
	require.NoError(t, f.app.Send(context.Background(), &out, "Hello"))
	assert.Equal(t, "Alex: Oops! Something went wrong. Please try again. Error: Cohere API error: 500 - Unknown error\n", out.String())
}

func TestApp_HistoryAndSelectByPosition(t *testing.T) {
	gen := testutils.NewTestDataGenerator()
	sessions := []chattypes.Session{
		gen.TitledSession("b", "Second", now.Add(-time.Hour)),
		gen.TitledSession("a", "First", now.Add(-48*time.Hour)),
	}
	f := newFixture(t, stubAPI{}, sessions, "b")

	var out bytes.Buffer
	f.app.History(&out)
	assert.Equal(t, "Today\n> #1 Second\n\nLast 3 days\n  #2 First\n", out.String())
	assert.Equal(t, "b", f.app.Presenter().View().ActiveID)

	out.Reset()
	require.NoError(t, f.app.Select(&out, "#2"))
	assert.Equal(t, "a", f.store.ActiveID())
	assert.True(t, strings.HasPrefix(out.String(), "First\n"))

	err := f.app.Select(&out, "#9")
	assert.EqualError(t, err, "no chat at position #9")
	err = f.app.Select(&out, "#x")
	assert.EqualError(t, err, `invalid history position "#x"`)
	err = f.app.Select(&out, " ")
	assert.Error(t, err)
}

func TestApp_SelectUnknownIDStartsNewChat(t *testing.T) {
	f := newFixture(t, stubAPI{}, nil, "")
	before := f.store.Len()

	var out bytes.Buffer
	require.NoError(t, f.app.Select(&out, "ghost"))
	assert.Contains(t, out.String(), "Chat ghost not found, started a new chat.")
	assert.Equal(t, before+1, f.store.Len())
}

func TestApp_Delete(t *testing.T) {
	gen := testutils.NewTestDataGenerator()
	sessions := []chattypes.Session{
		gen.TitledSession("b", "Second", now.Add(-time.Hour)),
		gen.TitledSession("a", "First", now.Add(-2*time.Hour)),
	}

	t.Run("declined", func(t *testing.T) {
		f := newFixture(t, stubAPI{}, sessions, "b")
		f.answers = []string{"n"}

		var out bytes.Buffer
		require.NoError(t, f.app.Delete(&out, "a"))
		assert.Equal(t, "Are you sure you want to delete the chat \"First\"? [y/N]: Kept.\n", out.String())
		assert.Equal(t, 2, f.store.Len())
	})

	t.Run("confirmed by position", func(t *testing.T) {
		f := newFixture(t, stubAPI{}, sessions, "b")
		f.answers = []string{"Y"}

		var out bytes.Buffer
		require.NoError(t, f.app.Delete(&out, "#1"))
		assert.Contains(t, out.String(), "Deleted.")
		assert.Equal(t, 1, f.store.Len())
		assert.Equal(t, "a", f.store.ActiveID())
	})

	t.Run("unknown", func(t *testing.T) {
		f := newFixture(t, stubAPI{}, sessions, "b")
		var out bytes.Buffer
		assert.EqualError(t, f.app.Delete(&out, "ghost"), "no chat ghost")
	})
}

func TestApp_ShowMasksKey(t *testing.T) {
	f := newFixture(t, stubAPI{}, nil, "")
	var out bytes.Buffer

	f.app.Show(&out)
	assert.Contains(t, out.String(), "API key: (not set)")

	require.NoError(t, f.settings.SaveAPIKey("sk-1234567890abcd"))
	out.Reset()
	f.app.Show(&out)
	assert.Contains(t, out.String(), "API key: sk-1…abcd")
	assert.Contains(t, out.String(), "Persona: Alex")
	assert.Contains(t, out.String(), "Alex:\n"+chattypes.GreetingText)
	assert.Contains(t, out.String(), "Chats: 1\n")
	assert.NotContains(t, out.String(), "Unsaved changes")
}

func TestApp_ShowReportsUnsavedChanges(t *testing.T) {
	f := newFixture(t, stubAPI{}, nil, "")
	f.persister.FailNextSaves(1)
	require.NoError(t, f.app.NewChat(&bytes.Buffer{}))

	var out bytes.Buffer
	f.app.Show(&out)
	assert.Contains(t, out.String(), "Chats: 2\n")
	assert.Contains(t, out.String(), "Unsaved changes: "+testutils.ErrMockSave.Error())

	require.NoError(t, f.store.Flush())
	out.Reset()
	f.app.Show(&out)
	assert.NotContains(t, out.String(), "Unsaved changes")
}

func TestApp_SessionIDsFollowHistory(t *testing.T) {
	gen := testutils.NewTestDataGenerator()
	sessions := []chattypes.Session{
		gen.PristineSession("blank", now.Add(-time.Minute)),
		gen.TitledSession("b", "Second", now.Add(-time.Hour)),
		gen.TitledSession("a", "First", now.Add(-48*time.Hour)),
	}
	f := newFixture(t, stubAPI{}, sessions, "b")
	assert.Equal(t, []string{"b", "a"}, f.app.SessionIDs())
}

func TestApp_SavePersona(t *testing.T) {
	f := newFixture(t, stubAPI{}, nil, "")
	var out bytes.Buffer

	err := f.app.SavePersona(&out, "Sam", "")
	assert.ErrorIs(t, err, storage.ErrInvalidPersona)

	require.NoError(t, f.app.SavePersona(&out, "Sam", "Answer like a pirate."))
	assert.Equal(t, "AI Character saved successfully!\n", out.String())
	assert.Equal(t, chattypes.Persona{Name: "Sam", Prompt: "Answer like a pirate."}, f.settings.Persona())
}

func TestApp_SaveKeyRejectsBlank(t *testing.T) {
	f := newFixture(t, stubAPI{}, nil, "")
	var out bytes.Buffer
	assert.ErrorIs(t, f.app.SaveKey(&out, "   "), storage.ErrInvalidCredential)
}

func TestApp_Export(t *testing.T) {
	f := newFixture(t, stubAPI{}, nil, "")
	require.NoError(t, f.settings.SaveAPIKey("k"))
	var out bytes.Buffer
	require.NoError(t, f.app.Send(context.Background(), &out, "Hello"))

	path := filepath.Join(t.TempDir(), "chat.json")
	out.Reset()
	require.NoError(t, f.app.Export(&out, path))
	assert.Contains(t, out.String(), `Exported "Hello" to `)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Hello", doc["title"])
	assert.Len(t, doc["messages"], 3)

	assert.Error(t, f.app.Export(&out, ""))
}

func TestApp_Copy(t *testing.T) {
	f := newFixture(t, stubAPI{}, nil, "")
	var out bytes.Buffer

	require.NoError(t, f.app.Copy(&out))
	assert.Equal(t, []string{chattypes.GreetingText}, f.clipboard)

	f.app.clipboard = func(string) error { return errors.New("no clipboard") }
	assert.EqualError(t, f.app.Copy(&out), "no clipboard")
}

func TestApp_NewChat(t *testing.T) {
	f := newFixture(t, stubAPI{}, nil, "")
	first := f.store.ActiveID()

	var out bytes.Buffer
	require.NoError(t, f.app.NewChat(&out))
	assert.NotEqual(t, first, f.store.ActiveID())
	assert.Equal(t, "New Chat\nAlex:\n"+chattypes.GreetingText+"\n", out.String())
}

func TestApp_CompleterOffersSessionIDs(t *testing.T) {
	gen := testutils.NewTestDataGenerator()
	f := newFixture(t, stubAPI{}, []chattypes.Session{gen.TitledSession("chat-abc", "x", now)}, "chat-abc")
	completer := f.app.Completer(f.app.commands(context.Background()))

	line := []rune("select chat-a")
	suggestions, length := completer.Do(line, len(line))
	require.Len(t, suggestions, 1)
	assert.Equal(t, "bc ", string(suggestions[0]))
	assert.Equal(t, len("chat-a"), length)

	line = []rune("his")
	suggestions, _ = completer.Do(line, len(line))
	require.Len(t, suggestions, 1)
	assert.Equal(t, "tory ", string(suggestions[0]))
}

func TestApp_TranscriptStripsTerminalEscapes(t *testing.T) {
	f := newFixture(t, stubAPI{}, nil, "")
	require.NoError(t, f.settings.SaveAPIKey("k"))

	var out bytes.Buffer
	require.NoError(t, f.app.Send(context.Background(), &out, "\x1b[31mHi\x1b[0m"))
	assert.Equal(t, "Alex:\necho: Hi\n", out.String())

	out.Reset()
	f.app.Show(&out)
	assert.NotContains(t, out.String(), "\x1b")
	assert.Contains(t, out.String(), "You: Hi\n")
}
