// Package shell provides the interactive chat shell: it maps user input to
// session, transcript and settings operations and prints their results.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"chatdeck/internal/logger"
	"chatdeck/internal/session"
	"chatdeck/internal/sidebar"
	"chatdeck/internal/storage"
	"chatdeck/internal/transcript"
	"chatdeck/pkg/chattypes"
)

// Settings is the credential and persona store behind the key and persona commands.
type Settings interface {
	APIKey() string
	SaveAPIKey(value string) error
	Persona() chattypes.Persona
	SavePersona(name, prompt string) error
}

// Deps are the components an App drives.
type Deps struct {
	Store      *session.Store
	Controller *transcript.Controller
	Settings   Settings
	Theme      *sidebar.Theme
	Markdown   *MarkdownRenderer
	// Indicator is optional; nil disables the typing line.
	Indicator *TypingIndicator
	// Clipboard defaults to SystemClipboard.
	Clipboard func(text string) error
	// ReadLine answers confirmation prompts. nil declines every confirmation.
	ReadLine     func() string
	SidebarWidth int
	Now          func() time.Time
}

// App holds the shell's command implementations. Every command writes to the given writer.
type App struct {
	store      *session.Store
	controller *transcript.Controller
	presenter  *sidebar.Presenter
	settings   Settings
	theme      *sidebar.Theme
	markdown   *MarkdownRenderer
	indicator  *TypingIndicator
	clipboard  func(text string) error
	readLine   func() string
	width      int

	// confirmOut receives the confirmation prompt of the running command.
	confirmOut io.Writer
}

// NewApp wires deps together and subscribes the typing indicator to send state changes.
func NewApp(deps Deps) *App {
	a := &App{
		store:      deps.Store,
		controller: deps.Controller,
		settings:   deps.Settings,
		theme:      deps.Theme,
		markdown:   deps.Markdown,
		indicator:  deps.Indicator,
		clipboard:  deps.Clipboard,
		readLine:   deps.ReadLine,
		width:      deps.SidebarWidth,
		confirmOut: io.Discard,
	}
	if a.theme == nil {
		a.theme = sidebar.PlainTheme()
	}
	if a.clipboard == nil {
		a.clipboard = SystemClipboard
	}
	a.presenter = sidebar.NewPresenter(deps.Store, deps.Now, sidebar.ConfirmFunc(a.confirm))

	if a.indicator != nil {
		a.controller.OnStateChange(a.onStateChange)
	}
	return a
}

// Presenter exposes the history presenter.
func (a *App) Presenter() *sidebar.Presenter {
	return a.presenter
}

// SetReadLine replaces the confirmation reader.
func (a *App) SetReadLine(readLine func() string) {
	a.readLine = readLine
}

func (a *App) onStateChange(t transcript.Transition) {
	switch t.To {
	case transcript.StateSending:
		a.indicator.Start(t.SessionID, sidebar.CleanTitle(a.settings.Persona().Name))
	case transcript.StateIdle:
		a.indicator.Stop(t.SessionID)
	}
}

func (a *App) confirm(prompt string) bool {
	if a.readLine == nil {
		return false
	}
	_, _ = fmt.Fprintf(a.confirmOut, "%s [y/N]: ", prompt)
	answer := strings.ToLower(strings.TrimSpace(a.readLine()))
	return answer == "y" || answer == "yes"
}

// Send sends text from the active session and prints the reply.
func (a *App) Send(ctx context.Context, w io.Writer, text string) error {
	outcome, err := a.controller.Send(ctx, text)
	if err != nil {
		if errors.Is(err, transcript.ErrEmptyMessage) {
			return nil
		}
		return err
	}

	if outcome.Discarded {
		_, _ = fmt.Fprintln(w, a.theme.Info.Render("The chat was deleted before the reply arrived."))
		return nil
	}

	name := a.theme.Bot.Render(sidebar.CleanTitle(a.settings.Persona().Name) + ":")
	if outcome.State == transcript.StateFailed {
		_, _ = fmt.Fprintf(w, "%s %s\n", name, a.theme.Error.Render(sidebar.CleanText(outcome.Reply)))
		return nil
	}
	_, _ = fmt.Fprintf(w, "%s\n%s\n", name, a.markdown.Render(sidebar.CleanText(outcome.Reply)))
	return nil
}

// NewChat starts a fresh session.
func (a *App) NewChat(w io.Writer) error {
	result, err := a.presenter.Dispatch(sidebar.NewSession{})
	if err != nil {
		return err
	}
	a.printTranscript(w, result.Active)
	return nil
}

// History prints the grouped chat history.
func (a *App) History(w io.Writer) {
	_, _ = fmt.Fprint(w, sidebar.RenderText(a.presenter.Render(), a.theme, a.width))
}

// Select activates the session named by ref (an id or #n) and prints it.
func (a *App) Select(w io.Writer, ref string) error {
	id, err := a.resolve(ref)
	if err != nil {
		return err
	}

	result, err := a.presenter.Dispatch(sidebar.Select{ID: id})
	if err != nil {
		return err
	}
	if result.Active.ID != id {
		_, _ = fmt.Fprintln(w, a.theme.Info.Render(fmt.Sprintf("Chat %s not found, started a new chat.", id)))
	}
	a.printTranscript(w, result.Active)
	return nil
}

// Delete removes the session named by ref after confirmation.
func (a *App) Delete(w io.Writer, ref string) error {
	id, err := a.resolve(ref)
	if err != nil {
		return err
	}

	a.confirmOut = w
	defer func() { a.confirmOut = io.Discard }()

	result, err := a.presenter.Dispatch(sidebar.Delete{ID: id})
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return fmt.Errorf("no chat %s", ref)
		}
		return err
	}
	if result.Declined {
		_, _ = fmt.Fprintln(w, "Kept.")
		return nil
	}
	_, _ = fmt.Fprintln(w, a.theme.Info.Render("Deleted."))
	return nil
}

// Show prints the active transcript and the current settings.
func (a *App) Show(w io.Writer) {
	persona := a.settings.Persona()
	key := "(not set)"
	if k := a.settings.APIKey(); k != "" {
		key = storage.MaskSecret(k)
	}

	_, _ = fmt.Fprintf(w, "%s %s\n", a.theme.Muted.Render("API key:"), key)
	_, _ = fmt.Fprintf(w, "%s %s\n", a.theme.Muted.Render("Persona:"), sidebar.CleanTitle(persona.Name))
	_, _ = fmt.Fprintf(w, "%s %s\n", a.theme.Muted.Render("Prompt:"), sidebar.CleanText(persona.Prompt))
	_, _ = fmt.Fprintf(w, "%s %d\n", a.theme.Muted.Render("Chats:"), a.store.Len())
	if err := a.store.PersistErr(); err != nil {
		_, _ = fmt.Fprintln(w, a.theme.Error.Render("Unsaved changes: "+err.Error()))
	}
	_, _ = fmt.Fprintln(w)
	a.printTranscript(w, a.store.Active())
}

// SaveKey stores the API credential.
func (a *App) SaveKey(w io.Writer, value string) error {
	if err := a.settings.SaveAPIKey(value); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, a.theme.Info.Render("API Key saved successfully!"))
	return nil
}

// SavePersona stores the persona name and prompt.
func (a *App) SavePersona(w io.Writer, name, prompt string) error {
	if err := a.settings.SavePersona(name, prompt); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, a.theme.Info.Render("AI Character saved successfully!"))
	return nil
}

// Export writes the active session to path as indented JSON.
func (a *App) Export(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("usage: export <path>")
	}

	active := a.store.Active()
	data, err := storage.ExportSession(active)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	logger.Debug("Exported session", "session", active.ID, "path", path)
	_, _ = fmt.Fprintf(w, "Exported %q to %s\n", active.Title, path)
	return nil
}

// Copy puts the last bot reply of the active session on the clipboard.
func (a *App) Copy(w io.Writer) error {
	msg, ok := a.store.Active().LastBotMessage()
	if !ok {
		return fmt.Errorf("nothing to copy")
	}
	if err := a.clipboard(msg.Text); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "Copied %d characters to clipboard\n", len(msg.Text))
	return nil
}

// SessionIDs lists the ids shown in the history, in display order, for completion.
func (a *App) SessionIDs() []string {
	entries := a.presenter.Render().Entries()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.SessionID
	}
	return ids
}

// resolve turns "#n" into the id shown at that history position.
func (a *App) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("missing chat id or #number")
	}
	rest, ok := strings.CutPrefix(ref, "#")
	if !ok {
		return ref, nil
	}

	n, err := strconv.Atoi(rest)
	if err != nil {
		return "", fmt.Errorf("invalid history position %q", ref)
	}
	entry, found := a.presenter.Render().Lookup(n)
	if !found {
		return "", fmt.Errorf("no chat at position %s", ref)
	}
	return entry.SessionID, nil
}

func (a *App) printTranscript(w io.Writer, s chattypes.Session) {
	name := sidebar.CleanTitle(a.settings.Persona().Name)
	_, _ = fmt.Fprintln(w, a.theme.BucketHeader.Render(sidebar.CleanTitle(s.Title)))
	for _, m := range s.Messages {
		if m.Role == chattypes.RoleUser {
			_, _ = fmt.Fprintf(w, "%s %s\n", a.theme.User.Render("You:"), sidebar.CleanText(m.Text))
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\n%s\n", a.theme.Bot.Render(name+":"), a.markdown.Render(sidebar.CleanText(m.Text)))
	}
}
