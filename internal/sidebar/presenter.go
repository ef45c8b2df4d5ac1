// Package sidebar turns the session store into the grouped chat history and
// applies the user's history intents back to the store.
package sidebar

import (
	"fmt"
	"sync"
	"time"

	"chatdeck/internal/history"
	"chatdeck/internal/logger"
	"chatdeck/internal/session"
	"chatdeck/pkg/chattypes"
)

// Placeholder is shown when no session is visible.
const Placeholder = "No recent chats."

// Entry is one history line. Index is its 1-based position across the whole view.
type Entry struct {
	Index     int
	SessionID string
	Title     string
	Active    bool
}

// Section is a named time bucket with its entries.
type Section struct {
	Name    string
	Entries []Entry
}

// View is the computed history.
type View struct {
	Sections []Section
	ActiveID string
}

// Empty reports whether the placeholder should be shown instead of sections.
func (v View) Empty() bool {
	return len(v.Sections) == 0
}

// Entries returns every entry in display order.
func (v View) Entries() []Entry {
	var out []Entry
	for _, s := range v.Sections {
		out = append(out, s.Entries...)
	}
	return out
}

// Lookup finds the entry shown as #index.
func (v View) Lookup(index int) (Entry, bool) {
	for _, s := range v.Sections {
		for _, e := range s.Entries {
			if e.Index == index {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// Intent is a user request against the history.
type Intent interface {
	intent()
}

// NewSession asks for a fresh chat.
type NewSession struct{}

// Select asks to make ID the active chat.
type Select struct{ ID string }

// Delete asks to remove ID after confirmation.
type Delete struct{ ID string }

func (NewSession) intent() {}
func (Select) intent()     {}
func (Delete) intent()     {}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// DeletePrompt is the confirmation question for deleting a chat.
func DeletePrompt(title string) string {
	return fmt.Sprintf("Are you sure you want to delete the chat \"%s\"?", CleanTitle(title))
}

// Result reports what an intent did.
type Result struct {
	// Active is the active session after the intent.
	Active   chattypes.Session
	Deleted  bool
	Declined bool
}

// Presenter keeps a View in step with the store.
type Presenter struct {
	store   *session.Store
	now     func() time.Time
	confirm Confirmer

	mu        sync.Mutex
	view      View
	listeners []func(View)
}

// NewPresenter subscribes to store and computes the first view.
func NewPresenter(store *session.Store, now func() time.Time, confirm Confirmer) *Presenter {
	if now == nil {
		now = time.Now
	}
	p := &Presenter{store: store, now: now, confirm: confirm}
	store.Subscribe(func(session.Event) { p.refresh() })
	p.refresh()
	return p
}

// OnChange registers fn to receive every recomputed view.
func (p *Presenter) OnChange(fn func(View)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// View returns the last computed view.
func (p *Presenter) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// Render recomputes the view against the current clock and returns it.
func (p *Presenter) Render() View {
	return p.refresh()
}

// Dispatch applies intent to the store.
func (p *Presenter) Dispatch(intent Intent) (Result, error) {
	switch in := intent.(type) {
	case NewSession:
		return Result{Active: p.store.CreateSession()}, nil

	case Select:
		return Result{Active: p.store.SelectOrCreate(in.ID)}, nil

	case Delete:
		target, err := p.store.Get(in.ID)
		if err != nil {
			return Result{Active: p.store.Active()}, fmt.Errorf("delete: %w", err)
		}
		if p.confirm == nil || !p.confirm.Confirm(DeletePrompt(target.Title)) {
			logger.Debug("Delete declined", "session", in.ID)
			return Result{Active: p.store.Active(), Declined: true}, nil
		}
		p.store.DeleteSession(in.ID)
		return Result{Active: p.store.Active(), Deleted: true}, nil

	default:
		return Result{}, fmt.Errorf("unknown intent %T", intent)
	}
}

func (p *Presenter) refresh() View {
	view := Build(p.store.Sessions(), p.store.ActiveID(), p.now())

	p.mu.Lock()
	p.view = view
	listeners := make([]func(View), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(view)
	}
	return view
}

// Build computes the view of sessions relative to now.
func Build(sessions []chattypes.Session, activeID string, now time.Time) View {
	view := View{ActiveID: activeID}
	index := 0
	for _, bucket := range history.Group(sessions, activeID, now) {
		section := Section{Name: bucket.Name}
		for _, s := range bucket.Sessions {
			index++
			section.Entries = append(section.Entries, Entry{
				Index:     index,
				SessionID: s.ID,
				Title:     s.Title,
				Active:    s.ID == activeID,
			})
		}
		view.Sections = append(view.Sections, section)
	}
	return view
}
