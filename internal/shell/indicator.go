package shell

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const indicatorInterval = 100 * time.Millisecond

// TypingIndicator shows a self-overwriting status line while a reply is pending.
type TypingIndicator struct {
	out      io.Writer
	style    lipgloss.Style
	interval time.Duration

	mu       sync.Mutex
	displays map[string]*display
}

type display struct {
	id        string
	label     string
	stopCh    chan struct{}
	doneCh    chan struct{}
	startTime time.Time
	running   bool
	lastWidth int
}

// NewTypingIndicator creates an indicator writing to out.
func NewTypingIndicator(out io.Writer, style lipgloss.Style) *TypingIndicator {
	return &TypingIndicator{
		out:      out,
		style:    style,
		interval: indicatorInterval,
		displays: make(map[string]*display),
	}
}

// Start shows label for id until Stop is called. A running display with the same id is replaced.
func (t *TypingIndicator) Start(id, label string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.displays[id]; ok {
		t.stopLocked(existing)
	}

	d := &display{
		id:        id,
		label:     label,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		startTime: time.Now(),
		running:   true,
	}
	t.displays[id] = d
	go t.run(d)
}

// Stop clears the display for id and waits for its line to be erased.
func (t *TypingIndicator) Stop(id string) {
	t.mu.Lock()
	d, ok := t.displays[id]
	if ok {
		t.stopLocked(d)
	}
	t.mu.Unlock()

	if ok {
		<-d.doneCh
	}
}

// StopAll clears every display.
func (t *TypingIndicator) StopAll() {
	t.mu.Lock()
	var pending []*display
	for _, d := range t.displays {
		t.stopLocked(d)
		pending = append(pending, d)
	}
	t.mu.Unlock()

	for _, d := range pending {
		<-d.doneCh
	}
}

// IsActive reports whether a display for id is running.
func (t *TypingIndicator) IsActive(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.displays[id]
	return ok && d.running
}

func (t *TypingIndicator) run(d *display) {
	ticker := time.NewTicker(t.interval)
	defer func() {
		ticker.Stop()
		t.clear(d)

		t.mu.Lock()
		if t.displays[d.id] == d {
			delete(t.displays, d.id)
		}
		t.mu.Unlock()
		close(d.doneCh)
	}()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			t.draw(d, renderTyping(d.label, time.Since(d.startTime)))
		}
	}
}

// renderTyping is the plain text of the status line.
func renderTyping(label string, elapsed time.Duration) string {
	dots := int(elapsed/(400*time.Millisecond))%3 + 1
	return fmt.Sprintf("%s is typing%s %ds", label, strings.Repeat(".", dots), int(elapsed.Seconds()))
}

func (t *TypingIndicator) draw(d *display, content string) {
	if d.lastWidth > 0 {
		_, _ = fmt.Fprint(t.out, "\r"+strings.Repeat(" ", d.lastWidth)+"\r")
	}
	_, _ = fmt.Fprint(t.out, "\r"+t.style.Render(content))
	d.lastWidth = ansi.StringWidth(content)
}

func (t *TypingIndicator) clear(d *display) {
	if d.lastWidth > 0 {
		_, _ = fmt.Fprint(t.out, "\r"+strings.Repeat(" ", d.lastWidth)+"\r")
	}
}

func (t *TypingIndicator) stopLocked(d *display) {
	if d.running {
		d.running = false
		close(d.stopCh)
	}
}
