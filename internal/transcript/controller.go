// Package transcript drives a send attempt for the active session: it records the
// user's message, calls the chat API and records either the reply or a diagnostic.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"chatdeck/internal/cohere"
	"chatdeck/internal/config"
	"chatdeck/internal/logger"
	"chatdeck/internal/session"
	"chatdeck/pkg/chattypes"
)

// DiagnosticPrefix starts the bot message recorded when a send fails.
const DiagnosticPrefix = "Oops! Something went wrong. Please try again. Error: "

var (
	// ErrEmptyMessage is returned for blank input. Nothing is recorded.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSendInFlight is returned while the session is still waiting for a reply.
	ErrSendInFlight = errors.New("a reply is still pending for this chat")
	// ErrMissingCredential is returned before any mutation when no API key is saved.
	ErrMissingCredential = &config.ConfigError{Reason: "Please save your Cohere API key first!"}
)

// State is the position of a session in the send cycle.
type State int

const (
	// StateIdle - no send pending
	StateIdle State = iota
	// StateSending - user message recorded, waiting for the API
	StateSending
	// StateSucceeded - reply recorded
	StateSucceeded
	// StateFailed - diagnostic recorded
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSending:
		return "Sending"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Transition is one state change of one session.
type Transition struct {
	SessionID string
	From      State
	To        State
}

// StateListener receives every transition, outside the controller lock.
type StateListener func(Transition)

// ChatAPI is the remote side of a send.
type ChatAPI interface {
	Chat(ctx context.Context, apiKey string, req cohere.ChatRequest) (*cohere.ChatResponse, error)
}

// Settings supplies the credential and persona at send time.
type Settings interface {
	APIKey() string
	Persona() chattypes.Persona
}

// Options are the model parameters sent with every request.
type Options struct {
	Model       string
	Temperature float64
}

// Outcome reports how a send ended.
type Outcome struct {
	SessionID string
	State     State
	// Reply is the bot text recorded: the API reply or the diagnostic.
	Reply string
	// Err is the API failure behind a StateFailed outcome.
	Err error
	// Discarded is set when the session was deleted before the reply arrived.
	Discarded bool
}

// Controller owns the per-session send state.
type Controller struct {
	store    *session.Store
	api      ChatAPI
	settings Settings
	opts     Options
	log      *log.Logger

	mu        sync.Mutex
	states    map[string]State
	listeners []StateListener
}

// NewController creates a controller sending on behalf of store's active session.
func NewController(store *session.Store, api ChatAPI, settings Settings, opts Options) *Controller {
	return &Controller{
		store:    store,
		api:      api,
		settings: settings,
		opts:     opts,
		log:      logger.NewStyledLogger("transcript"),
		states:   make(map[string]State),
	}
}

// OnStateChange registers l for every transition.
func (c *Controller) OnStateChange(l StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// State returns the current state of sessionID.
func (c *Controller) State(sessionID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[sessionID]
}

// Send records text as a user message in the active session and waits for the reply.
// Precondition failures return an error and leave the store untouched. API failures
// are recorded in the transcript and reported through Outcome, not the error.
func (c *Controller) Send(ctx context.Context, text string) (Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{}, ErrEmptyMessage
	}

	apiKey := c.settings.APIKey()
	if apiKey == "" {
		return Outcome{}, ErrMissingCredential
	}

	sessionID := c.store.ActiveID()
	if !c.reserve(sessionID) {
		c.log.Debug("Send rejected", "session", sessionID, "state", StateSending)
		return Outcome{}, ErrSendInFlight
	}

	if err := c.store.AppendMessage(sessionID, chattypes.UserMessage(text)); err != nil {
		c.release(sessionID)
		return Outcome{}, fmt.Errorf("record message: %w", err)
	}
	c.emit(Transition{SessionID: sessionID, From: StateIdle, To: StateSending})

	req, err := c.buildRequest(sessionID, text)
	if err != nil {
		// Deleted between the append and the read
		c.finish(sessionID, StateFailed)
		c.log.Warn("Session vanished before the request was sent", "session", sessionID)
		return Outcome{SessionID: sessionID, State: StateFailed, Err: err, Discarded: true}, nil
	}

	outcome := Outcome{SessionID: sessionID}
	resp, err := c.api.Chat(ctx, apiKey, req)
	if err != nil {
		outcome.State = StateFailed
		outcome.Err = err
		outcome.Reply = DiagnosticPrefix + err.Error()
		c.log.Error("Chat request failed", "session", sessionID, "error", err)
	} else {
		outcome.State = StateSucceeded
		outcome.Reply = resp.Text
	}

	if err := c.store.AppendMessage(sessionID, chattypes.BotMessage(outcome.Reply)); err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			c.finish(sessionID, outcome.State)
			return outcome, fmt.Errorf("record reply: %w", err)
		}
		outcome.Discarded = true
		c.log.Info("Reply discarded, chat was deleted", "session", sessionID)
	}

	c.finish(sessionID, outcome.State)
	return outcome, nil
}

func (c *Controller) buildRequest(sessionID, text string) (cohere.ChatRequest, error) {
	sess, err := c.store.Get(sessionID)
	if err != nil {
		return cohere.ChatRequest{}, err
	}

	// The just-recorded message is the request's message, not part of its history
	prior := sess.Messages
	if n := len(prior); n > 0 {
		prior = prior[:n-1]
	}

	return cohere.ChatRequest{
		Message:     text,
		Model:       c.opts.Model,
		Temperature: c.opts.Temperature,
		ChatHistory: HistoryTurns(prior),
		Preamble:    c.settings.Persona().Prompt,
	}, nil
}

// HistoryTurns maps transcript messages to chat_history turns.
func HistoryTurns(messages []chattypes.Message) []cohere.ChatTurn {
	turns := make([]cohere.ChatTurn, 0, len(messages))
	for _, m := range messages {
		role := cohere.RoleUser
		if m.Role == chattypes.RoleBot {
			role = cohere.RoleChatbot
		}
		turns = append(turns, cohere.ChatTurn{Role: role, Message: m.Text})
	}
	return turns
}

func (c *Controller) reserve(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[sessionID] != StateIdle {
		return false
	}
	c.states[sessionID] = StateSending
	return true
}

func (c *Controller) release(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, sessionID)
}

// finish moves sessionID through final back to Idle.
func (c *Controller) finish(sessionID string, final State) {
	c.mu.Lock()
	c.states[sessionID] = final
	c.mu.Unlock()
	c.emit(Transition{SessionID: sessionID, From: StateSending, To: final})

	c.release(sessionID)
	c.emit(Transition{SessionID: sessionID, From: final, To: StateIdle})
}

func (c *Controller) emit(t Transition) {
	c.log.Debug("State change", "session", t.SessionID, "state", t.To)

	c.mu.Lock()
	listeners := make([]StateListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l(t)
	}
}
