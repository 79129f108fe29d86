package dialog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"authbot/internal/address"
	"authbot/internal/metrics"
	"authbot/internal/session"
	"authbot/pkg/logging"
)

// Messenger pushes text into a conversation.
type Messenger interface {
	Deliver(ctx context.Context, addr address.Address, text string) error
}

// Engine runs the dialog for every conversation. Turns for one conversation
// are serialized; different conversations proceed in parallel.
type Engine struct {
	machine   *Machine
	sessions  session.Store
	messenger Messenger

	locks *keyedMutex

	mu     sync.Mutex
	states map[string]State
	// delivered marks conversations whose code prompt went out since their
	// last turn. The next turn applies it under the conversation lock.
	delivered map[string]bool
}

// NewEngine creates a dialog engine.
func NewEngine(machine *Machine, sessions session.Store, messenger Messenger) *Engine {
	return &Engine{
		machine:   machine,
		sessions:  sessions,
		messenger: messenger,
		locks:     newKeyedMutex(),
		states:    make(map[string]State),
		delivered: make(map[string]bool),
	}
}

// HandleTurn processes one inbound user message.
func (e *Engine) HandleTurn(ctx context.Context, addr address.Address, text string) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	key := addr.Key()
	unlock := e.locks.Lock(key)
	defer unlock()

	sess, err := e.sessions.Get(ctx, addr)
	switch {
	case errors.Is(err, session.ErrNotFound):
		sess = nil
	case err != nil:
		return fmt.Errorf("load session: %w", err)
	}

	st := e.state(key)
	if e.takeDelivered(key) {
		st = State{Phase: PhaseAwaitingCode}
	}
	st = e.reconcile(addr, st, sess)
	metrics.DialogTurns.WithLabelValues(string(st.Phase)).Inc()

	next, effects := e.machine.HandleTurn(ctx, st, Turn{Address: addr, Text: text, Session: sess})
	logging.Debug("Dialog", "Conversation %s: %s -> %s", logging.TruncateID(addr.ConversationID), st.Phase, next.Phase)

	e.setState(key, next)
	return e.apply(ctx, addr, effects)
}

// CodeDelivered records that the callback pushed the code prompt. The
// conversation moves to AwaitingCode on its next turn. It does not wait for a
// turn in flight, so the browser page is never held up by a slow action.
func (e *Engine) CodeDelivered(_ context.Context, addr address.Address) {
	e.mu.Lock()
	e.delivered[addr.Key()] = true
	e.mu.Unlock()

	logging.Debug("Dialog", "Conversation %s is awaiting its code", logging.TruncateID(addr.ConversationID))
}

// Phase returns the current phase of a conversation.
func (e *Engine) Phase(addr address.Address) Phase {
	key := addr.Key()
	e.mu.Lock()
	delivered := e.delivered[key]
	e.mu.Unlock()
	if delivered {
		return PhaseAwaitingCode
	}
	if p := e.state(key).Phase; p != "" {
		return p
	}
	return PhaseAnonymous
}

// reconcile aligns the in-memory phase with the stored session, which may
// have changed underneath: a restart, a refresh that logged the session out,
// or a session restored from SQLite. A signed-in conversation only stays in
// a waiting phase while its sign-in attempt is still live.
func (e *Engine) reconcile(addr address.Address, st State, sess *session.Session) State {
	authed := sess.IsAuthenticated()
	waiting := st.Phase == PhaseAwaitingLink || st.Phase == PhaseAwaitingCode
	switch {
	case authed && (st.Phase == "" || st.Phase == PhaseAnonymous):
		return State{Phase: PhaseAuthenticated}
	case authed && waiting && !e.machine.pending.HasIssued(addr):
		return State{Phase: PhaseAuthenticated}
	case !authed && st.Phase == PhaseAuthenticated:
		return State{Phase: PhaseAnonymous}
	case st.Phase == "":
		return State{Phase: PhaseAnonymous}
	}
	return st
}

func (e *Engine) apply(ctx context.Context, addr address.Address, effects []Effect) error {
	var errs []error
	for _, effect := range effects {
		switch ef := effect.(type) {
		case Reply:
			if err := e.messenger.Deliver(ctx, addr, ef.Text); err != nil {
				logging.Error("Dialog", err, "Failed to deliver reply to conversation %s", logging.TruncateID(addr.ConversationID))
				errs = append(errs, fmt.Errorf("deliver reply: %w", err))
			}
		case SaveSession:
			if err := e.sessions.Save(ctx, ef.Session); err != nil {
				errs = append(errs, fmt.Errorf("save session: %w", err))
			}
		case DeleteSession:
			if err := e.sessions.Delete(ctx, addr); err != nil {
				errs = append(errs, fmt.Errorf("delete session: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) state(key string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[key]
}

func (e *Engine) takeDelivered(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok := e.delivered[key]
	delete(e.delivered, key)
	return ok
}

func (e *Engine) setState(key string, st State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st.Phase == PhaseAnonymous {
		delete(e.states, key)
		return
	}
	e.states[key] = st
}
