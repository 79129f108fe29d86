package dialog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"authbot/internal/address"
	"authbot/internal/pending"
	"authbot/internal/refresh"
	"authbot/internal/session"
	"authbot/pkg/logging"
	"authbot/pkg/oauth"
)

// Phase is where a conversation is in the sign-in flow.
type Phase string

const (
	PhaseAnonymous     Phase = "Anonymous"
	PhaseAwaitingLink  Phase = "AwaitingLink"
	PhaseAwaitingCode  Phase = "AwaitingCode"
	PhaseAuthenticated Phase = "Authenticated"
	PhaseLoggedOut     Phase = "LoggedOut"
)

// Built-in commands.
const (
	CmdQuit   = "quit"
	CmdLogout = "logout"
	CmdHelp   = "help"
)

// State is the per-conversation dialog state. Wrong-code counts live on the
// pending attempt.
type State struct {
	Phase Phase
}

// Turn is one user message plus what the engine already knows about the conversation.
type Turn struct {
	Address address.Address
	Text    string
	// Session is the stored session, nil when there is none.
	Session *session.Session
}

// Effect is an outcome of a turn applied by the engine.
type Effect interface {
	isEffect()
}

// Reply sends text back into the conversation.
type Reply struct {
	Text string
}

// SaveSession persists a session.
type SaveSession struct {
	Session *session.Session
}

// DeleteSession removes the conversation's session.
type DeleteSession struct{}

func (Reply) isEffect()         {}
func (SaveSession) isEffect()   {}
func (DeleteSession) isEffect() {}

// PendingStore is the part of the pending attempt store the dialog uses.
type PendingStore interface {
	Consume(addr address.Address, code string) (*pending.Attempt, error)
	HasIssued(addr address.Address) bool
	Revoke(addr address.Address) bool
}

// TokenRefresher keeps access tokens valid.
type TokenRefresher interface {
	EnsureValid(ctx context.Context, s *session.Session) (*session.Session, error)
	ForceRefresh(ctx context.Context, s *session.Session) (*session.Session, error)
}

// LinkBuilder returns the sign-in URL for a conversation.
type LinkBuilder func(addr address.Address) (string, error)

// Machine is the sign-in dialog transition function. It holds collaborators
// but no per-conversation state; HandleTurn is safe for concurrent use.
type Machine struct {
	pending         PendingStore
	refresher       TokenRefresher
	link            LinkBuilder
	messages        *Messages
	actions         map[string]registeredAction
	now             func() time.Time
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithAction registers a domain command.
func WithAction(name, description string, action Action) MachineOption {
	return func(m *Machine) {
		name = strings.ToLower(strings.TrimSpace(name))
		m.actions[name] = registeredAction{
			info:   ActionInfo{Name: name, Description: description},
			action: action,
		}
	}
}

// WithMachineClock overrides the time source.
func WithMachineClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.now = now
	}
}

// NewMachine creates the dialog state machine.
func NewMachine(store PendingStore, refresher TokenRefresher, link LinkBuilder, messages *Messages, opts ...MachineOption) *Machine {
	m := &Machine{
		pending:         store,
		refresher:       refresher,
		link:            link,
		messages:        messages,
		actions:         make(map[string]registeredAction),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	infos := make([]ActionInfo, 0, len(m.actions))
	for _, a := range m.actions {
		infos = append(infos, a.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	messages.setActions(infos)

	return m
}

// HandleTurn computes the next state and the effects of one user turn.
func (m *Machine) HandleTurn(ctx context.Context, st State, turn Turn) (State, []Effect) {
	text := strings.TrimSpace(turn.Text)
	cmd := strings.ToLower(text)

	switch st.Phase {
	case PhaseAwaitingLink, PhaseAwaitingCode:
		if cmd == CmdQuit {
			m.pending.Revoke(turn.Address)
			if turn.Session.IsAuthenticated() {
				return State{Phase: PhaseAuthenticated}, m.reply(MsgGoodbye, MessageData{})
			}
			return State{Phase: PhaseAnonymous}, m.reply(MsgGoodbye, MessageData{})
		}
		// A signed-in conversation keeps its commands while a second
		// sign-in is waiting for its code.
		if turn.Session.IsAuthenticated() && m.isCommand(cmd) {
			next, effects := m.handleCommand(ctx, turn, cmd)
			if next.Phase == PhaseAuthenticated && m.pending.HasIssued(turn.Address) {
				next.Phase = st.Phase
			}
			return next, effects
		}
		// The user may paste the browser code before the chat prompt arrives.
		if st.Phase == PhaseAwaitingCode || m.pending.HasIssued(turn.Address) {
			return m.handleCode(turn, text)
		}
		if turn.Session.IsAuthenticated() {
			return State{Phase: PhaseAuthenticated}, m.reply(MsgAuthenticated, MessageData{Name: turn.Session.DisplayName})
		}
		return m.promptSignIn(turn.Address, MsgSignInReprompt, PhaseAwaitingLink)

	case PhaseAuthenticated:
		if !turn.Session.IsAuthenticated() {
			return m.startSignIn(turn.Address)
		}
		return m.handleCommand(ctx, turn, cmd)

	default: // Anonymous, LoggedOut
		return m.startSignIn(turn.Address)
	}
}

// isCommand reports whether cmd is a built-in command or a registered action.
func (m *Machine) isCommand(cmd string) bool {
	switch cmd {
	case CmdLogout, CmdQuit, CmdHelp:
		return true
	}
	_, ok := m.actions[cmd]
	return ok
}

func (m *Machine) startSignIn(addr address.Address) (State, []Effect) {
	st, effects := m.promptSignIn(addr, MsgSignIn, PhaseAwaitingLink)
	return st, append(m.reply(MsgWelcome, MessageData{}), effects...)
}

// promptSignIn replies with a fresh link and moves to next.
func (m *Machine) promptSignIn(addr address.Address, msg string, next Phase) (State, []Effect) {
	link, err := m.link(addr)
	if err != nil {
		logging.Error("Dialog", err, "Failed to build sign-in link for conversation %s", logging.TruncateID(addr.ConversationID))
		return State{Phase: PhaseAnonymous}, m.reply(MsgLinkFailed, MessageData{})
	}
	return State{Phase: next}, m.reply(msg, MessageData{Link: link})
}

func (m *Machine) handleCode(turn Turn, code string) (State, []Effect) {
	attempt, err := m.pending.Consume(turn.Address, code)
	switch {
	case err == nil:
		s := session.FromAttempt(attempt, m.now())
		logging.Audit(logging.AuditEvent{
			Action:       "signin_completed",
			Outcome:      "success",
			Transport:    turn.Address.TransportID,
			Conversation: logging.TruncateID(turn.Address.ConversationID),
			Principal:    s.PrincipalID,
		})
		return State{Phase: PhaseAuthenticated}, append(
			[]Effect{SaveSession{Session: s}},
			m.reply(MsgAuthenticated, MessageData{Name: s.DisplayName})...,
		)

	case errors.Is(err, pending.ErrInvalidCode):
		remaining := 0
		var invalid *pending.InvalidCodeError
		if errors.As(err, &invalid) {
			remaining = invalid.Remaining
		}
		return State{Phase: PhaseAwaitingCode}, m.reply(MsgInvalidCode, MessageData{Remaining: remaining})

	case errors.Is(err, pending.ErrTooManyFailures):
		logging.Audit(logging.AuditEvent{
			Action:       "attempt_revoked",
			Outcome:      "too_many_codes",
			Transport:    turn.Address.TransportID,
			Conversation: logging.TruncateID(turn.Address.ConversationID),
		})
		if turn.Session.IsAuthenticated() {
			return m.stillSignedIn(turn)
		}
		return m.promptSignIn(turn.Address, MsgTooManyCodes, PhaseAwaitingLink)

	default:
		// Expired or unknown code: start over.
		if !errors.Is(err, pending.ErrExpired) && !errors.Is(err, pending.ErrNotFound) {
			logging.Error("Dialog", err, "Unexpected error verifying code")
		}
		if turn.Session.IsAuthenticated() && !m.pending.HasIssued(turn.Address) {
			return m.stillSignedIn(turn)
		}
		return m.promptSignIn(turn.Address, MsgCodeExpired, PhaseAwaitingLink)
	}
}

// stillSignedIn ends a failed second sign-in without touching the stored session.
func (m *Machine) stillSignedIn(turn Turn) (State, []Effect) {
	return State{Phase: PhaseAuthenticated}, m.reply(MsgStillSignedIn, MessageData{Name: turn.Session.DisplayName})
}

func (m *Machine) handleCommand(ctx context.Context, turn Turn, cmd string) (State, []Effect) {
	authed := State{Phase: PhaseAuthenticated}

	switch cmd {
	case CmdLogout:
		m.pending.Revoke(turn.Address)
		logging.Audit(logging.AuditEvent{
			Action:       "logout",
			Outcome:      "success",
			Transport:    turn.Address.TransportID,
			Conversation: logging.TruncateID(turn.Address.ConversationID),
			Principal:    turn.Session.PrincipalID,
		})
		return State{Phase: PhaseLoggedOut}, append([]Effect{DeleteSession{}}, m.reply(MsgLoggedOut, MessageData{})...)
	case CmdQuit:
		return authed, m.reply(MsgGoodbye, MessageData{})
	case CmdHelp, "":
		return authed, m.reply(MsgMenu, MessageData{})
	}

	registered, ok := m.actions[cmd]
	if !ok {
		return authed, m.reply(MsgAuthenticated, MessageData{Name: turn.Session.DisplayName})
	}

	out, err := m.runAction(ctx, turn.Session, registered.action)
	switch {
	case err == nil:
		return authed, []Effect{Reply{Text: out}}
	case errors.Is(err, refresh.ErrInvalidGrant), errors.Is(err, refresh.ErrNotAuthenticated):
		return m.promptSignIn(turn.Address, MsgReauth, PhaseAwaitingLink)
	case errors.Is(err, refresh.ErrTransient):
		return authed, m.reply(MsgTryAgain, MessageData{})
	default:
		logging.Error("Dialog", err, "Action %s failed for conversation %s", cmd, logging.TruncateID(turn.Address.ConversationID))
		return authed, m.reply(MsgActionFailed, MessageData{Action: registered.info.Description})
	}
}

// runAction runs a with a valid token. A rejected token is refreshed once and
// the action retried once.
func (m *Machine) runAction(ctx context.Context, s *session.Session, a Action) (string, error) {
	s, err := m.refresher.EnsureValid(ctx, s)
	if err != nil {
		return "", err
	}

	out, err := a.Run(ctx, s.AccessToken.Value())
	if !errors.Is(err, oauth.ErrTokenRejected) {
		return out, err
	}

	s, err = m.refresher.ForceRefresh(ctx, s)
	if err != nil {
		return "", err
	}
	return a.Run(ctx, s.AccessToken.Value())
}

func (m *Machine) reply(name string, data MessageData) []Effect {
	return []Effect{Reply{Text: m.messages.Render(name, data)}}
}
