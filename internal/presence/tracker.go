// Package presence tracks which support agents are online.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supportdesk-backend/internal/agents"
	"github.com/angelmondragon/supportdesk-backend/internal/complaints"
	"github.com/angelmondragon/supportdesk-backend/internal/notify"
	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

// Drainer hands waiting complaints to an agent that just came online.
type Drainer interface {
	Drain(ctx context.Context, agentID uuid.UUID) (*complaints.Assignment, error)
}

// TrackerParams groups the tracker's collaborators.
type TrackerParams struct {
	Agents   agents.Repository
	Drainer  Drainer
	Notifier notify.Notifier
	Logger   *logger.Logger
	Now      func() time.Time
}

// StatusPayload is the body of service-status-change.
type StatusPayload struct {
	ServiceID uuid.UUID `json:"serviceId"`
	Name      string    `json:"name,omitempty"`
	IsOnline  bool      `json:"isOnline"`
	At        time.Time `json:"at"`
}

// AgentView is one row of the admin presence listing.
type AgentView struct {
	ID             uuid.UUID  `json:"id"`
	DisplayName    string     `json:"displayName"`
	IsOnline       bool       `json:"isOnline"`
	Sessions       int        `json:"sessions"`
	LastActiveAt   *time.Time `json:"lastActiveAt,omitempty"`
	ActiveCount    int        `json:"activeCount"`
	LiveChatActive bool       `json:"liveChatActive"`
}

// Tracker keeps one presence record per agent. Several live sessions of the
// same agent are counted in process; the agent goes offline when the last
// one disconnects. Session bookkeeping and the matching presence write for
// one agent happen under that agent's lock.
type Tracker struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]map[string]struct{}
	locks    map[uuid.UUID]*sync.Mutex

	agents   agents.Repository
	drainer  Drainer
	notifier notify.Notifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewTracker validates params and builds a Tracker.
func NewTracker(params TrackerParams) (*Tracker, error) {
	if params.Agents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent repo is required")
	}
	if params.Drainer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "drainer is required")
	}
	if params.Notifier == nil {
		params.Notifier = notify.Nop{}
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Tracker{
		sessions: make(map[uuid.UUID]map[string]struct{}),
		locks:    make(map[uuid.UUID]*sync.Mutex),
		agents:   params.Agents,
		drainer:  params.Drainer,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      params.Now,
	}, nil
}

// Connect marks the agent online under connectionID and drains the waiting
// queue for them.
func (t *Tracker) Connect(ctx context.Context, principal auth.Principal, connectionID string) error {
	if !principal.Is(enums.RoleService) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only support agents have presence")
	}
	if connectionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "connection id is required")
	}

	if err := t.goOnline(ctx, principal, connectionID); err != nil {
		return err
	}

	ctx = t.withAgent(ctx, principal.ID)
	if t.logg != nil {
		t.logg.Info(t.logg.WithConnectionID(ctx, connectionID), "agent online")
	}
	if _, err := t.drainer.Drain(ctx, principal.ID); err != nil && t.logg != nil {
		t.logg.Error(ctx, "drain on connect failed", err)
	}
	return nil
}

// Disconnect drops connectionID. The agent goes offline once no session is
// left. Connection ids the tracker no longer knows are ignored, so a socket
// closing after a REST offline does not announce the agent twice. Active
// complaints stay bound.
func (t *Tracker) Disconnect(ctx context.Context, principal auth.Principal, connectionID string) error {
	if !principal.Is(enums.RoleService) {
		return nil
	}
	defer t.lockAgent(principal.ID)()
	if !t.knows(principal.ID, connectionID) {
		return nil
	}
	if remaining := t.forget(principal.ID, connectionID); remaining > 0 {
		return nil
	}
	return t.goOffline(ctx, principal)
}

// SetStatus is the REST form of Connect and Disconnect. Going offline drops
// every session the tracker knows about, websocket ones included; a REST
// online session lives until the next REST offline.
func (t *Tracker) SetStatus(ctx context.Context, principal auth.Principal, online bool, connectionID string) error {
	if !principal.Is(enums.RoleService) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only support agents have presence")
	}
	if online {
		if connectionID == "" {
			connectionID = "rest:" + principal.ID.String()
		}
		return t.Connect(ctx, principal, connectionID)
	}

	defer t.lockAgent(principal.ID)()
	t.mu.Lock()
	delete(t.sessions, principal.ID)
	t.mu.Unlock()
	return t.goOffline(ctx, principal)
}

// goOnline records the session and persists the agent online. Callers must
// not hold the agent lock.
func (t *Tracker) goOnline(ctx context.Context, principal auth.Principal, connectionID string) error {
	defer t.lockAgent(principal.ID)()
	now := t.now().UTC()
	t.remember(principal.ID, connectionID)
	if _, err := t.agents.MarkOnline(ctx, principal.ID, principal.Name, connectionID, now); err != nil {
		t.forget(principal.ID, connectionID)
		return err
	}
	t.announce(ctx, principal, true, now)
	return nil
}

// goOffline persists the agent offline. The caller holds the agent lock.
func (t *Tracker) goOffline(ctx context.Context, principal auth.Principal) error {
	if err := t.agents.MarkOffline(ctx, principal.ID); err != nil {
		return err
	}
	t.announce(ctx, principal, false, t.now().UTC())
	if t.logg != nil {
		t.logg.Info(t.withAgent(ctx, principal.ID), "agent offline")
	}
	return nil
}

func (t *Tracker) announce(ctx context.Context, principal auth.Principal, online bool, at time.Time) {
	t.notifier.Emit(ctx, notify.Event{
		Name:     notify.EventServiceStatusChange,
		Audience: notify.AdminRoom(),
		Payload:  StatusPayload{ServiceID: principal.ID, Name: principal.Name, IsOnline: online, At: at},
	})
}

// Touch refreshes last_active_at.
func (t *Tracker) Touch(ctx context.Context, agentID uuid.UUID) error {
	return t.agents.Touch(ctx, agentID, t.now().UTC())
}

// Sessions reports how many live sessions the agent has in this process.
func (t *Tracker) Sessions(agentID uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions[agentID])
}

// List returns every known agent with their load.
func (t *Tracker) List(ctx context.Context) ([]AgentView, error) {
	loads, err := t.agents.ListWithLoad(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]AgentView, len(loads))
	for i, l := range loads {
		views[i] = AgentView{
			ID:             l.Agent.ID,
			DisplayName:    l.Agent.DisplayName,
			IsOnline:       l.Agent.IsOnline,
			Sessions:       t.Sessions(l.Agent.ID),
			LastActiveAt:   l.Agent.LastActiveAt,
			ActiveCount:    l.Active,
			LiveChatActive: l.LiveChat > 0,
		}
	}
	return views, nil
}

// lockAgent serialises presence changes of one agent and returns the unlock.
func (t *Tracker) lockAgent(agentID uuid.UUID) func() {
	t.mu.Lock()
	l, ok := t.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[agentID] = l
	}
	t.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (t *Tracker) remember(agentID uuid.UUID, connectionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.sessions[agentID]
	if !ok {
		set = make(map[string]struct{})
		t.sessions[agentID] = set
	}
	set[connectionID] = struct{}{}
}

func (t *Tracker) knows(agentID uuid.UUID, connectionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[agentID][connectionID]
	return ok
}

func (t *Tracker) forget(agentID uuid.UUID, connectionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.sessions[agentID]
	delete(set, connectionID)
	if len(set) == 0 {
		delete(t.sessions, agentID)
		return 0
	}
	return len(set)
}

func (t *Tracker) withAgent(ctx context.Context, agentID uuid.UUID) context.Context {
	if t.logg == nil {
		return ctx
	}
	return t.logg.WithAgentID(ctx, agentID.String())
}
