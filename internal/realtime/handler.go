package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/supportdesk-backend/internal/notify"
	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	"github.com/angelmondragon/supportdesk-backend/pkg/config"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

// Presence is the part of the presence tracker the socket lifecycle drives.
type Presence interface {
	Connect(ctx context.Context, principal auth.Principal, connectionID string) error
	Disconnect(ctx context.Context, principal auth.Principal, connectionID string) error
	Touch(ctx context.Context, agentID uuid.UUID) error
}

// PrincipalFunc resolves the authenticated caller of an upgrade request.
type PrincipalFunc func(r *http.Request) (auth.Principal, bool)

// HandlerParams groups the socket handler's collaborators.
type HandlerParams struct {
	Hub       *Hub
	Router    *Router
	Presence  Presence
	Principal PrincipalFunc
	Config    config.RealtimeConfig
	Logger    *logger.Logger
}

// Handler upgrades GET /ws and runs the read and write pumps of each connection.
type Handler struct {
	hub       *Hub
	router    *Router
	presence  Presence
	principal PrincipalFunc
	cfg       config.RealtimeConfig
	logg      *logger.Logger
	upgrader  websocket.Upgrader
}

// NewHandler validates params and builds a Handler.
func NewHandler(params HandlerParams) (*Handler, error) {
	if params.Hub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hub is required")
	}
	if params.Router == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "router is required")
	}
	if params.Principal == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "principal resolver is required")
	}
	h := &Handler{
		hub:       params.Hub,
		router:    params.Router,
		presence:  params.Presence,
		principal: params.Principal,
		cfg:       params.Config,
		logg:      params.Logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logg != nil {
			h.logg.Warn(r.Context(), "websocket upgrade failed: "+err.Error())
		}
		return
	}

	client := newClient(uuid.NewString(), principal, h.cfg.SendBuffer)
	ctx := context.WithoutCancel(r.Context())
	if h.logg != nil {
		ctx = h.logg.WithConnectionID(ctx, client.id)
		ctx = h.logg.WithUserID(ctx, principal.ID.String())
		ctx = h.logg.WithActorRole(ctx, principal.Role.String())
	}

	h.attach(ctx, client)
	go h.writePump(ctx, conn, client)
	h.readPump(ctx, conn, client)
	h.detach(ctx, client)
}

func (h *Handler) attach(ctx context.Context, c *Client) {
	h.hub.Register(c)
	h.hub.Join(c, notify.Agent(c.principal.ID).Room())
	switch c.principal.Role {
	case enums.RoleService:
		h.hub.Join(c, notify.ServiceRoom().Room())
		if h.presence != nil {
			if err := h.presence.Connect(ctx, c.principal, c.id); err != nil {
				h.reportError(ctx, c, "connect presence", err)
			}
		}
	case enums.RoleAdmin:
		h.hub.Join(c, notify.AdminRoom().Room())
	}
	if h.logg != nil {
		h.logg.Info(ctx, "websocket connected")
	}
}

func (h *Handler) detach(ctx context.Context, c *Client) {
	h.hub.Unregister(c)
	if h.presence != nil && c.principal.Role == enums.RoleService {
		if err := h.presence.Disconnect(ctx, c.principal, c.id); err != nil && h.logg != nil {
			h.logg.Error(ctx, "disconnect presence", err)
		}
	}
	if h.logg != nil {
		h.logg.Info(ctx, "websocket disconnected")
	}
}

func (h *Handler) reportError(ctx context.Context, c *Client, msg string, err error) {
	h.hub.SendTo(c, notify.EventError, "", errorPayload("", err))
	if h.logg != nil {
		h.logg.Error(ctx, msg, err)
	}
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, c *Client) {
	defer conn.Close()

	if h.cfg.MaxFrameBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxFrameBytes)
	}
	pongWait := h.cfg.PongWait
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		if h.presence != nil && c.principal.Role == enums.RoleService {
			if err := h.presence.Touch(ctx, c.principal.ID); err != nil && h.logg != nil {
				h.logg.Warn(ctx, "presence heartbeat failed: "+err.Error())
			}
		}
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && h.logg != nil {
				h.logg.Warn(ctx, "websocket read failed: "+err.Error())
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.router.Dispatch(ctx, c, raw)
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, c *Client) {
	writeWait := h.cfg.WriteWait
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	ticker := time.NewTicker(h.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if h.logg != nil {
					h.logg.Warn(ctx, "websocket write failed: "+err.Error())
				}
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// checkOrigin allows same-origin requests, requests without an Origin header and
// the configured origins. A "*" entry allows everything.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return strings.EqualFold(origin, "http://"+r.Host) || strings.EqualFold(origin, "https://"+r.Host)
}
