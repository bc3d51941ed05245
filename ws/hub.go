package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"codeduel-server/auth"
	"codeduel-server/config"
	"codeduel-server/duelerrors"
	"codeduel-server/matchmaking"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// devIdentity is returned for the literal "dev" token so a local client can
// connect without an auth provider.
var devIdentity = auth.Identity{ID: "DEVELOPER", Name: "Developer"}

// Engine defines what the registry needs from the match lifecycle manager.
type Engine interface {
	HandleSolution(userID, matchID, solution string) error
	HandleSurrender(userID, matchID string) error
	HandleDisconnect(userID string)
}

// UserStore defines the profile lookup the registry performs on connect.
type UserStore interface {
	EnsureUser(ctx context.Context, id, name, photoURL string) (int, error)
}

// Registry tracks at most one live connection per identity and bridges
// connections into the waiting pool and the match engine.
type Registry struct {
	Engine Engine

	cfg   *config.Config
	users UserStore
	pool  *matchmaking.Pool

	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *config.Config, users UserStore, pool *matchmaking.Pool, engine Engine) *Registry {
	return &Registry{
		Engine:  engine,
		cfg:     cfg,
		users:   users,
		pool:    pool,
		clients: make(map[string]*Client),
	}
}

// Len returns the number of live connections.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.clients)
}

// register claims the identity for c. If another connection already holds
// it, registration fails and the caller must close c.
func (reg *Registry) register(c *Client) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.clients[c.UserID]; ok {
		return false
	}
	reg.clients[c.UserID] = c
	return true
}

// drop releases the identity if c still holds it and runs the disconnect
// path exactly once. A rejected duplicate never reaches here with ownership,
// so its close does not disturb the original session.
func (reg *Registry) drop(c *Client) {
	reg.mu.Lock()
	owner, ok := reg.clients[c.UserID]
	if !ok || owner != c {
		reg.mu.Unlock()
		return
	}
	delete(reg.clients, c.UserID)
	reg.mu.Unlock()

	close(c.Send)
	reg.pool.Leave(c.UserID)
	reg.Engine.HandleDisconnect(c.UserID)
	slog.Info("client disconnected", "tag", "ws", "user", c.UserID, "online", reg.Len())
}

// ServeWS handles WebSocket upgrade requests at /duel?token=...
// A successful connection is queued for matchmaking immediately.
func (reg *Registry) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	identity := devIdentity
	if token != "dev" {
		var err error
		identity, err = auth.ValidateToken(reg.cfg.AuthBaseURL, token)
		if err != nil {
			slog.Warn("token validation failed", "tag", "ws", "err", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	rating, err := reg.users.EnsureUser(ctx, identity.ID, identity.Name, identity.PhotoURL)
	if err != nil {
		slog.Error("ensuring user profile", "tag", "ws", "user", identity.ID, "err", err)
		http.Error(w, "profile unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade error", "tag", "ws", "err", err)
		return
	}

	client := &Client{
		Registry: reg,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		UserID:   identity.ID,
		Name:     identity.Name,
	}

	if !reg.register(client) {
		// One live session per identity: the existing connection wins and
		// the new one is turned away.
		slog.Warn("duplicate session rejected", "tag", "ws", "user", identity.ID)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, duelerrors.ErrDuplicateSession.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	// Queue before the pumps start: once ReadPump runs, a dying connection
	// can reach drop(), and its pool.Leave must always see the entry.
	if err := reg.pool.Join(&matchmaking.Entry{
		ID:       identity.ID,
		Name:     identity.Name,
		PhotoURL: identity.PhotoURL,
		Rating:   rating,
		JoinedAt: time.Now(),
		Conn:     client,
	}); err != nil {
		slog.Error("queueing player", "tag", "ws", "user", identity.ID, "err", err)
	}

	go client.WritePump()
	go client.ReadPump()

	slog.Info("client connected", "tag", "ws", "user", identity.ID, "rating", rating, "online", reg.Len())
}
