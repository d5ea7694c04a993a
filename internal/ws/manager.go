package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"

	"mappls-navigation/internal/navigation"
	"mappls-navigation/internal/routing"
	"mappls-navigation/internal/subscriber"
)

// Dependencies are shared by every client of a Manager.
type Dependencies struct {
	Sessions navigation.SessionCache
	Routes   navigation.RouteStore
	Router   routing.Router
	Clock    navigation.Clock
	// Provider replaces the browser geolocation of every client when set.
	Provider navigation.LocationProvider
}

type Options struct {
	Controller navigation.ControllerOptions
	Watcher    navigation.WatcherOptions
	Costing    routing.Costing
}

type Manager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc

	logger   *slog.Logger
	deps     Dependencies
	opts     Options
	validate *validator.Validate
}

var _ subscriber.RouteListener = (*Manager)(nil)

func NewManager(ctx context.Context, logger *slog.Logger, deps Dependencies, opts Options) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	if deps.Clock == nil {
		deps.Clock = navigation.SystemClock()
	}
	return &Manager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
		deps:       deps,
		opts:       opts,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (m *Manager) Start() {
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			if old, ok := m.clients[client.ID]; ok && old != client {
				m.logger.Info("session reconnected, closing previous connection", "clientID", client.ID)
				go old.Close()
			}
			m.clients[client.ID] = client
			m.mu.Unlock()
			m.logger.Info("client connected", "clientID", client.ID)
		case client := <-m.unregister:
			m.mu.Lock()
			if current, ok := m.clients[client.ID]; ok && current == client {
				delete(m.clients, client.ID)
				m.logger.Info("client disconnected", "clientID", client.ID)
			}
			m.mu.Unlock()
		case <-m.ctx.Done():
			return
		}
	}
}

// HandleNewConnection starts serving a navigation session on conn.
func (m *Manager) HandleNewConnection(sessionID string, conn *websocket.Conn) {
	NewClient(sessionID, conn, m).Start()
}

// RouteUpdated tells the connected client of sessionID that its stored route changed.
func (m *Manager) RouteUpdated(sessionID string, available bool) {
	m.mu.RLock()
	client, ok := m.clients[sessionID]
	m.mu.RUnlock()
	if ok {
		client.sendData(TypeRoute, RouteData{Available: available})
	}
}

func (m *Manager) forceDisconnect(c *Client) {
	c.Close()
}

func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for _, client := range m.clients {
		clients = append(clients, client)
	}
	m.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
