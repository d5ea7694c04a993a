package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"mappls-navigation/internal/location"
	"mappls-navigation/internal/mapstyle"
	"mappls-navigation/internal/navigation"
	"mappls-navigation/internal/tracker"
)

const (
	// sendChannelSize controls the max number
	// of messages that can be queued for a client.
	sendChannelSize = 64
	pingPeriod      = (60 * 9 * time.Second) / 10
	storeTimeout    = 2 * time.Second
)

type Client struct {
	ID      string
	Conn    *websocket.Conn
	Manager *Manager
	send    chan Message
	ctx     context.Context
	cancel  context.CancelFunc

	closeOnce  sync.Once
	browser    *location.Browser
	style      *mapstyle.Style
	observer   *observer
	controller *navigation.Controller
}

// NewClient builds the navigation stack of one browser session: the browser is
// the location provider and renders the map style kept here.
func NewClient(id string, conn *websocket.Conn, manager *Manager) *Client {
	ctx, cancel := context.WithCancel(manager.ctx)
	c := &Client{
		ID:      id,
		Conn:    conn,
		Manager: manager,
		send:    make(chan Message, sendChannelSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	deps, opts, logger := manager.deps, manager.opts, manager.logger.With("clientID", id)

	c.browser = location.NewBrowser(c.sendCommand, deps.Clock)
	var provider navigation.LocationProvider = c.browser
	if deps.Provider != nil {
		provider = deps.Provider
	}

	c.style = mapstyle.New(func(change mapstyle.Change) { c.sendData(TypeMap, change) })
	plugin := tracker.New(deps.Router, c.style, logger, tracker.Options{
		Costing:    opts.Costing,
		OnProgress: func(p tracker.Progress) { c.sendData(TypeTracking, p) },
	})

	c.observer = newObserver(c)
	c.controller = navigation.NewController(
		navigation.NewWatcher(provider, deps.Clock, logger, opts.Watcher),
		navigation.NewTrackingSession(plugin, c.style, logger),
		deps.Clock,
		c.observer,
		logger,
		opts.Controller,
	)
	return c
}

func (c *Client) Start() {
	c.observer.persist()
	go c.readPump()
	go c.writePump()
	select {
	case c.Manager.register <- c:
	case <-c.Manager.ctx.Done():
		c.Close()
	}
}

// Close tears the navigation down and closes the connection. It is safe to call
// more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.controller.Teardown()
		c.browser.Close()
		c.observer.close()
		c.cancel()
		if err := c.Conn.Close(websocket.StatusNormalClosure, "bye :P"); err != nil {
			c.Manager.logger.Debug("failed to close connection", "clientID", c.ID, "error", err)
		}
	})
}

func (c *Client) Send(msg Message) {
	select {
	case <-c.ctx.Done():
	case c.send <- msg:
	default:
		c.Manager.logger.Warn("send queue full, disconnecting client", "clientID", c.ID)
		go c.Manager.forceDisconnect(c)
	}
}

func (c *Client) sendData(msgType string, data any) {
	msg, err := newMessage(msgType, data)
	if err != nil {
		c.Manager.logger.Error("failed to build message", "clientID", c.ID, "error", err)
		return
	}
	c.Send(msg)
}

func (c *Client) sendCommand(command string, req location.Request) error {
	if c.ctx.Err() != nil {
		return errors.New("client disconnected")
	}
	c.sendData(command, req)
	return nil
}

func (c *Client) sendError(kind, message string) {
	c.sendData(TypeError, ErrorData{Kind: kind, Message: message})
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Manager.unregister <- c:
		case <-c.Manager.ctx.Done():
		}
		c.Close()
	}()

	for {
		var msg Message
		if err := wsjson.Read(c.ctx, c.Conn, &msg); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				c.Manager.logger.Debug("client closed connection", "clientID", c.ID)
			} else {
				c.Manager.logger.Warn("failed to read message", "clientID", c.ID, "error", err)
			}
			break
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			if err := wsjson.Write(c.ctx, c.Conn, msg); err != nil {
				c.Manager.logger.Warn("failed to write message", "clientID", c.ID, "error", err)
				return
			}
			c.Manager.logger.Debug("message sent", "clientID", c.ID, "type", msg.Type)
		case <-ticker.C:
			if err := c.Conn.Ping(c.ctx); err != nil {
				c.Manager.logger.Debug("failed to ping client", "clientID", c.ID, "error", err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// decode unmarshals and validates the data of msg, answering the client with
// a bad_request error when it is malformed.
func (c *Client) decode(msg Message, v any) bool {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.Manager.logger.Warn("failed to unmarshal message", "clientID", c.ID, "type", msg.Type, "error", err)
		c.sendError(KindBadRequest, "malformed "+msg.Type+" message")
		return false
	}
	if err := c.Manager.validate.Struct(v); err != nil {
		c.Manager.logger.Warn("invalid message", "clientID", c.ID, "type", msg.Type, "error", err)
		c.sendError(KindBadRequest, "invalid "+msg.Type+" message")
		return false
	}
	return true
}

func (c *Client) handleMessage(msg Message) {
	c.Manager.logger.Debug("received message", "clientID", c.ID, "type", msg.Type)

	switch msg.Type {
	case TypeRoute:
		var result navigation.RouteResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			c.Manager.logger.Warn("failed to unmarshal route", "clientID", c.ID, "error", err)
			c.sendError(KindBadRequest, "malformed route message")
			return
		}
		c.storeRoute(&result)
	case TypeRouteClear:
		c.storeRoute(nil)
	case TypeStart:
		var data StartData
		if len(msg.Data) > 0 && !c.decode(msg, &data) {
			return
		}
		route := data.Result
		if route == nil {
			route = c.lastRoute()
		}
		c.controller.Start(route)
	case TypeStop:
		c.controller.Stop()
	case TypeLocate:
		c.controller.Locate()
	case TypePosition:
		var data PositionData
		if !c.decode(msg, &data) {
			return
		}
		c.browser.DeliverFix(data.ID, navigation.GeoFix{Latitude: data.Latitude, Longitude: data.Longitude, Heading: data.Heading})
	case TypePositionError:
		var data PositionErrorData
		if !c.decode(msg, &data) {
			return
		}
		c.browser.DeliverError(data.ID, data.Code, data.Message)
	default:
		c.Manager.logger.Debug("received unknown type message", "clientID", c.ID, "type", msg.Type)
	}
}

// storeRoute records result as the last route calculation, or clears it when nil.
func (c *Client) storeRoute(result *navigation.RouteResult) {
	routes := c.Manager.deps.Routes
	if routes == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()

	var err error
	if result == nil {
		err = routes.ClearLastRoute(ctx, c.ID)
	} else {
		err = routes.SetLastRoute(ctx, c.ID, result)
	}
	if err != nil {
		c.Manager.logger.Warn("failed to store route", "clientID", c.ID, "error", err)
		return
	}
	c.sendData(TypeRoute, RouteData{Available: result != nil})
}

// lastRoute reads the stored route once. A missing or unreadable route is nil,
// which the controller reports as NoRoute.
func (c *Client) lastRoute() *navigation.RouteResult {
	routes := c.Manager.deps.Routes
	if routes == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()

	result, err := routes.LastRoute(ctx, c.ID)
	if err != nil {
		c.Manager.logger.Warn("failed to read last route", "clientID", c.ID, "error", err)
		return nil
	}
	return result
}
