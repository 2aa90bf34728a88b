package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gravitas-games/gridstash/internal/network"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/gravitas-games/gridstash/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// catalogExporter is implemented by catalogs that can list their items,
// such as *inventory.Registry
type catalogExporter interface {
	Export() []inventory.ItemDetails
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ws     *websocket.Conn
	server *Server
	log    logrus.FieldLogger

	// Player information (set after authentication)
	player *models.Player
	inv    *inventory.Inventory

	// Buffered channel for outbound messages
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// NewConnection creates a new connection
func NewConnection(ws *websocket.Conn, server *Server, player *models.Player) *Connection {
	return &Connection{
		ws:     ws,
		server: server,
		player: player,
		log:    server.log.WithField("player", player.ID),
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// Handle manages the connection lifecycle
func (c *Connection) Handle() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.writePump()
	c.readPump() // Blocking
}

// readPump pumps messages from the WebSocket connection to the inventory
func (c *Connection) readPump() {
	defer c.Close()

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("WebSocket read error")
			}
			return
		}

		msg, err := c.server.validator.Parse(message)
		if err != nil {
			c.log.WithError(err).Debug("Rejected client message")
			c.SendError(network.CodeInvalidMessage, err.Error())
			continue
		}

		c.handleMessage(msg)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Warn("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.server.ctx.Done():
			return
		}
	}
}

// handleMessage routes messages to the matching inventory intent
func (c *Connection) handleMessage(msg *network.ClientMessage) {
	c.log.WithField("type", msg.Type).Debug("Received message")

	switch msg.Type {
	case network.MsgTypePing:
		c.SendMessage(&network.ServerMessage{
			Type:    network.MsgTypePong,
			Payload: map[string]interface{}{"timestamp": time.Now().Unix()},
		})

	case network.MsgTypeSnapshot:
		c.inv.TakeDiff()
		c.reply(msg, c.inv.Snapshot(), nil)

	case network.MsgTypeCatalog:
		ex, ok := c.server.session.catalog.(catalogExporter)
		if !ok {
			c.reply(msg, nil, fmt.Errorf("%w: catalog cannot be listed", inventory.ErrNotFound))
			return
		}
		c.reply(msg, network.CatalogPayload{Items: ex.Export()}, nil)

	case network.MsgTypeAddItem:
		var p network.AddItemPayload
		if c.decode(msg, &p) {
			res, err := c.inv.AddItemAuto(p.Item, p.Count)
			c.reply(msg, res, err)
		}

	case network.MsgTypeMoveItem:
		var p network.MoveItemPayload
		if c.decode(msg, &p) {
			err := c.inv.MoveItem(inventory.MoveRequest{
				Instance: p.Instance,
				From:     p.From,
				To:       p.To,
				Position: p.Position,
				Rotate:   p.Rotate,
			})
			c.reply(msg, nil, err)
		}

	case network.MsgTypeSplitItem:
		var p network.SplitItemPayload
		if c.decode(msg, &p) {
			id, err := c.inv.SplitItem(p.Container, p.Instance, p.Amount)
			var data interface{}
			if err == nil {
				data = map[string]inventory.InstanceID{"instance": id}
			}
			c.reply(msg, data, err)
		}

	case network.MsgTypeMergeInstances:
		var p network.MergeInstancesPayload
		if c.decode(msg, &p) {
			c.reply(msg, nil, c.inv.MergeInstances(p.Source, p.Target))
		}

	case network.MsgTypeSetPocketFilters:
		var p network.SetPocketFiltersPayload
		if c.decode(msg, &p) {
			c.reply(msg, nil, c.inv.SetPocketFilters(p.Pocket, p.Whitelist, p.Blacklist))
		}

	case network.MsgTypeAddPocket:
		var p network.AddPocketPayload
		if c.decode(msg, &p) {
			id, err := c.inv.AddPocketFromItem(p.Item)
			var data interface{}
			if err == nil {
				data = map[string]inventory.ContainerID{"container": id}
			}
			c.reply(msg, data, err)
		}

	case network.MsgTypeMergeAll:
		c.inv.MergeAll()
		c.reply(msg, nil, nil)

	case network.MsgTypeAutoArrange:
		c.inv.AutoArrangeAll()
		c.reply(msg, nil, nil)

	default:
		c.log.WithField("type", msg.Type).Warn("Unknown message type")
		c.SendError(network.CodeUnknownType, "Unknown message type")
	}
}

func (c *Connection) decode(msg *network.ClientMessage, v interface{}) bool {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		c.SendError(network.CodeInvalidMessage, err.Error())
		return false
	}
	return true
}

// reply answers an intent with its outcome and the changes it committed
func (c *Connection) reply(msg *network.ClientMessage, data interface{}, err error) {
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeResult,
		Payload: network.ResultPayload{
			RequestID: msg.RequestID,
			Intent:    msg.Type,
			OK:        err == nil,
			Error:     network.NewError(err),
			Data:      data,
			Diff:      c.inv.TakeDiff(),
		},
	})
}

// SendMessage queues a message for the client. Messages sent after the
// connection closed are dropped.
func (c *Connection) SendMessage(msg *network.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.WithError(err).Error("Failed to marshal message")
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.log.Warn("Send buffer full, dropping message")
	}
}

// SendError sends an error message to the client
func (c *Connection) SendError(code, message string) {
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeError,
		Payload: network.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}

// Close detaches the player and stops the write pump. It is safe to call
// more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.inv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			defer cancel()
			if err := c.server.session.Detach(ctx, c.player.ID); err != nil {
				c.log.WithError(err).Error("Failed to save inventory on disconnect")
			}
		}
	})
}
