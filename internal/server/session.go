package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gravitas-games/gridstash/internal/network"
	"github.com/gravitas-games/gridstash/internal/store"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/gravitas-games/gridstash/pkg/models"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyConnected is returned when a player opens a second connection
var ErrAlreadyConnected = errors.New("player already connected")

// Session owns the live inventories of every connected player
type Session struct {
	ID        string
	CreatedAt time.Time

	store   store.Store
	catalog inventory.Catalog
	opts    []inventory.Option
	events  *inventory.SimpleEventBus
	log     logrus.FieldLogger

	mu      sync.RWMutex
	players map[string]*playerState // playerID -> state
}

type playerState struct {
	player *models.Player
	inv    *inventory.Inventory
	conn   *Connection
}

// SessionStatus summarizes the session for the health endpoint
type SessionStatus struct {
	PlayerCount int   `json:"player_count"`
	Uptime      int64 `json:"uptime"` // seconds
}

// NewSession creates a session that loads and saves inventories through st.
// opts shape inventories created for players without a saved snapshot.
func NewSession(id string, st store.Store, cat inventory.Catalog, log logrus.FieldLogger, opts ...inventory.Option) *Session {
	log = log.WithField("session", id)
	log.Info("Creating session")
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		store:     st,
		catalog:   cat,
		opts:      opts,
		events:    inventory.NewSimpleEventBus(),
		log:       log,
		players:   make(map[string]*playerState),
	}
}

// Attach loads (or creates) the player's inventory and routes its events
// to conn.
func (s *Session) Attach(ctx context.Context, player *models.Player, conn *Connection) (*inventory.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[player.ID]; exists {
		return nil, ErrAlreadyConnected
	}

	inv, err := s.loadInventory(ctx, player)
	if err != nil {
		return nil, err
	}
	player.InventoryID = inv.ID()
	player.Connected = true
	player.ConnectedAt = time.Now()

	s.players[player.ID] = &playerState{player: player, inv: inv, conn: conn}
	s.events.Subscribe(player.Owner(), func(e inventory.Event) { s.forward(inv, conn, e) })

	s.log.WithFields(logrus.Fields{"player": player.ID, "username": player.Username, "revision": inv.Revision()}).Info("Player joined session")
	return inv, nil
}

func (s *Session) loadInventory(ctx context.Context, player *models.Player) (*inventory.Inventory, error) {
	opts := append([]inventory.Option{
		inventory.WithEventBus(s.events),
		inventory.WithLogger(s.log.WithField("player", player.ID)),
	}, s.opts...)

	snap, err := s.store.Load(ctx, player.Owner())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return inventory.New("inv-"+player.ID, player.Owner(), s.catalog, opts...), nil
	case err != nil:
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}

	inv, err := inventory.Restore(snap, s.catalog, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to restore inventory: %w", err)
	}
	// catch up on decay that happened while the player was away
	inv.Tick(time.Now())
	inv.TakeDiff()
	return inv, nil
}

// forward pushes decay results to the player. Intent results already
// carry their diff, so only perish commits are pushed here.
func (s *Session) forward(inv *inventory.Inventory, conn *Connection, e inventory.Event) {
	switch e.Type {
	case inventory.EventPerished:
		conn.SendMessage(&network.ServerMessage{
			Type: network.MsgTypePerished,
			Payload: network.PerishedPayload{
				Instance: e.Instance,
				Item:     e.Item,
				Count:    e.Count,
			},
		})
	case inventory.EventChanged:
		if e.Intent != inventory.IntentPerishTick {
			return
		}
		diff := inv.TakeDiff()
		if diff.Empty() {
			return
		}
		conn.SendMessage(&network.ServerMessage{
			Type:    network.MsgTypeDiff,
			Payload: network.DiffPayload{Reason: e.Intent, Diff: diff},
		})
	}
}

// Detach saves the player's inventory and stops its timers
func (s *Session) Detach(ctx context.Context, playerID string) error {
	s.mu.Lock()
	st, exists := s.players[playerID]
	if exists {
		delete(s.players, playerID)
	}
	s.mu.Unlock()
	if !exists {
		return nil
	}

	s.events.Unsubscribe(st.player.Owner())
	st.inv.Close()
	st.player.Connected = false
	st.player.LastSeen = time.Now()

	if err := s.store.Save(ctx, st.inv.Snapshot()); err != nil {
		return fmt.Errorf("failed to save inventory: %w", err)
	}
	s.log.WithFields(logrus.Fields{"player": playerID, "revision": st.inv.Revision()}).Info("Player left session")
	return nil
}

// SaveAll writes every live inventory to the store
func (s *Session) SaveAll(ctx context.Context) error {
	s.mu.RLock()
	snaps := make([]inventory.Snapshot, 0, len(s.players))
	for _, st := range s.players {
		snaps = append(snaps, st.inv.Snapshot())
	}
	s.mu.RUnlock()

	var errs []error
	for _, snap := range snaps {
		if err := s.store.Save(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("owner %s: %w", snap.Owner, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.log.WithField("inventories", len(snaps)).Debug("Saved inventories")
	return nil
}

// Inventory returns the live inventory of a connected player
func (s *Session) Inventory(playerID string) (*inventory.Inventory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.players[playerID]
	if !ok {
		return nil, false
	}
	return st.inv, true
}

// GetPlayers returns all connected players
func (s *Session) GetPlayers() []*models.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]*models.Player, 0, len(s.players))
	for _, st := range s.players {
		players = append(players, st.player)
	}
	return players
}

// GetStatus returns the current session status
func (s *Session) GetStatus() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionStatus{
		PlayerCount: len(s.players),
		Uptime:      int64(time.Since(s.CreatedAt).Seconds()),
	}
}
