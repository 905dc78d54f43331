package events

import (
	"errors"
	"fmt"

	"github.com/dshills/asyncevent/internal/event"
)

// Event names.
const (
	// NamePlayerJoin is dispatched when a player finishes logging in.
	NamePlayerJoin = "player.join"

	// NamePlayerQuit is dispatched when a player disconnects.
	NamePlayerQuit = "player.quit"

	// NamePlayerDataDelete is dispatched before saved player data is removed.
	NamePlayerDataDelete = "player.data.delete"

	// NameInventoryOpen is dispatched before an inventory window is shown.
	NameInventoryOpen = "inventory.open"

	// NameChestPair is dispatched before two adjacent chests are joined.
	NameChestPair = "chest.pair"
)

// PlayerJoinEvent is dispatched when a player joins.
type PlayerJoinEvent struct {
	// Player is the player's name.
	Player string

	// Address is the remote address the player connected from.
	Address string

	// JoinMessage is broadcast to other players. Listeners may rewrite it;
	// an empty message is not broadcast.
	JoinMessage string

	// FirstJoin reports whether the player has no saved data.
	FirstJoin bool
}

// PlayerQuitEvent is dispatched when a player leaves.
type PlayerQuitEvent struct {
	Player      string
	Reason      string
	QuitMessage string
}

// PlayerDataDeleteEvent is dispatched before a player's saved data is
// deleted. Cancelling it keeps the data.
type PlayerDataDeleteEvent struct {
	event.CancelState

	// Player is the player whose data is deleted.
	Player string

	// Requester is whoever asked for the deletion, usually a command sender.
	Requester string
}

// InventoryOpenEvent is dispatched before a player opens an inventory.
// Cancelling it keeps the window closed.
type InventoryOpenEvent struct {
	event.CancelState

	Player    string
	Inventory string
	Size      int
}

// ChestPairEvent is dispatched before a chest at (X, Y, Z) is paired with
// the chest at (PairX, Y, PairZ) into a double chest. Cancelling it leaves
// both chests single.
type ChestPairEvent struct {
	event.CancelState

	World string
	X     int
	Y     int
	Z     int
	PairX int
	PairZ int
}

func (e *PlayerJoinEvent) String() string {
	return fmt.Sprintf("player=%s address=%s message=%q", e.Player, e.Address, e.JoinMessage)
}

func (e *PlayerQuitEvent) String() string {
	return fmt.Sprintf("player=%s reason=%q message=%q", e.Player, e.Reason, e.QuitMessage)
}

func (e *PlayerDataDeleteEvent) String() string {
	return fmt.Sprintf("player=%s requester=%s", e.Player, e.Requester)
}

func (e *InventoryOpenEvent) String() string {
	return fmt.Sprintf("player=%s inventory=%s size=%d", e.Player, e.Inventory, e.Size)
}

func (e *ChestPairEvent) String() string {
	return fmt.Sprintf("world=%s chest=(%d,%d,%d) pair=(%d,%d,%d)", e.World, e.X, e.Y, e.Z, e.PairX, e.Y, e.PairZ)
}

// RegisterAll adds every event in this package to types.
func RegisterAll(types *event.Types) error {
	return errors.Join(
		event.RegisterType[*PlayerJoinEvent](types, NamePlayerJoin),
		event.RegisterType[*PlayerQuitEvent](types, NamePlayerQuit),
		event.RegisterType[*PlayerDataDeleteEvent](types, NamePlayerDataDelete),
		event.RegisterType[*InventoryOpenEvent](types, NameInventoryOpen),
		event.RegisterType[*ChestPairEvent](types, NameChestPair),
	)
}

// Sample returns a populated event for name, used by the command line to
// dispatch something realistic. Unknown names fall back to types.New.
func Sample(types *event.Types, name string, seq int) (any, error) {
	switch name {
	case NamePlayerJoin:
		return &PlayerJoinEvent{
			Player:      playerName(seq),
			Address:     "127.0.0.1:19132",
			JoinMessage: playerName(seq) + " joined the game",
			FirstJoin:   seq == 0,
		}, nil
	case NamePlayerQuit:
		return &PlayerQuitEvent{
			Player:      playerName(seq),
			Reason:      "client disconnect",
			QuitMessage: playerName(seq) + " left the game",
		}, nil
	case NamePlayerDataDelete:
		return &PlayerDataDeleteEvent{Player: playerName(seq), Requester: "CONSOLE"}, nil
	case NameInventoryOpen:
		return &InventoryOpenEvent{Player: playerName(seq), Inventory: "chest", Size: 27}, nil
	case NameChestPair:
		return &ChestPairEvent{World: "world", X: seq, Y: 64, Z: 0, PairX: seq + 1, PairZ: 0}, nil
	}
	return types.New(name)
}

var samplePlayers = []string{"Steve", "Alex", "Notch", "Herobrine"}

func playerName(seq int) string {
	return samplePlayers[seq%len(samplePlayers)]
}
