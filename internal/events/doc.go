// Package events defines the game events dispatched by the asyncevent
// command and handled by plugins.
//
// Every event is a pointer to a struct so listeners can mutate it in place.
// Events that embed event.CancelState can be cancelled; listeners registered
// without event.HandleCancelled are skipped once that happens.
//
// Event names are dot separated and grouped by subject, so plugins can
// subscribe with patterns:
//
//	player.*      player.join, player.quit
//	player.**     player.join, player.quit, player.data.delete
//	*.open        inventory.open
package events
