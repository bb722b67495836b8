package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/nawal-0/moviepicker/internal/tmdb"
)

// MatchEvent is the payload pushed to every connection of a session when a
// candidate crosses quorum.
type MatchEvent struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id"`
	MovieID   string           `json:"movie_id"`
	Movie     tmdb.MovieDetail `json:"movie"`
}

// Notifier fans a match out to the session's live connections. It runs
// detached from the vote request that triggered it, on its own context, so
// it must survive the caller's handler returning first.
type Notifier struct {
	catalog  catalog
	registry connectionRegistry
	pusher   Pusher
	timeout  time.Duration
}

func NewNotifier(catalog catalog, registry connectionRegistry, pusher Pusher) *Notifier {
	return &Notifier{
		catalog:  catalog,
		registry: registry,
		pusher:   pusher,
		timeout:  30 * time.Second,
	}
}

// Broadcast enriches the matched movie with catalog detail and pushes it to
// every registered connection. A failed push affects only that connection;
// a failed detail fetch abandons the whole broadcast. There is no retry.
func (n *Notifier) Broadcast(sessionID, movieID, language string) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	detail, err := n.catalog.GetMovie(ctx, movieID, language)
	if err != nil {
		log.Printf("notify: abandon match %s in session %s: detail fetch: %v", movieID, sessionID, err)
		return
	}

	payload, err := json.Marshal(MatchEvent{
		Type:      "match",
		SessionID: sessionID,
		MovieID:   movieID,
		Movie:     detail,
	})
	if err != nil {
		log.Printf("notify: abandon match %s in session %s: marshal: %v", movieID, sessionID, err)
		return
	}

	connections, err := n.registry.ConnectionsFor(ctx, sessionID)
	if err != nil {
		log.Printf("notify: abandon match %s in session %s: list connections: %v", movieID, sessionID, err)
		return
	}
	if len(connections) == 0 {
		log.Printf("notify: match %s in session %s: no listeners", movieID, sessionID)
		return
	}

	for _, connectionID := range connections {
		if err := n.pusher.Push(ctx, connectionID, payload); err != nil {
			log.Printf("notify: push match %s to connection %s: %v", movieID, connectionID, err)
		}
	}
}
