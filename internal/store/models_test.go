package store

import (
	"testing"
	"time"
)

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	session := Session{ExpiresAt: now.Add(time.Minute)}

	if session.Expired(now) {
		t.Error("a session expiring in a minute is not expired")
	}
	if !session.Expired(now.Add(2 * time.Minute)) {
		t.Error("a session past its expiry is expired")
	}
	// The boundary instant is still live; only strictly-after is expired.
	if session.Expired(session.ExpiresAt) {
		t.Error("a session at its exact expiry instant is still live")
	}
}
