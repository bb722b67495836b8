package store

import "time"

// Session is a shared swiping group. ParticipantCount is only ever mutated
// through the atomic increment/decrement operations on the store.
type Session struct {
	ID               string
	JoinCode         string
	QuorumFraction   float64
	ParticipantCount int
	Genres           []int
	Providers        []int
	Region           string
	Language         string
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// Expired reports whether the session is past its TTL at the given instant.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// CandidateVote is the per-(session, movie) like counter. A row exists from
// first discovery or first vote onward, exactly one per pair.
type CandidateVote struct {
	SessionID string
	MovieID   string
	VoteCount int
}

// VoteTally is the read-back of a single atomic vote increment: the updated
// count together with the session state that decides quorum, all captured in
// the same atomic step.
type VoteTally struct {
	VoteCount        int
	ParticipantCount int
	QuorumFraction   float64
}
