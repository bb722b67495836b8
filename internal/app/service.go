package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"github.com/nawal-0/moviepicker/internal/config"
	"github.com/nawal-0/moviepicker/internal/store"
	"github.com/nawal-0/moviepicker/internal/tmdb"
	"github.com/nawal-0/moviepicker/internal/util"
)

type dataStore interface {
	CreateSession(context.Context, store.Session) error
	GetSession(context.Context, string) (store.Session, error)
	GetSessionByJoinCode(context.Context, string) (store.Session, error)
	JoinCodeActive(context.Context, string) (bool, error)
	IncrementParticipants(context.Context, string) (int, error)
	DecrementParticipants(context.Context, string) (int, error)
	DeleteSession(context.Context, string) (bool, error)
	EnsureCandidates(context.Context, string, []string) error
	IncrementVote(context.Context, string, string) (store.VoteTally, error)
	ListCandidates(context.Context, string) ([]store.CandidateVote, error)
	Ping(ctx context.Context) error
}

type catalog interface {
	Discover(context.Context, tmdb.DiscoverQuery) (tmdb.DiscoverPage, error)
	GetMovie(ctx context.Context, movieID, language string) (tmdb.MovieDetail, error)
}

type connectionRegistry interface {
	Register(ctx context.Context, sessionID, connectionID string, ttl time.Duration) error
	ConnectionsFor(ctx context.Context, sessionID string) ([]string, error)
	Unregister(ctx context.Context, connectionID string) error
	DropSession(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
}

// Pusher delivers one payload to one connection. The transport owns
// connection lifecycle and disconnect detection.
type Pusher interface {
	Push(ctx context.Context, connectionID string, payload []byte) error
}

type CreateSessionInput struct {
	QuorumFraction float64
	Genres         []int
	Providers      []int
	Region         string
	Language       string
}

type DiscoverResult struct {
	MovieIDs     []string
	Page         int
	TotalPages   int
	HasMore      bool
	TotalResults int
}

// VoteOutcome reports the updated like count and whether this particular
// vote was the one that crossed quorum.
type VoteOutcome struct {
	MatchCount    int
	CrossedQuorum bool
	RequiredVotes int
	TotalUsers    int
}

type MatchRecord struct {
	MovieID         string          `json:"id"`
	Title           string          `json:"title"`
	Year            int             `json:"year,omitempty"`
	Genres          []tmdb.GenreRef `json:"genres"`
	Overview        string          `json:"overview"`
	PosterPath      string          `json:"poster_path"`
	MatchPercentage int             `json:"match_percentage"`
	MatchCount      int             `json:"match_count"`
	TotalUsers      int             `json:"total_users"`
	VotedBy         string          `json:"voted_by"`
}

type CandidateStatus struct {
	MovieID    string `json:"movie_id"`
	MatchCount int    `json:"match_count"`
	IsMatch    bool   `json:"is_match"`
}

type Service struct {
	cfg      config.Config
	store    dataStore
	catalog  catalog
	registry connectionRegistry
	notifier *Notifier
	now      func() time.Time
}

func New(cfg config.Config, dataStore dataStore, catalog catalog, registry connectionRegistry, pusher Pusher) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		catalog:  catalog,
		registry: registry,
		notifier: NewNotifier(catalog, registry, pusher),
		now:      time.Now,
	}
}

// requiredVotes is the dynamic quorum threshold. At least one vote is always
// required, even when the fraction rounds down to zero.
func requiredVotes(quorumFraction float64, participantCount int) int {
	required := int(math.Floor(quorumFraction * float64(participantCount)))
	if required < 1 {
		return 1
	}
	return required
}

func (s *Service) CreateSession(ctx context.Context, input CreateSessionInput) (store.Session, error) {
	if input.QuorumFraction < 0 || input.QuorumFraction > 1 {
		return store.Session{}, invalidArgument("Match threshold must be between 0 and 1")
	}

	region := input.Region
	if region == "" {
		region = tmdb.DefaultRegion
	} else if !tmdb.KnownRegion(region) {
		return store.Session{}, invalidArgument("Unknown watch region: " + region)
	}

	language := input.Language
	if language == "" {
		language = tmdb.DefaultLanguage
	} else if !tmdb.KnownLanguage(language) {
		return store.Session{}, invalidArgument("Unknown language: " + language)
	}

	// Unrecognized genre/provider ids are dropped rather than rejected;
	// a partially valid filter set is still a usable session.
	genres := tmdb.FilterGenres(input.Genres)
	providers := tmdb.FilterProviders(input.Providers)

	joinCode, err := s.reserveJoinCode(ctx)
	if err != nil {
		return store.Session{}, err
	}

	now := s.now()
	session := store.Session{
		ID:               util.NewSessionID(),
		JoinCode:         joinCode,
		QuorumFraction:   input.QuorumFraction,
		ParticipantCount: 1,
		Genres:           genres,
		Providers:        providers,
		Region:           region,
		Language:         language,
		ExpiresAt:        now.Add(s.cfg.SessionTTL),
		CreatedAt:        now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return store.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *Service) reserveJoinCode(ctx context.Context) (string, error) {
	retries := s.cfg.JoinCodeRetries
	if retries <= 0 {
		retries = 25
	}
	for attempt := 0; attempt < retries; attempt++ {
		code := util.NewJoinCode()
		taken, err := s.store.JoinCodeActive(ctx, code)
		if err != nil {
			return "", fmt.Errorf("reserve join code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", resourceExhausted("Could not allocate a unique join code")
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Session{}, notFound("Session " + sessionID + " not found")
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// JoinSession adds a participant to the session behind the join code. The
// increment is atomic in the store; two concurrent joins both land.
func (s *Service) JoinSession(ctx context.Context, joinCode string) (string, int, error) {
	session, err := s.store.GetSessionByJoinCode(ctx, joinCode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, notFound("Join code " + joinCode + " not found")
	}
	if err != nil {
		return "", 0, fmt.Errorf("lookup join code: %w", err)
	}
	if session.Expired(s.now()) {
		return "", 0, sessionExpired()
	}

	count, err := s.store.IncrementParticipants(ctx, session.ID)
	if errors.Is(err, sql.ErrNoRows) {
		// The session expired (or was deleted) between lookup and join.
		return "", 0, sessionExpired()
	}
	if err != nil {
		return "", 0, fmt.Errorf("join session: %w", err)
	}
	return session.ID, count, nil
}

// LeaveSession removes a participant, floored at zero. Leaving an already
// empty session is reported, not silently absorbed.
func (s *Service) LeaveSession(ctx context.Context, sessionID string) (int, error) {
	count, err := s.store.DecrementParticipants(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.store.GetSession(ctx, sessionID); errors.Is(getErr, sql.ErrNoRows) {
			return 0, notFound("Session " + sessionID + " not found")
		} else if getErr != nil {
			return 0, fmt.Errorf("leave session: %w", getErr)
		}
		return 0, invalidState("No users left in the session")
	}
	if err != nil {
		return 0, fmt.Errorf("leave session: %w", err)
	}
	return count, nil
}

// DeleteSession removes the session; votes cascade in the store and
// connection registrations are dropped from the registry.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	deleted, err := s.store.DeleteSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !deleted {
		return notFound("Session " + sessionID + " not found")
	}
	if err := s.registry.DropSession(ctx, sessionID); err != nil {
		log.Printf("registry: drop session %s: %v", sessionID, err)
	}
	return nil
}

// DiscoverCandidates fetches one catalog page for the session and lazily
// creates zero-vote rows for ids not seen before. The provider call runs
// before any store write, so no session state is held across upstream I/O.
func (s *Service) DiscoverCandidates(ctx context.Context, sessionID string, page int) (DiscoverResult, error) {
	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return DiscoverResult{}, err
	}

	discovered, err := s.catalog.Discover(ctx, tmdb.DiscoverQuery{
		Page:      page,
		Genres:    session.Genres,
		Providers: session.Providers,
		Region:    session.Region,
		Language:  session.Language,
	})
	if err != nil {
		return DiscoverResult{}, upstreamUnavailable("Movie catalog is unavailable")
	}

	if err := s.store.EnsureCandidates(ctx, sessionID, discovered.MovieIDs); err != nil {
		return DiscoverResult{}, fmt.Errorf("store discovered candidates: %w", err)
	}

	return DiscoverResult{
		MovieIDs:     discovered.MovieIDs,
		Page:         discovered.Page,
		TotalPages:   discovered.TotalPages,
		HasMore:      discovered.HasMore(),
		TotalResults: discovered.TotalResults,
	}, nil
}

func (s *Service) GetCandidateDetail(ctx context.Context, movieID string) (tmdb.MovieDetail, error) {
	detail, err := s.catalog.GetMovie(ctx, movieID, tmdb.DefaultLanguage)
	if errors.Is(err, tmdb.ErrNotFound) {
		return tmdb.MovieDetail{}, notFound("Movie " + movieID + " not found")
	}
	if err != nil {
		return tmdb.MovieDetail{}, upstreamUnavailable("Movie catalog is unavailable")
	}
	return detail, nil
}

// Vote registers a like for a candidate. The increment and the quorum
// read-back happen in one atomic store step, and crossing is edge-triggered:
// it is true only for the vote whose count first reaches the required
// threshold, so the notifier fires exactly once per candidate even while the
// participant count keeps moving.
func (s *Service) Vote(ctx context.Context, sessionID, movieID string) (VoteOutcome, error) {
	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return VoteOutcome{}, err
	}

	tally, err := s.store.IncrementVote(ctx, sessionID, movieID)
	if errors.Is(err, sql.ErrNoRows) {
		return VoteOutcome{}, notFound("Movie " + movieID + " not found in session " + sessionID)
	}
	if err != nil {
		return VoteOutcome{}, fmt.Errorf("register vote: %w", err)
	}

	required := requiredVotes(tally.QuorumFraction, tally.ParticipantCount)
	crossed := tally.VoteCount >= required && tally.VoteCount-1 < required

	if crossed {
		// Fan-out is detached from the voting request: the deciding voter
		// gets their response without waiting on TMDB or the push transport.
		go s.notifier.Broadcast(sessionID, movieID, session.Language)
	}

	return VoteOutcome{
		MatchCount:    tally.VoteCount,
		CrossedQuorum: crossed,
		RequiredVotes: required,
		TotalUsers:    tally.ParticipantCount,
	}, nil
}

// GetMatches is the level-triggered counterpart of Vote's edge-triggered
// crossing: it reports every candidate at or above the threshold computed
// from the session's current participant count, regardless of when (or
// whether) a crossing event fired.
func (s *Service) GetMatches(ctx context.Context, sessionID string) ([]MatchRecord, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.store.ListCandidates(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	required := requiredVotes(session.QuorumFraction, session.ParticipantCount)
	matches := make([]MatchRecord, 0)
	for _, candidate := range candidates {
		if candidate.VoteCount < required {
			continue
		}
		detail, err := s.catalog.GetMovie(ctx, candidate.MovieID, session.Language)
		if err != nil {
			log.Printf("matches: detail for movie %s: %v", candidate.MovieID, err)
			continue
		}

		percentage := 0
		if session.ParticipantCount > 0 {
			percentage = int(float64(candidate.VoteCount) / float64(session.ParticipantCount) * 100)
		}
		matches = append(matches, MatchRecord{
			MovieID:         candidate.MovieID,
			Title:           detail.Title,
			Year:            releaseYear(detail.ReleaseDate),
			Genres:          detail.Genres,
			Overview:        detail.Overview,
			PosterPath:      detail.PosterPath,
			MatchPercentage: percentage,
			MatchCount:      candidate.VoteCount,
			TotalUsers:      session.ParticipantCount,
			VotedBy:         fmt.Sprintf("%d/%d", candidate.VoteCount, session.ParticipantCount),
		})
	}
	return matches, nil
}

// DebugSession lists every candidate with its count and current match state.
func (s *Service) DebugSession(ctx context.Context, sessionID string) ([]CandidateStatus, store.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, store.Session{}, err
	}

	candidates, err := s.store.ListCandidates(ctx, sessionID)
	if err != nil {
		return nil, store.Session{}, fmt.Errorf("list candidates: %w", err)
	}

	required := requiredVotes(session.QuorumFraction, session.ParticipantCount)
	statuses := make([]CandidateStatus, 0, len(candidates))
	for _, candidate := range candidates {
		statuses = append(statuses, CandidateStatus{
			MovieID:    candidate.MovieID,
			MatchCount: candidate.VoteCount,
			IsMatch:    candidate.VoteCount >= required,
		})
	}
	return statuses, session, nil
}

// RegisterConnection attaches a live push connection to a session. The
// registration inherits the session's remaining TTL.
func (s *Service) RegisterConnection(ctx context.Context, sessionID, connectionID string) error {
	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return err
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if err := s.registry.Register(ctx, sessionID, connectionID, ttl); err != nil {
		return fmt.Errorf("register connection: %w", err)
	}
	return nil
}

func (s *Service) ListConnections(ctx context.Context, sessionID string) ([]string, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	ids, err := s.registry.ConnectionsFor(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return ids, nil
}

func (s *Service) UnregisterConnection(ctx context.Context, connectionID string) error {
	if err := s.registry.Unregister(ctx, connectionID); err != nil {
		return fmt.Errorf("unregister connection: %w", err)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingRegistry(ctx context.Context) error {
	return s.registry.Ping(ctx)
}

// activeSession loads a session and enforces lazy expiry: expired sessions
// are unusable for joining, discovery and voting, but remain readable and
// deletable until removed.
func (s *Service) activeSession(ctx context.Context, sessionID string) (store.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return store.Session{}, err
	}
	if session.Expired(s.now()) {
		return store.Session{}, sessionExpired()
	}
	return session, nil
}

func releaseYear(releaseDate string) int {
	if len(releaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(releaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}
