package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nawal-0/moviepicker/internal/store"
	"github.com/nawal-0/moviepicker/internal/ws"
)

type HTTPServer struct {
	service    *Service
	hub        *ws.Hub
	corsOrigin string
}

func NewHTTPServer(service *Service, hub *ws.Hub, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, hub: hub, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "v1" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	parts = parts[2:]

	switch {
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "health":
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})

	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "ready":
		s.handleReady(w, r)

	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "session":
		s.handleCreateSession(w, r)

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "session" && parts[1] == "join":
		s.handleJoinSession(w, r, parts[2])

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "session":
		s.handleGetSession(w, r, parts[1])

	case r.Method == http.MethodDelete && len(parts) == 2 && parts[0] == "session":
		s.handleDeleteSession(w, r, parts[1])

	case r.Method == http.MethodPut && len(parts) == 3 && parts[0] == "session" && parts[1] == "leave":
		s.handleLeaveSession(w, r, parts[2])

	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "session" && parts[2] == "matches":
		s.handleGetMatches(w, r, parts[1])

	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "session" && parts[2] == "debug":
		s.handleDebugSession(w, r, parts[1])

	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "movie_ids":
		s.handleDiscover(w, r)

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "movies":
		s.handleGetMovie(w, r, parts[1])

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "movies" && parts[1] == "like":
		s.handleLikeMovie(w, r, parts[2])

	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "websocket" && parts[1] == "session":
		s.handleListConnections(w, r, parts[2])

	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "ws":
		s.handleAttach(w, r)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"redis":    map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if err := s.service.PingRegistry(ctx); err != nil {
		statusCode = http.StatusServiceUnavailable
		checks["redis"] = map[string]any{"status": "error", "error": err.Error()}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     statusCode == http.StatusOK,
		"checks": checks,
	})
}

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MatchThreshold *float64 `json:"match_threshold"`
		Genres         []int    `json:"genres"`
		Providers      []int    `json:"providers"`
		Region         string   `json:"region"`
		Language       string   `json:"language"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	quorum := 1.0 // default: the whole group must agree
	if body.MatchThreshold != nil {
		quorum = *body.MatchThreshold
	}

	session, err := s.service.CreateSession(r.Context(), CreateSessionInput{
		QuorumFraction: quorum,
		Genres:         body.Genres,
		Providers:      body.Providers,
		Region:         body.Region,
		Language:       body.Language,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleJoinSession(w http.ResponseWriter, r *http.Request, joinCode string) {
	sessionID, count, err := s.service.JoinSession(r.Context(), strings.ToUpper(joinCode))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Successfully joined the session",
		"session_id": sessionID,
		"total_user": count,
	})
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Session deleted successfully"})
}

func (s *HTTPServer) handleLeaveSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	count, err := s.service.LeaveSession(r.Context(), sessionID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Successfully left the session",
		"session_id": sessionID,
		"total_user": count,
	})
}

func (s *HTTPServer) handleGetMatches(w http.ResponseWriter, r *http.Request, sessionID string) {
	matches, err := s.service.GetMatches(r.Context(), sessionID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches":       matches,
		"session_id":    sessionID,
		"total_matches": len(matches),
	})
}

func (s *HTTPServer) handleDebugSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	statuses, session, err := s.service.DebugSession(r.Context(), sessionID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":      session.ID,
		"total_users":     session.ParticipantCount,
		"match_threshold": session.QuorumFraction,
		"movies":          statuses,
		"total_movies":    len(statuses),
	})
}

func (s *HTTPServer) handleDiscover(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "session_id is required", nil)
		return
	}
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "page must be a positive integer", nil)
			return
		}
		page = parsed
	}

	result, err := s.service.DiscoverCandidates(r.Context(), sessionID, page)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"movie_ids":     result.MovieIDs,
		"page":          result.Page,
		"total_pages":   result.TotalPages,
		"has_more":      result.HasMore,
		"total_results": result.TotalResults,
	})
}

func (s *HTTPServer) handleGetMovie(w http.ResponseWriter, r *http.Request, movieID string) {
	detail, err := s.service.GetCandidateDetail(r.Context(), movieID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *HTTPServer) handleLikeMovie(w http.ResponseWriter, r *http.Request, movieID string) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "session_id is required", nil)
		return
	}

	outcome, err := s.service.Vote(r.Context(), sessionID, movieID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Movie liked successfully",
		"movie_id":    movieID,
		"session_id":  sessionID,
		"match_count": outcome.MatchCount,
	})
}

func (s *HTTPServer) handleListConnections(w http.ResponseWriter, r *http.Request, sessionID string) {
	ids, err := s.service.ListConnections(r.Context(), sessionID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// handleAttach upgrades the request to a WebSocket and registers the new
// connection for the session. Validation happens before the upgrade; once
// the socket is hijacked errors can no longer be written as JSON.
func (s *HTTPServer) handleAttach(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "PUSH_UNAVAILABLE", "Push transport not configured", nil)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "session_id is required", nil)
		return
	}
	if _, err := s.service.activeSession(r.Context(), sessionID); err != nil {
		writeMappedError(w, err)
		return
	}

	connectionID, err := s.hub.Accept(w, r, func(connectionID string) {
		if err := s.service.UnregisterConnection(context.Background(), connectionID); err != nil {
			log.Printf("ws: unregister %s: %v", connectionID, err)
		}
	})
	if err != nil {
		// Upgrade failures already wrote their own response.
		log.Printf("ws: accept for session %s: %v", sessionID, err)
		return
	}

	if err := s.service.RegisterConnection(context.Background(), sessionID, connectionID); err != nil {
		log.Printf("ws: register %s for session %s: %v", connectionID, sessionID, err)
		s.hub.CloseConnection(connectionID)
	}
}

func sessionPayload(session store.Session) map[string]any {
	return map[string]any{
		"session_id":      session.ID,
		"join_code":       session.JoinCode,
		"match_threshold": session.QuorumFraction,
		"total_user":      session.ParticipantCount,
		"genres":          session.Genres,
		"providers":       session.Providers,
		"region":          session.Region,
		"language":        session.Language,
		"expiry_time":     session.ExpiresAt,
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrade take over the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		// An absent body means "all defaults", not a malformed request.
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
