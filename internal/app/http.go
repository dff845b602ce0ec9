package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sheetkeeper/api/internal/auth"
	"sheetkeeper/api/internal/engine"
	"sheetkeeper/api/internal/export"
	"sheetkeeper/api/internal/portrait"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/password" {
		var body struct {
			Email       string `json:"email"`
			Password    string `json:"password"`
			NewPassword string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ChangePassword(r.Context(), body.Email, body.Password, body.NewPassword); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session/stream" {
		s.handleStream(w, r, session)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signout" {
		if err := s.service.SignOut(r.Context(), session, requestToken(r)); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		writeJSON(w, http.StatusOK, session.State())
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/session/") {
		s.handleSession(w, r, session, strings.TrimPrefix(r.URL.Path, "/api/session/"))
		return
	}

	if r.URL.Path == "/api/characters" || strings.HasPrefix(r.URL.Path, "/api/characters/") {
		s.handleCharacters(w, r, session, splitPath(strings.TrimPrefix(r.URL.Path, "/api/characters")))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"store":  map[string]any{"status": "ok"},
		"search": map[string]any{"status": "ok", "engine": "meilisearch"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["store"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	if !s.service.SearchHealthy() {
		checks["search"] = map[string]any{"status": "degraded", "engine": "scan"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// handleSession serves the commands that act on the caller's open
// character and selection.
func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request, session *engine.Session, route string) {
	ctx := r.Context()
	parts := splitPath(route)
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case r.Method == http.MethodPost && route == "role":
		var body struct {
			Elevated bool `json:"elevated"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, session, session.SetElevated(ctx, body.Elevated))

	case r.Method == http.MethodPost && route == "select":
		var body struct {
			ID      string `json:"id"`
			Owner   string `json:"owner"`
			Locator string `json:"locator"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Locator != "" {
			s.respond(w, session, session.SelectLocator(ctx, body.Locator))
			return
		}
		s.respond(w, session, session.Select(ctx, body.ID, body.Owner))

	case r.Method == http.MethodPost && route == "return":
		s.respond(w, session, session.ReturnToList(ctx))

	case r.Method == http.MethodPost && route == "mutate":
		var body struct {
			Path  string          `json:"path"`
			Value json.RawMessage `json:"value"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, session, session.MutatePath(body.Path, rawValue(body.Value)))

	case r.Method == http.MethodPost && route == "items":
		var body struct {
			List string `json:"list"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		id, err := session.AddItem(body.List)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "state": session.State()})

	case r.Method == http.MethodDelete && len(parts) == 3 && parts[0] == "items":
		s.respond(w, session, session.RemoveItem(parts[1], parts[2]))

	case r.Method == http.MethodPost && route == "wallet":
		var body struct {
			Op     string `json:"op"`
			Amount int    `json:"amount"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		switch body.Op {
		case "credit":
			s.respond(w, session, session.Credit(body.Amount))
		case "debit":
			s.respond(w, session, session.Debit(body.Amount))
		default:
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "op must be credit or debit", nil)
		}

	case r.Method == http.MethodPost && route == "flush":
		s.respond(w, session, session.Flush(ctx))

	case r.Method == http.MethodPost && route == "notices/dismiss":
		var body struct {
			ID uint64 `json:"id"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session.DismissNotices(body.ID)
		writeJSON(w, http.StatusOK, session.State())

	case r.Method == http.MethodPost && route == "portrait":
		s.handlePortrait(w, r, session)

	case r.Method == http.MethodGet && route == "export":
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		result, err := s.service.Export(ctx, session, format)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleCharacters(w http.ResponseWriter, r *http.Request, session *engine.Session, parts []string) {
	ctx := r.Context()

	switch {
	case r.Method == http.MethodGet && len(parts) == 0:
		entries, err := session.RefreshList(ctx)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": entries})

	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "search":
		query := r.URL.Query()
		limit, _ := strconv.Atoi(query.Get("limit"))
		offset, _ := strconv.Atoi(query.Get("offset"))
		writeJSON(w, http.StatusOK, s.service.Search(session, query.Get("q"), limit, offset))

	case r.Method == http.MethodPost && len(parts) == 0:
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		id, err := session.Create(ctx, body.Name)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "state": session.State()})

	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "delete":
		s.respond(w, session, session.SoftDelete(ctx, parts[1], parts[0]))

	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "restore":
		s.respond(w, session, session.Restore(ctx, parts[1], parts[0]))

	case r.Method == http.MethodDelete && len(parts) == 2:
		s.respond(w, session, session.PermanentDelete(ctx, parts[1], parts[0]))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handlePortrait(w http.ResponseWriter, r *http.Request, session *engine.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, portrait.MaxBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart field \"file\" is required", nil)
		return
	}
	defer file.Close()

	state, err := s.service.UploadPortrait(r.Context(), session, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// respond writes the session state after a command, or the mapped error.
func (s *HTTPServer) respond(w http.ResponseWriter, session *engine.Session, err error) {
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
	token := requestToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return nil, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return nil, false
		}
		log.Printf("app: session lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return nil, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

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

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is needed for the websocket upgrade on /api/session/stream.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
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
	if status >= http.StatusInternalServerError {
		log.Printf("app: %s: %v", code, err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// requestToken reads the bearer token, falling back to the access_token
// query parameter that browser websocket clients have to use.
func requestToken(r *http.Request) string {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// rawValue turns a JSON scalar into the string form mutation paths take.
func rawValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return strings.TrimSpace(string(raw))
}

// Auth handlers for email/password authentication

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	grant, err := s.service.SignUp(r.Context(), body.Email, body.Password, body.DisplayName)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	grant, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}
