package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go-liveness-verifier/challenge"
	"go-liveness-verifier/models"
	"go-liveness-verifier/verification"

	"github.com/didip/tollbooth"
	"github.com/didip/tollbooth/limiter"
	"github.com/gorilla/mux"
)

const ErrorInternal = "error:internal"
const ErrorInvalidRequest = "invalid request"
const ErrorInvalidSession = "invalid session"
const ERR_MARSHAL = "failed to marshal response message"
const ERR_DECODE = "failed to decode request body"
const ERR_SESSION_STORE = "failed to store challenge"
const ERR_SESSION_RETRIEVAL = "failed to get session from storage"
const ERR_FRAME_APPEND = "failed to append frames"
const ERR_TOKEN_INSPECTION = "failed to inspect token"

const auditTimeout = 5 * time.Second

type ServerConfig struct {
	Host               string  `json:"host"`
	Port               int     `json:"port"`
	UseTls             bool    `json:"use_tls,omitempty"`
	TlsPrivKeyPath     string  `json:"tls_priv_key_path,omitempty"`
	TlsCertPath        string  `json:"tls_cert_path,omitempty"`
	RateLimitPerSecond float64 `json:"rate_limit_per_second,omitempty"`
}

type ServerState struct {
	generator      *challenge.Generator
	engine         *verification.Engine
	sessionStorage SessionStorage
	auditClient    AuditClient
	now            func() time.Time
}

type Server struct {
	server *http.Server
	config ServerConfig
}

func (s *Server) ListenAndServe() error {
	if s.config.UseTls {
		slog.Info("Starting server with TLS", "host", s.config.Host, "port", s.config.Port, "cert", s.config.TlsCertPath, "key", s.config.TlsPrivKeyPath)
		return s.server.ListenAndServeTLS(s.config.TlsCertPath, s.config.TlsPrivKeyPath)
	} else {
		slog.Info("Starting server without TLS", "host", s.config.Host, "port", s.config.Port)
		return s.server.ListenAndServe()
	}
}

func (s *Server) Stop() error {
	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		slog.Error("Error during server shutdown", "error", err)
	} else {
		slog.Info("Server shut down successfully")
	}
	return err
}

func NewServer(state *ServerState, config ServerConfig) (*Server, error) {
	slog.Info("Creating new server", "host", config.Host, "port", config.Port, "tls", config.UseTls)
	if state.now == nil {
		state.now = time.Now
	}
	router := mux.NewRouter()

	if config.RateLimitPerSecond > 0 {
		router.Use(rateLimitMiddleware(config.RateLimitPerSecond))
		slog.Debug("Rate limiting enabled", "requests_per_second", config.RateLimitPerSecond)
	}

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("Health check request received")
		err := json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		if err != nil {
			slog.Error("failed to write body to http response", "error", err)
		}
	})

	router.HandleFunc("/api/start-challenge", func(w http.ResponseWriter, r *http.Request) {
		handleStartChallenge(state, w, r)
	})
	router.HandleFunc("/api/frames", func(w http.ResponseWriter, r *http.Request) {
		handleSubmitFrames(state, w, r)
	})
	router.HandleFunc("/api/verify", func(w http.ResponseWriter, r *http.Request) {
		handleVerify(state, w, r)
	})
	router.HandleFunc("/api/inspect-token", func(w http.ResponseWriter, r *http.Request) {
		handleInspectToken(state, w, r)
	})

	slog.Debug("Registered all API routes")

	addr := fmt.Sprintf("%v:%v", config.Host, config.Port)
	srv := &http.Server{
		Handler:      router,
		Addr:         addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	slog.Info("Server created successfully", "address", addr)
	return &Server{
		server: srv,
		config: config,
	}, nil
}

func rateLimitMiddleware(perSecond float64) mux.MiddlewareFunc {
	lmt := tollbooth.NewLimiter(perSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: time.Minute,
	})
	lmt.SetMessageContentType("application/json")
	lmt.SetMessage(`{"message":"too many requests"}`)

	return func(next http.Handler) http.Handler {
		return tollbooth.LimitHandler(lmt, next)
	}
}

func handleStartChallenge(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	slog.Info("Received request to start a liveness challenge")

	c := state.generator.GenerateChallenge()

	slog.Debug("Storing challenge", "challenge_id", c.ID)
	if err := state.sessionStorage.StoreChallenge(c); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_SESSION_STORE, err)
		return
	}

	response := models.StartChallengeResponse{
		ChallengeId: c.ID,
		Gesture:     string(c.Gesture),
		Expression:  string(c.Expression),
		ExpiresAt:   c.ExpiresAt,
	}

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
		return
	}

	slog.Info("Challenge started", "challenge_id", c.ID, "gesture", c.Gesture, "expression", c.Expression, "expires_at", c.ExpiresAt)
}

func handleSubmitFrames(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var request models.SubmitFramesRequest
	if err := decodeAndValidate(r, &request); err != nil {
		respondWithErr(w, http.StatusBadRequest, ErrorInvalidRequest, ERR_DECODE, err)
		return
	}

	slog.Debug("Appending frames", "challenge_id", request.ChallengeId, "frames", len(request.Frames))
	count, err := state.sessionStorage.AppendFrames(request.ChallengeId, models.ToFrameRecords(request.Frames))
	if err != nil {
		respondWithStorageErr(w, ERR_FRAME_APPEND, err)
		return
	}

	response := models.SubmitFramesResponse{
		ChallengeId: request.ChallengeId,
		FrameCount:  count,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
		return
	}
}

func handleVerify(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var request models.VerifyRequest
	if err := decodeAndValidate(r, &request); err != nil {
		respondWithErr(w, http.StatusBadRequest, ErrorInvalidRequest, ERR_DECODE, err)
		return
	}

	slog.Info("Received request to verify a liveness challenge", "challenge_id", request.ChallengeId)

	c, frames, err := takeSession(state.sessionStorage, request.ChallengeId)
	if err != nil {
		respondWithStorageErr(w, ERR_SESSION_RETRIEVAL, err)
		return
	}

	result := state.engine.Verify(c, frames, state.now())
	slog.Info("Verification completed", "challenge_id", c.ID, "success", result.Success, "score", result.Score, "frames", len(frames))

	recordAudit(r.Context(), state, c, len(frames), result)

	if err := writeJSON(w, http.StatusOK, models.NewVerificationResponse(c.ID, result)); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
		return
	}
}

func handleInspectToken(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var request models.InspectTokenRequest
	if err := decodeAndValidate(r, &request); err != nil {
		respondWithErr(w, http.StatusBadRequest, ErrorInvalidRequest, ERR_DECODE, err)
		return
	}

	claims, err := verification.InspectToken(request.Token)
	if err != nil {
		respondWithErr(w, http.StatusBadRequest, ErrorInvalidRequest, ERR_TOKEN_INSPECTION, err)
		return
	}

	response := models.InspectTokenResponse{
		ChallengeId: claims.ChallengeID,
		IssuedAt:    claims.IssuedAt.UTC(),
		ExpiresAt:   claims.ExpiresAt.UTC(),
		Expired:     state.now().After(claims.ExpiresAt),
		Signed:      claims.Signed,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
		return
	}
}

// -----------------------------------------------------------------------------------

// takeSession hands the session over to verification. The storage removes
// it atomically, so the challenge cannot be verified twice and no frames are
// accepted after the read.
func takeSession(storage SessionStorage, challengeId string) (challenge.Challenge, []verification.FrameRecord, error) {
	c, frames, err := storage.TakeSession(challengeId)
	if err != nil {
		slog.Warn("Failed to take session from storage", "challenge_id", challengeId, "error", err)
		return challenge.Challenge{}, nil, err
	}

	slog.Debug("Session taken for verification", "challenge_id", challengeId, "frames", len(frames))
	return c, frames, nil
}

func recordAudit(ctx context.Context, state *ServerState, c challenge.Challenge, frameCount int, result verification.Result) {
	if state.auditClient == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, auditTimeout)
	defer cancel()

	record := models.AuditRecord{
		ChallengeId: c.ID,
		Gesture:     string(c.Gesture),
		Expression:  string(c.Expression),
		FrameCount:  frameCount,
		Success:     result.Success,
		Score:       result.Score,
		TokenIssued: result.Token != "",
		Reasons:     result.Reasons,
		VerifiedAt:  state.now().UTC(),
	}
	if err := state.auditClient.RecordVerification(ctx, record); err != nil {
		// the verdict stands without the audit trail
		slog.Warn("Failed to record verification audit", "challenge_id", c.ID, "error", err)
	}
}

func decodeAndValidate(r *http.Request, request any) error {
	slog.Debug("Decoding request body", "path", r.URL.Path)
	if err := json.NewDecoder(r.Body).Decode(request); err != nil {
		slog.Warn("Failed to decode request", "error", err)
		return fmt.Errorf("decode request body: %w", err)
	}
	if err := models.Validate(request); err != nil {
		slog.Warn("Request failed validation", "error", err)
		return err
	}
	return nil
}

func respondWithStorageErr(w http.ResponseWriter, logMsg string, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		respondWithErr(w, http.StatusBadRequest, ErrorInvalidSession, logMsg, err)
	case errors.Is(err, ErrFrameBufferFull):
		respondWithErr(w, http.StatusRequestEntityTooLarge, "frame buffer full", logMsg, err)
	default:
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, logMsg, err)
	}
}

func respondWithErr(w http.ResponseWriter, code int, responseBody string, logMsg string, e error) {
	slog.Error(logMsg, "error", e, "status_code", code, "response_body", responseBody)
	w.WriteHeader(code)
	if _, err := w.Write([]byte(responseBody)); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
}

// helpers ------------

func closeRequestBody(r *http.Request) {
	if err := r.Body.Close(); err != nil {
		slog.Error("failed to close request body", "error", err)
	}
}

func requirePOST(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		slog.Debug("Non-POST request rejected", "method", r.Method, "path", r.URL.Path)
		respondWithErr(w, http.StatusMethodNotAllowed, "method not allowed", "invalid method", nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	slog.Debug("Writing JSON response", "status_code", status)
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal JSON payload", "error", err)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(payload)
	if err != nil {
		slog.Error("failed to write body to http response", "error", err)
	} else {
		slog.Debug("JSON response written successfully", "status_code", status, "payload_size", len(payload))
	}
	return nil
}
