package main

import (
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

//go:embed frontend
var frontendFS embed.FS

const (
	maxUploadSize = 10 << 20 // 10 Mo
	maxBodySize   = 1 << 20
)

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(limit rate.Limit, burst int) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		done:     make(chan struct{}),
	}
	// Cleanup stale entries every minute until stop.
	rl.wg.Add(1)
	go func() {
		defer rl.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-rl.done:
				return
			case <-ticker.C:
				rl.mu.Lock()
				for ip, v := range rl.visitors {
					if time.Since(v.lastSeen) > 5*time.Minute {
						delete(rl.visitors, ip)
					}
				}
				rl.mu.Unlock()
			}
		}
	}()
	return rl
}

// stop ends the cleanup goroutine and waits for it to exit.
func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
	rl.wg.Wait()
}

func (rl *rateLimiter) allow(remoteAddr string) bool {
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		ip = remoteAddr
	}

	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()

	return v.limiter.Allow()
}

// ServerConfig tunes rate limits and optional endpoints.
type ServerConfig struct {
	SolveRate   rate.Limit
	SolveBurst  int
	UploadRate  rate.Limit
	UploadBurst int
	Logger      *slog.Logger
	// Metrics, when set, is served on /metrics.
	Metrics http.Handler
}

func (c *ServerConfig) setDefaults() {
	if c.SolveRate == 0 {
		c.SolveRate = 2
	}
	if c.SolveBurst == 0 {
		c.SolveBurst = 10
	}
	if c.UploadRate == 0 {
		c.UploadRate = rate.Every(10 * time.Second)
	}
	if c.UploadBurst == 0 {
		c.UploadBurst = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server is the main HTTP server.
type Server struct {
	mux      *http.ServeMux
	contract *Contract
	auth     *Authenticator
	gemini   *GeminiClient
	sse      *Broadcaster
	solveRL  *rateLimiter
	uploadRL *rateLimiter
	logger   *slog.Logger
}

// NewServer creates a configured HTTP server. sse must be the broadcaster
// the contract reports its events to.
func NewServer(contract *Contract, auth *Authenticator, gemini *GeminiClient, sse *Broadcaster, cfg ServerConfig) *Server {
	cfg.setDefaults()
	s := &Server{
		mux:      http.NewServeMux(),
		contract: contract,
		auth:     auth,
		gemini:   gemini,
		sse:      sse,
		solveRL:  newRateLimiter(cfg.SolveRate, cfg.SolveBurst),
		uploadRL: newRateLimiter(cfg.UploadRate, cfg.UploadBurst),
		logger:   cfg.Logger,
	}
	s.routes(cfg.Metrics)
	return s
}

func (s *Server) routes(metrics http.Handler) {
	// Puzzle API
	s.mux.HandleFunc("POST /api/puzzles", s.handleCreatePuzzle)
	s.mux.HandleFunc("POST /api/puzzles/import", s.handleImportPuzzle)
	s.mux.HandleFunc("GET /api/puzzles/unsolved", s.handleListUnsolved)
	s.mux.HandleFunc("GET /api/puzzles/{hash}/status", s.handleGetStatus)

	// Solutions
	s.mux.HandleFunc("POST /api/solutions", s.handleSubmitSolution)

	// Live feed
	s.mux.HandleFunc("GET /api/events", s.handleEvents)

	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}

	// Frontend static files
	frontendDir, _ := fs.Sub(frontendFS, "frontend")
	s.mux.Handle("GET /", http.FileServer(http.FS(frontendDir)))
}

// Close stops the server's background goroutines. It does not close the
// contract or the broadcaster.
func (s *Server) Close() {
	s.solveRL.stop()
	s.uploadRL.stop()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if _, err := uuid.Parse(requestID); err != nil {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")

	s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "request_id", requestID)
	s.mux.ServeHTTP(w, r)
}

// --- Puzzle handlers ---

type createPuzzleRequest struct {
	SolutionHash string   `json:"solution_hash" validate:"required,len=64,hexadecimal"`
	Answers      []Answer `json:"answers" validate:"required,min=1,dive"`
}

// POST /api/puzzles: owner registers a puzzle by solution hash.
func (s *Server) handleCreatePuzzle(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req createPuzzleRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Requête invalide", "", http.StatusBadRequest)
		return
	}
	req.SolutionHash = strings.ToLower(strings.TrimSpace(req.SolutionHash))
	if err := validate.Struct(req); err != nil {
		jsonError(w, "Puzzle invalide : "+err.Error(), "", http.StatusBadRequest)
		return
	}

	if err := s.contract.CreatePuzzle(r.Context(), caller, req.SolutionHash, req.Answers); err != nil {
		s.contractError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"solution_hash": req.SolutionHash})
}

// POST /api/puzzles/import: owner uploads a grid photo, Gemini extracts the
// answer key and the puzzle is created under the given hash.
func (s *Server) handleImportPuzzle(w http.ResponseWriter, r *http.Request) {
	if !s.uploadRL.allow(r.RemoteAddr) {
		jsonError(w, "Trop de requêtes, réessayez plus tard", "", http.StatusTooManyRequests)
		return
	}

	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if caller != s.contract.Owner() {
		s.contractError(w, ErrUnauthorized)
		return
	}

	if s.gemini == nil {
		jsonError(w, "Analyse d'image non configurée", "", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		jsonError(w, "Image trop volumineuse (max 10 Mo)", "", http.StatusRequestEntityTooLarge)
		return
	}

	hash := strings.ToLower(strings.TrimSpace(r.FormValue("solution_hash")))
	if err := validate.Var(hash, "required,len=64,hexadecimal"); err != nil {
		jsonError(w, "Champ 'solution_hash' invalide", "", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		jsonError(w, "Champ 'image' requis", "", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !allowedMIME[mimeType] {
		jsonError(w, "Format accepté : JPEG ou PNG", "", http.StatusBadRequest)
		return
	}

	imageData, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, "Erreur de lecture de l'image", "", http.StatusInternalServerError)
		return
	}

	answers, err := s.gemini.ExtractAnswers(r.Context(), imageData, mimeType)
	if err != nil {
		s.logger.Error("gemini extract failed", "error", err)
		jsonError(w, "Erreur lors de l'analyse de la grille", "", http.StatusInternalServerError)
		return
	}

	if err := s.contract.CreatePuzzle(r.Context(), caller, hash, answers); err != nil {
		s.contractError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"solution_hash": hash, "answer": answers})
}

// GET /api/puzzles/unsolved: every puzzle still waiting for a solver.
func (s *Server) handleListUnsolved(w http.ResponseWriter, r *http.Request) {
	list, err := s.contract.UnsolvedPuzzles(r.Context())
	if err != nil {
		s.contractError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"puzzles": list})
}

// GET /api/puzzles/{hash}/status: status of one puzzle, null if unknown.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	hash := strings.ToLower(r.PathValue("hash"))
	status, ok, err := s.contract.PuzzleStatus(r.Context(), hash)
	if err != nil {
		s.contractError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, StatusJSON{status})
}

// --- Solution handlers ---

// Any guess, including an empty one, goes to the registry: a guess that
// names no puzzle is reported as a wrong answer.
type solveRequest struct {
	Solution string `json:"solution"`
	Memo     string `json:"memo"`
}

// POST /api/solutions: submit a plaintext guess.
func (s *Server) handleSubmitSolution(w http.ResponseWriter, r *http.Request) {
	if !s.solveRL.allow(r.RemoteAddr) {
		jsonError(w, "Trop de requêtes, réessayez plus tard", "", http.StatusTooManyRequests)
		return
	}

	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req solveRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Requête invalide", "", http.StatusBadRequest)
		return
	}
	hash, err := s.contract.SubmitSolution(r.Context(), caller, req.Solution, req.Memo)
	if err != nil {
		s.contractError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"solution_hash": hash,
		"status":        StatusJSON{Solved{Memo: req.Memo}},
		"reward":        PrizeAmount().String(),
	})
}

// GET /api/events: SSE stream of created and solved puzzles. With
// ?puzzle=<hash> only that puzzle's events are sent.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	topic := topicAll
	if hash := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("puzzle"))); hash != "" {
		topic = hash
	}

	s.sse.ServeSSE(w, r, topic, func(c *client) {
		evt, _ := json.Marshal(map[string]string{"type": "subscribed", "topic": topic})
		c.ch <- string(evt)
	})
}

// --- Helpers ---

// caller authenticates the request, writing a 401 when it cannot.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	account, err := s.auth.Caller(r)
	if err != nil {
		jsonError(w, "Authentification requise", "", http.StatusUnauthorized)
		return "", false
	}
	return account, true
}

func (s *Server) contractError(w http.ResponseWriter, err error) {
	code := CodeOf(err)
	switch {
	case errors.Is(err, ErrUnauthorized):
		jsonError(w, "Seul le propriétaire peut créer une grille", code, http.StatusForbidden)
	case errors.Is(err, ErrDuplicateKey):
		jsonError(w, "Une grille avec cette empreinte existe déjà", code, http.StatusConflict)
	case errors.Is(err, ErrNotFound):
		jsonError(w, "Mauvaise réponse", code, http.StatusNotFound)
	case errors.Is(err, ErrAlreadySolved):
		jsonError(w, "Grille déjà résolue", code, http.StatusConflict)
	default:
		s.logger.Error("registry call failed", "error", err, "code", code)
		jsonError(w, "Erreur interne", code, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg, code string, status int) {
	body := map[string]string{"error": msg}
	if code != "" {
		body["code"] = code
	}
	writeJSON(w, status, body)
}
