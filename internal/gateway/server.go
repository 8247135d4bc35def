package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"shellrelay/internal/convstate"
	"shellrelay/internal/llm"
	"shellrelay/internal/planner"
	"shellrelay/internal/relay"
	"shellrelay/internal/sandbox"
)

// Server exposes the relay engine over HTTP for chat platform adapters.
type Server struct {
	engine      *relay.Engine
	addr        string
	logger      *log.Logger
	inlineLimit int
	attachDir   string
	actualAddr  string
	mu          sync.Mutex
	rand        *rand.Rand
}

// Options configures the HTTP surface.
type Options struct {
	Addr string
	// InlineReportLimit is the rendered-report size above which the report
	// is written to the attachment directory and served by reference.
	InlineReportLimit int
	AttachmentDir     string
	Logger            *log.Logger
}

func NewServer(engine *relay.Engine, opts Options) *Server {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		addr = "127.0.0.1:8716"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	inline := opts.InlineReportLimit
	if inline <= 0 {
		inline = 4000
	}
	return &Server{
		engine:      engine,
		addr:        addr,
		logger:      logger,
		inlineLimit: inline,
		attachDir:   opts.AttachmentDir,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.attachDir != "" {
		if err := os.MkdirAll(s.attachDir, 0o755); err != nil {
			return fmt.Errorf("prepare attachment dir: %w", err)
		}
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.actualAddr = listener.Addr().String()

	server := &http.Server{
		Addr:    s.actualAddr,
		Handler: s.logRequests(s.recoverPanics(s.Handler())),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("relay listening on http://%s", s.actualAddr)
	err = server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler builds the route table. Exposed separately for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/message", s.handleMessage)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/cwd", s.handleCwd)
	mux.HandleFunc("/api/cancel", s.handleCancel)
	mux.HandleFunc("/api/attachments/", s.handleAttachment)
	return mux
}

// Addr returns the bound address once Run has started listening.
func (s *Server) Addr() string {
	return s.actualAddr
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("[%s] %s %s (%s)", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

// recoverPanics converts a handler panic into a generic failure response so
// one bad request cannot take the relay down.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Printf("[PANIC] %s %s: %v", r.Method, r.URL.Path, rec)
				http.Error(w, "request failed", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.logger.Printf("[API] error status=%d method=%s path=%s remote=%s: %s",
		status, r.Method, r.URL.Path, r.RemoteAddr, message)
	http.Error(w, message, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err.Error())
	}
}

type messageResponse struct {
	Report         string `json:"report,omitempty"`
	Attachment     string `json:"attachment,omitempty"`
	TotalSteps     int    `json:"total_steps"`
	CompletedSteps int    `json:"completed_steps"`
	StoppedEarly   bool   `json:"stopped_early"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		ConversationID string `json:"conversation_id"`
		Text           string `json:"text"`
		Mode           string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		s.respondError(w, r, http.StatusBadRequest, "conversation_id is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.respondError(w, r, http.StatusBadRequest, "text is required")
		return
	}

	report, err := s.engine.Handle(r.Context(), relay.Request{
		ConversationID: req.ConversationID,
		Text:           req.Text,
		Mode:           convstate.Mode(req.Mode),
	})
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}

	resp := messageResponse{
		TotalSteps:     report.TotalSteps,
		CompletedSteps: report.CompletedSteps,
		StoppedEarly:   report.StoppedEarly,
	}
	rendered := relay.RenderReport(report)
	if len(rendered) > s.inlineLimit && s.attachDir != "" {
		name, err := s.offloadReport(rendered)
		if err != nil {
			s.respondError(w, r, http.StatusInternalServerError, fmt.Sprintf("store report: %v", err))
			return
		}
		resp.Attachment = name
	} else {
		resp.Report = rendered
	}
	s.writeJSON(w, r, resp)
}

// respondEngineError maps engine failures onto HTTP statuses. Anything
// unexpected gets a generic message so shell internals never leak to the
// chat surface.
func (s *Server) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, relay.ErrNotAllowed):
		s.respondError(w, r, http.StatusForbidden, "conversation not allowed")
	case errors.Is(err, relay.ErrInvalidMode):
		s.respondError(w, r, http.StatusBadRequest, "mode must be command or chat")
	case errors.Is(err, relay.ErrNoOracle):
		s.respondError(w, r, http.StatusBadRequest, "chat mode is not available")
	case errors.Is(err, sandbox.ErrPathEscape):
		s.respondError(w, r, http.StatusBadRequest, "path escapes sandbox")
	case errors.Is(err, planner.ErrMalformedResponse):
		s.respondError(w, r, http.StatusBadGateway, "planner returned an unusable plan")
	case errors.Is(err, planner.ErrTranslationFailed):
		msg := "translation failed"
		if pe, ok := llm.IsProviderError(err); ok {
			msg = fmt.Sprintf("translation failed: %s", pe.Type)
		}
		s.respondError(w, r, http.StatusBadGateway, msg)
	default:
		s.respondError(w, r, http.StatusInternalServerError, "request failed")
	}
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		id := strings.TrimSpace(r.URL.Query().Get("conversation_id"))
		if id == "" {
			s.respondError(w, r, http.StatusBadRequest, "conversation_id is required")
			return
		}
		state, err := s.engine.State(r.Context(), id)
		if err != nil {
			s.respondEngineError(w, r, err)
			return
		}
		s.writeJSON(w, r, map[string]string{"mode": string(state.Mode)})
	case http.MethodPost:
		var req struct {
			ConversationID string `json:"conversation_id"`
			Mode           string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, r, http.StatusBadRequest, "invalid payload")
			return
		}
		if err := s.engine.SetMode(r.Context(), req.ConversationID, convstate.Mode(req.Mode)); err != nil {
			s.respondEngineError(w, r, err)
			return
		}
		s.writeJSON(w, r, map[string]string{"mode": req.Mode})
	default:
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCwd(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		id := strings.TrimSpace(r.URL.Query().Get("conversation_id"))
		if id == "" {
			s.respondError(w, r, http.StatusBadRequest, "conversation_id is required")
			return
		}
		state, err := s.engine.State(r.Context(), id)
		if err != nil {
			s.respondEngineError(w, r, err)
			return
		}
		s.writeJSON(w, r, map[string]string{"working_dir": state.WorkingDir})
	case http.MethodPost:
		var req struct {
			ConversationID string `json:"conversation_id"`
			WorkingDir     string `json:"working_dir"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, r, http.StatusBadRequest, "invalid payload")
			return
		}
		rel, err := s.engine.SetCwd(r.Context(), req.ConversationID, req.WorkingDir)
		if err != nil {
			s.respondEngineError(w, r, err)
			return
		}
		s.writeJSON(w, r, map[string]string{"working_dir": rel})
	default:
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid payload")
		return
	}
	cancelled := s.engine.Cancel(req.ConversationID)
	s.writeJSON(w, r, map[string]any{"cancelled": cancelled})
}

func (s *Server) handleAttachment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.attachDir == "" {
		s.respondError(w, r, http.StatusNotFound, "attachments not enabled")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/attachments/")
	// Reject anything that is not a bare generated file name.
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		s.respondError(w, r, http.StatusBadRequest, "invalid attachment name")
		return
	}
	path := filepath.Join(s.attachDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		s.respondError(w, r, http.StatusNotFound, "attachment not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}

// offloadReport is called from concurrent handler goroutines; the generator
// needs the lock.
func (s *Server) offloadReport(rendered string) (string, error) {
	s.mu.Lock()
	name := fmt.Sprintf("report-%d-%04x.txt", time.Now().UnixNano(), s.rand.Intn(0xffff))
	s.mu.Unlock()
	if err := os.WriteFile(filepath.Join(s.attachDir, name), []byte(rendered), 0o644); err != nil {
		return "", err
	}
	return name, nil
}
