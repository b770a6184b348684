// Package http serves the catering assistant over REST and a websocket chat
// channel.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/scttfrdmn/catering-agent-go/adapter/codec"
	"github.com/scttfrdmn/catering-agent-go/agenkit"
	"github.com/scttfrdmn/catering-agent-go/approval"
	"github.com/scttfrdmn/catering-agent-go/catering"
	"github.com/scttfrdmn/catering-agent-go/patterns"
	"github.com/scttfrdmn/catering-agent-go/session"
	"github.com/scttfrdmn/catering-agent-go/tools"
)

const maxBodyBytes = 1 << 20

// Options configures a Server. Assistant is required.
type Options struct {
	Assistant *catering.Assistant
	Approvals *approval.Workflow
	Tools     *tools.Registry
	// Metrics is mounted on /metrics when set.
	Metrics     http.Handler
	CORSOrigins []string
	Logger      *slog.Logger
}

// Server exposes the assistant over HTTP.
type Server struct {
	assistant *catering.Assistant
	approvals *approval.Workflow
	tools     *tools.Registry
	logger    *slog.Logger
	handler   http.Handler
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewServer builds the router.
func NewServer(opts Options) (*Server, error) {
	if opts.Assistant == nil {
		return nil, errors.New("server requires an assistant")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		assistant: opts.Assistant,
		approvals: opts.Approvals,
		tools:     opts.Tools,
		logger:    opts.Logger,
		conns:     make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(origins),
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}", s.handleUpdateSession).Methods(http.MethodPatch)
	v1.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	v1.HandleFunc("/sessions/{id}/messages", s.handleMessage).Methods(http.MethodPost)
	v1.HandleFunc("/approvals/{txn}", s.handleApproval).Methods(http.MethodPost)
	v1.HandleFunc("/tools", s.handleListTools).Methods(http.MethodGet)
	v1.HandleFunc("/tools/{name}", s.handleInvokeTool).Methods(http.MethodPost)
	v1.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(r)
	return s, nil
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout. Open websocket connections are closed on shutdown.
func (s *Server) Serve(ctx context.Context, addr string, readTimeout, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln, readTimeout, shutdownTimeout)
}

// ServeListener is Serve over an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener, readTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.closeConns()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.Close()
		delete(s.conns, c)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"agent":  s.assistant.Root().Name(),
	})
}

type createSessionRequest struct {
	UserID string                 `json:"user_id"`
	State  map[string]interface{} `json:"state"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	sess, err := s.assistant.StartSession(r.Context(), req.UserID, req.State)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.assistant.Sessions().Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var delta map[string]interface{}
	if !decodeBody(w, r, &delta, false) {
		return
	}
	sess, err := s.assistant.Sessions().UpdateState(r.Context(), mux.Vars(r)["id"], delta)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.assistant.Sessions().Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type messageRequest struct {
	Content string `json:"content"`
}

// MessageResponse is the reply to a chat message.
type MessageResponse struct {
	SessionID   string   `json:"session_id"`
	Content     string   `json:"content"`
	AgentPath   []string `json:"agent_path,omitempty"`
	RoutedAgent string   `json:"routed_agent,omitempty"`
}

func newMessageResponse(sessionID string, reply *agenkit.Message) MessageResponse {
	path := reply.AgentPath()
	return MessageResponse{
		SessionID:   sessionID,
		Content:     reply.Content,
		AgentPath:   path,
		RoutedAgent: reply.MetadataString(patterns.MetadataRoutedAgent),
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, codec.CodeInvalidRequest, "content is required")
		return
	}
	id := mux.Vars(r)["id"]
	reply, err := s.assistant.Ask(r.Context(), id, req.Content)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMessageResponse(id, reply))
}

// ApprovalResponse carries the rendered summary and the structured result.
type ApprovalResponse struct {
	Summary string           `json:"summary"`
	Result  *approval.Result `json:"result"`
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	if s.approvals == nil {
		writeError(w, http.StatusNotImplemented, codec.CodeNotFound, "approval workflow is not configured")
		return
	}
	result, err := s.approvals.Run(r.Context(), mux.Vars(r)["txn"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApprovalResponse{Summary: result.Summary(), Result: result})
}

type toolInfo struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  []agenkit.Parameter `json:"parameters"`
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	out := []toolInfo{}
	if s.tools != nil {
		for _, name := range s.tools.List() {
			t, _ := s.tools.Get(name)
			info := toolInfo{Name: t.Name(), Description: t.Description()}
			if p, ok := t.(interface{ Parameters() []agenkit.Parameter }); ok {
				info.Parameters = p.Parameters()
			}
			out = append(out, info)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.tools == nil {
		writeError(w, http.StatusNotFound, codec.CodeNotFound, fmt.Sprintf("tool '%s' not found", name))
		return
	}
	if _, ok := s.tools.Get(name); !ok {
		writeError(w, http.StatusNotFound, codec.CodeNotFound, fmt.Sprintf("tool '%s' not found", name))
		return
	}
	var params map[string]interface{}
	if !decodeBody(w, r, &params, true) {
		return
	}
	result := s.tools.Invoke(r.Context(), tools.Call{ToolName: name, Parameters: params})
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		reply := s.chatFrame(r.Context(), data)
		out, err := codec.EncodeBytes(reply)
		if err != nil {
			s.logger.Error("failed to encode frame", "error", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}
	}
}

func (s *Server) chatFrame(ctx context.Context, data []byte) *codec.Envelope {
	env, err := codec.DecodeBytes(data)
	if err != nil {
		return codec.NewError("unknown", codec.CodeInvalidRequest, err.Error())
	}
	req, err := env.ChatRequest()
	if err != nil {
		return codec.NewError(env.ID, codec.CodeInvalidRequest, err.Error())
	}
	reply, err := s.assistant.Ask(ctx, req.SessionID, req.Content)
	if errors.Is(err, session.ErrNotFound) {
		return codec.NewError(env.ID, codec.CodeSessionNotFound, err.Error())
	}
	if err != nil {
		return codec.NewError(env.ID, codec.CodeExecution, err.Error())
	}
	reply.WithMetadata(agenkit.MetadataSessionID, req.SessionID)
	return codec.NewResponse(env.ID, reply)
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, codec.CodeSessionNotFound, err.Error())
		return
	}
	s.logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, codec.CodeExecution, err.Error())
}

// decodeBody reads a JSON body into v. An empty body is accepted when
// optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codec.CodeInvalidRequest, "failed to read request body")
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		if optional {
			return true
		}
		writeError(w, http.StatusBadRequest, codec.CodeInvalidRequest, "request body is required")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, codec.CodeInvalidRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// ErrorBody is the JSON shape of every REST error.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]ErrorBody{"error": {Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
