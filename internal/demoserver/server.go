// Package demoserver is a self-contained mock of the preview backend: the
// realtime channel, the publish endpoint and the task-status endpoint. It
// exists so the client can be exercised end to end without real
// infrastructure. When an OpenAI-compatible key is configured the mock
// assistant proxies replies through it; otherwise it answers with canned
// text.
package demoserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"previewchat/internal/protocol"
	"previewchat/internal/publish"
)

type task struct {
	Status   string
	Progress []string
	Result   *publish.Result
	Error    string
}

// Server is the demo backend.
type Server struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	tasks map[string]*task

	ai      *openai.Client
	aiModel string

	httpServer *http.Server
	listener   net.Listener
}

// Option configures the server.
type Option func(*Server)

// WithOpenAI proxies assistant replies through an OpenAI-compatible API.
func WithOpenAI(apiKey, baseURL, model string) Option {
	return func(s *Server) {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		s.ai = openai.NewClientWithConfig(cfg)
		s.aiModel = model
		if s.aiModel == "" {
			s.aiModel = openai.GPT4oMini
		}
	}
}

func New(log *zap.Logger, opts ...Option) *Server {
	s := &Server{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		tasks:    make(map[string]*task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on the given address and serves until Stop.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("POST /update-page", s.handlePublish)
	mux.HandleFunc("GET /task/{id}", s.handleTaskStatus)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: mux}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("demo server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// WebsocketURL returns the realtime channel endpoint.
func (s *Server) WebsocketURL() string {
	return "ws://" + s.Addr() + "/ws"
}

// PublishURL returns the publish-create endpoint.
func (s *Server) PublishURL() string {
	return "http://" + s.Addr() + "/update-page"
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var msg protocol.Outbound
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Action {
		case protocol.ActionInitiatePreview:
			conn.WriteJSON(map[string]string{
				"type":      protocol.TypePreviewInitiated,
				"status":    "success",
				"previewId": "prev-" + uuid.NewString()[:8],
			})

		case protocol.ActionSendMessage:
			s.streamReply(r.Context(), conn, msg.Content)

		default:
			s.log.Info("ignoring unknown action", zap.String("action", msg.Action))
		}
	}
}

// streamReply plays an assistant turn: chunked text, then a final progress
// update whose status decides whether the client runs the publish sequence.
func (s *Server) streamReply(ctx context.Context, conn *websocket.Conn, content string) {
	conn.WriteJSON(map[string]any{
		"type":    protocol.TypeProgressUpdate,
		"message": "Stream started",
	})

	reply, acted := s.replyFor(ctx, content)

	// Chunks carry the nested delta envelope the real backend uses.
	for _, chunk := range chunked(reply, 24) {
		delta, _ := json.Marshal(map[string]string{"type": "delta", "content": chunk})
		conn.WriteJSON(map[string]string{
			"type":    protocol.TypeStreamChunk,
			"message": string(delta),
		})
		time.Sleep(60 * time.Millisecond)
	}

	status := protocol.StatusNoActions
	if acted {
		status = protocol.StatusCompleted
		conn.WriteJSON(map[string]any{
			"type":    protocol.TypeActionProgress,
			"message": "Applying page changes",
			"status":  protocol.ActionStarted,
		})
		time.Sleep(150 * time.Millisecond)
	}

	conn.WriteJSON(map[string]any{
		"type":    protocol.TypeProgressUpdate,
		"message": "Stream finished",
		"isFinal": true,
		"status":  status,
	})
}

// replyFor produces the assistant text. The second return reports whether
// the turn performed page actions.
func (s *Server) replyFor(ctx context.Context, content string) (string, bool) {
	acted := !strings.Contains(content, "?")

	if s.ai != nil {
		resp, err := s.ai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: s.aiModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: "You are a website editing assistant. Answer in two sentences."},
				{Role: openai.ChatMessageRoleUser, Content: content},
			},
		})
		if err == nil && len(resp.Choices) > 0 {
			return resp.Choices[0].Message.Content, acted
		}
		s.log.Warn("model call failed, using canned reply", zap.Error(err))
	}

	if acted {
		return "I've drafted those changes to the page and staged them in your preview. Send another message to refine them further.", true
	}
	return "Happy to help. Describe a change you'd like to make and I'll apply it to the preview.", false
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PreviewID string `json:"preview_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PreviewID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "preview_id is required"})
		return
	}

	id := "task-" + uuid.NewString()[:8]
	t := &task{Status: publish.StatusQueued}
	s.mu.Lock()
	s.tasks[id] = t
	s.mu.Unlock()

	go s.runTask(id)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"taskId":  id,
		"status":  publish.StatusQueued,
		"message": "Update task accepted",
	})
}

// runTask walks the task through a realistic queued/processing/completed
// lifecycle with incremental progress.
func (s *Server) runTask(id string) {
	step := func(status string, progress ...string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		t := s.tasks[id]
		t.Status = status
		t.Progress = append(t.Progress, progress...)
	}

	time.Sleep(2 * time.Second)
	step(publish.StatusProcessing, "Starting site update")
	time.Sleep(3 * time.Second)
	step(publish.StatusProcessing, "Processing content changes")
	time.Sleep(3 * time.Second)
	step(publish.StatusProcessing, "Publishing updated page")
	time.Sleep(2 * time.Second)

	s.mu.Lock()
	t := s.tasks[id]
	t.Status = publish.StatusCompleted
	t.Progress = append(t.Progress, "Completed site update")
	t.Result = &publish.Result{Message: "Page updated"}
	s.mu.Unlock()
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	t, ok := s.tasks[id]
	var snapshot publish.Task
	if ok {
		progress := make([]publish.ProgressItem, len(t.Progress))
		for i, msg := range t.Progress {
			progress[i] = publish.ProgressItem{Message: msg}
		}
		snapshot = publish.Task{Status: t.Status, Progress: progress, Result: t.Result, Error: t.Error}
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// chunked splits text into rune-safe pieces of at most n runes.
func chunked(text string, n int) []string {
	runes := []rune(text)
	var parts []string
	for len(runes) > 0 {
		k := n
		if k > len(runes) {
			k = len(runes)
		}
		parts = append(parts, string(runes[:k]))
		runes = runes[k:]
	}
	return parts
}
