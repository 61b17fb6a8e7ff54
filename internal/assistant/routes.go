package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/assistd/internal/guardrail"
	"github.com/ziadkadry99/assistd/internal/intent"
	"github.com/ziadkadry99/assistd/internal/llm"
	"github.com/ziadkadry99/assistd/internal/ratelimit"
	"github.com/ziadkadry99/assistd/internal/stream"
	"github.com/ziadkadry99/assistd/internal/vectordb"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

var (
	errNoMessages    = errors.New("No messages provided.")
	errNoUserMessage = errors.New("A user message is required.")
)

// RegisterRoutes mounts the assistant, intent and search endpoints.
func RegisterRoutes(r chi.Router, s *Service) {
	r.Group(func(r chi.Router) {
		s.limit(r, s.opts.AssistantPolicy)
		r.Post("/api/assistant", s.handleAssistant)
		r.Post("/api/assistant/chat", s.handleChat)
	})
	r.Get("/api/assistant/ws", s.handleSocket)
	r.Post("/api/assistant/intent", s.handleIntent)
	r.Group(func(r chi.Router) {
		s.limit(r, s.opts.SearchPolicy)
		r.Post("/api/search", s.handleSearch)
	})
}

func (s *Service) limit(r chi.Router, p ratelimit.Policy) {
	if s.limiter != nil {
		r.Use(ratelimit.Middleware(s.limiter, p, s.logger))
	}
}

func (s *Service) handleAssistant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message any `json:"message"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Missing message")
		return
	}
	msg, _ := body.Message.(string)
	if strings.TrimSpace(msg) == "" {
		writeError(w, http.StatusBadRequest, "Missing message")
		return
	}

	if res := s.Check(r.Context(), RouteAssistant, msg); !res.Allowed {
		writeError(w, http.StatusBadRequest, res.Reason)
		return
	}

	req := Request{
		Route:    RouteAssistant,
		Messages: []Message{{Role: string(llm.RoleUser), Content: msg}},
	}
	s.serve(r.Context(), req.Sanitized(), stream.NewSSEWriter(w))
}

func (s *Service) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Messages []Message  `json:"messages"`
		Context  UserContext `json:"context"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	req, err := chatRequest(RouteChat, body.Messages, body.Context)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	em := stream.NewNDJSONWriter(w)
	if res := s.Check(r.Context(), RouteChat, req.LastUserMessage()); !res.Allowed {
		s.refuse(r.Context(), em, res)
		return
	}
	s.serve(r.Context(), req.Sanitized(), em)
}

// chatRequest validates a conversation and drops turns with unknown roles.
// Content is left as sent so the guardrail sees the raw text; call
// Sanitized once it passes.
func chatRequest(route string, msgs []Message, uc UserContext) (Request, error) {
	if len(msgs) == 0 {
		return Request{}, errNoMessages
	}
	kept := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch llm.Role(role) {
		case llm.RoleUser, llm.RoleAssistant, llm.RoleSystem:
		default:
			continue
		}
		kept = append(kept, Message{Role: role, Content: m.Content})
	}
	req := Request{Route: route, Messages: kept, Context: uc, Greet: true}
	if strings.TrimSpace(req.LastUserMessage()) == "" {
		return Request{}, errNoUserMessage
	}
	return req, nil
}

// refuse streams a guardrail rejection as a low-confidence answer.
func (s *Service) refuse(ctx context.Context, em stream.Emitter, res guardrail.Result) {
	plan := stream.Plan{
		Meta:          map[string]any{"guardrail": string(res.Category)},
		Response:      res.Reason,
		LowConfidence: true,
	}
	if err := stream.Stream(ctx, plan, em, s.opts.Stream); err != nil {
		s.logger.Debugw("refusal stream ended early", "error", err)
	}
}

func (s *Service) serve(ctx context.Context, req Request, em stream.Emitter) {
	if err := s.Serve(ctx, req, em); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debugw("answer stream ended with error", "route", req.Route, "error", err)
	}
}

type intentResponse struct {
	Query              string            `json:"query"`
	Intent             string            `json:"intent"`
	Title              string            `json:"title"`
	Summary            string            `json:"summary"`
	Slots              map[string]string `json:"slots"`
	Confidence         float64           `json:"confidence"`
	RecommendedActions []intent.Action   `json:"recommendedActions"`
	TargetPath         string            `json:"targetPath,omitempty"`
	PromptSlug         string            `json:"promptSlug,omitempty"`
}

func (s *Service) handleIntent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query any `json:"query"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON body.")
		return
	}
	query, ok := body.Query.(string)
	if body.Query != nil && !ok {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON body.")
		return
	}
	query = strings.TrimSpace(query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query text is required.")
		return
	}

	m := s.classifier.Classify(query)
	resp := intentResponse{
		Query:              query,
		Intent:             m.ID,
		Title:              m.Title,
		Summary:            m.Summary,
		Slots:              m.Slots,
		Confidence:         m.Confidence,
		RecommendedActions: m.RecommendedActions,
		TargetPath:         m.TargetPath,
		PromptSlug:         m.PromptSlug,
	}
	if resp.Slots == nil {
		resp.Slots = map[string]string{}
	}
	if resp.RecommendedActions == nil {
		resp.RecommendedActions = []intent.Action{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query any `json:"query"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	query, _ := body.Query.(string)
	query = strings.TrimSpace(query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "Missing query")
		return
	}

	results, err := withTimeout(r.Context(), s.opts.RetrievalTimeout, func(ctx context.Context) ([]vectordb.SearchResult, error) {
		return s.retriever.Search(ctx, query, s.opts.SearchLimit)
	})
	if err != nil {
		s.logger.Warnw("search failed", "error", err)
		results = nil
	}
	if results == nil {
		results = []vectordb.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
