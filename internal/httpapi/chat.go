package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/llm"
	"github.com/venwatch/venwatch/internal/trending"
)

// TrendingSource feeds the chat handler's context tool.
type TrendingSource interface {
	Top(ctx context.Context, n int) ([]trending.Entry, error)
}

// chatFrame is one SSE event. Type is content, tool_use, done or error.
type chatFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Tool string `json:"tool,omitempty"`
}

type chatRequest struct {
	Message string `json:"message"`
	Tier    string `json:"tier"`
}

const chatSystemPrompt = "You are an analyst assistant for a Venezuela risk " +
	"monitoring platform. Answer from the provided platform context; say so " +
	"when the context does not cover the question."

// chatChunkSize bounds how much text each content frame carries.
const chatChunkSize = 256

// handleChat answers one message over SSE. The handler consults the
// trending leaderboard as a tool before calling the model, emitting a
// tool_use frame for the consultation.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("chat not configured"))
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("message required"))
		return
	}
	tier := llm.Tier(req.Tier)
	switch tier {
	case llm.TierFast, llm.TierStandard, llm.TierPremium:
	default:
		tier = llm.TierStandard
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	send := func(f chatFrame) {
		data, err := json.Marshal(f)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	system := chatSystemPrompt
	if s.deps.Trending != nil {
		send(chatFrame{Type: "tool_use", Tool: "trending_entities"})
		if entries, err := s.deps.Trending.Top(r.Context(), 10); err == nil && len(entries) > 0 {
			var sb strings.Builder
			sb.WriteString("\n\nCurrently trending entities (weighted mentions):")
			for _, e := range entries {
				fmt.Fprintf(&sb, "\n- %s (%.2f)", e.EntityID, e.Score)
			}
			system += sb.String()
		} else if err != nil {
			log.Warn().Err(err).Msg("chat trending lookup failed")
		}
	}

	answer, err := s.deps.Chat.Complete(r.Context(), tier, system, req.Message)
	if err != nil {
		send(chatFrame{Type: "error", Text: err.Error()})
		return
	}
	for len(answer) > 0 {
		n := len(answer)
		if n > chatChunkSize {
			n = chatChunkSize
		}
		send(chatFrame{Type: "content", Text: answer[:n]})
		answer = answer[n:]
	}
	send(chatFrame{Type: "done"})
}
