package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"sylvia_browser_agent/internal/command"
	"sylvia_browser_agent/internal/llm"
	"sylvia_browser_agent/internal/page"
)

const chatSystemPrompt = "You are Sylvia, a concise browser-side assistant. " +
	"Answer using the provided page context when it is relevant, and say so " +
	"plainly when the page does not contain the answer."

type chatRequest struct {
	Message string        `json:"message"`
	Goal    string        `json:"goal,omitempty"`
	Page    *page.Context `json:"page,omitempty"`
	History []llm.Message `json:"history,omitempty"`
}

// handleChat is the command-free path: a fixed system prompt, optional page
// and goal context, prior history, then the user message.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	messages := []llm.Message{{Role: "system", Content: chatSystemPrompt}}
	if ctxMsg := buildContextMessage(req.Page, req.Goal); ctxMsg != "" {
		messages = append(messages, llm.Message{Role: "system", Content: ctxMsg})
	}
	for _, m := range req.History {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role != "user" && role != "assistant" {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.Message})

	reply, err := s.client.Chat(r.Context(), messages, llm.Options{})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"reply": reply,
	})
}

func buildContextMessage(p *page.Context, goal string) string {
	var parts []string
	if p != nil && strings.TrimSpace(p.Content) != "" {
		parts = append(parts, fmt.Sprintf("Page context:\nTitle: %s\nURL: %s\n\n%s", p.Title, p.URL, p.Content))
		if strings.TrimSpace(p.Selection) != "" {
			parts = append(parts, "Selected text:\n"+p.Selection)
		}
	}
	if strings.TrimSpace(goal) != "" {
		parts = append(parts, "User goal: "+goal)
	}
	return strings.Join(parts, "\n\n")
}

type pageRequest struct {
	Page *page.Context `json:"page"`
	Goal string        `json:"goal,omitempty"`
}

func (s *Server) pageValues(r *http.Request) (map[string]any, error) {
	var req pageRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Page == nil || strings.TrimSpace(req.Page.Content) == "" {
		return nil, fmt.Errorf("page.content is required")
	}
	values := req.Page.AsValues()
	if strings.TrimSpace(req.Goal) != "" {
		values["goal"] = req.Goal
	}
	return values, nil
}

func (s *Server) handlePageSummary(w http.ResponseWriter, r *http.Request) {
	values, err := s.pageValues(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.runner.RunSlug(r.Context(), "summarize-page", values)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"summary": out,
	})
}

type taskItem struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	WhyThisTask string `json:"whyThisTask,omitempty"`
	Effort      string `json:"effort,omitempty"`
	Impact      string `json:"impact,omitempty"`
	Status      string `json:"status,omitempty"`
}

// handlePageTasks asks the model for JSON and best-effort parses it. A reply
// that cannot be parsed degrades to an empty list, never an error.
func (s *Server) handlePageTasks(w http.ResponseWriter, r *http.Request) {
	values, err := s.pageValues(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.runner.RunSlug(r.Context(), "extract-tasks", values)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	tasks := []taskItem{}
	if raw, ok := command.ExtractTrailingJSON(out); ok {
		var parsed struct {
			Tasks []taskItem `json:"tasks"`
		}
		if err := json.Unmarshal(raw, &parsed); err == nil {
			tasks = parsed.Tasks
		} else {
			s.logger.Warn("task extraction returned unparseable json", "error", err)
		}
	} else {
		s.logger.Warn("task extraction returned no json block")
	}
	if tasks == nil {
		tasks = []taskItem{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"tasks": tasks,
	})
}

type conceptItem struct {
	Title     string `json:"title"`
	Category  string `json:"category,omitempty"`
	Notes     string `json:"notes,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`
}

func (s *Server) handlePageConcept(w http.ResponseWriter, r *http.Request) {
	values, err := s.pageValues(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.runner.RunSlug(r.Context(), "extract-concept", values)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var concept *conceptItem
	if raw, ok := command.ExtractTrailingJSON(out); ok {
		var parsed struct {
			Concept *conceptItem `json:"concept"`
		}
		if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Concept != nil {
			concept = parsed.Concept
		} else {
			// Some models return the concept object bare.
			var direct conceptItem
			if err := json.Unmarshal(raw, &direct); err == nil && strings.TrimSpace(direct.Title) != "" {
				concept = &direct
			}
		}
	}
	if concept == nil {
		s.logger.Warn("concept extraction yielded no parseable concept")
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"concept": concept,
	})
}
