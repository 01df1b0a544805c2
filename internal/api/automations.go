package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"sylvia_browser_agent/internal/automation"
	"sylvia_browser_agent/internal/notify"
)

func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	autos, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"automations": autos,
	})
}

// saveAutomationRequest wraps Automation so that an omitted enabled flag can
// be told apart from an explicit false: omitted defaults to true.
type saveAutomationRequest struct {
	automation.Automation
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleSaveAutomation(w http.ResponseWriter, r *http.Request) {
	var req saveAutomationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a := req.Automation
	a.Enabled = req.Enabled == nil || *req.Enabled

	if err := a.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := s.store.Save(r.Context(), a)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.scheduler != nil {
		s.scheduler.Wake()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"automation": saved,
	})
}

func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	a, ok, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "automation not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"automation": a,
	})
}

func (s *Server) handleDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, automation.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRunAutomation(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		s.writeError(w, http.StatusInternalServerError, "scheduler is not running")
		return
	}
	res, err := s.scheduler.RunNow(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, automation.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"result": res,
	})
}

func (s *Server) handleQueryResults(w http.ResponseWriter, r *http.Request) {
	q := automation.Query{
		AutomationID: strings.TrimSpace(r.URL.Query().Get("automationId")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		q.Limit = v
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			s.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		q.Offset = v
	}

	page, err := s.results.Query(r.Context(), q)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"results": page.Results,
		"total":   page.Total,
		"hasMore": page.HasMore,
	})
}

func (s *Server) handleClearResults(w http.ResponseWriter, r *http.Request) {
	automationID := strings.TrimSpace(r.URL.Query().Get("automationId"))
	if err := s.results.Clear(r.Context(), automationID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	res, ok, err := s.results.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "result not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"result": res,
	})
}

// handleGetResultHTML renders a stored result's markdown output as a
// standalone HTML page for sharing or printing.
func (s *Server) handleGetResultHTML(w http.ResponseWriter, r *http.Request) {
	res, ok, err := s.results.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "result not found")
		return
	}

	title := res.AutomationName
	if strings.TrimSpace(title) == "" {
		title = res.CommandSlug
	}
	body := res.Output
	if !res.Success {
		body = "**Run failed:** " + res.Error
	}
	html, err := notify.RenderHTML(title, body)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

// handleResultStream upgrades to a websocket and forwards every new result
// until the client goes away.
func (s *Server) handleResultStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.writeError(w, http.StatusInternalServerError, "result stream is not available")
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // extension pages have opaque origins
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ch, cancel := s.hub.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case res, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, conn, res); err != nil {
				return
			}
		}
	}
}
