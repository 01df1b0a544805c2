package api

import (
	"errors"
	"net/http"

	"sylvia_browser_agent/internal/command"
)

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"commands": s.registry.List(),
	})
}

func (s *Server) handleRunCommand(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	var req struct {
		Values map[string]any `json:"values"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.runner.RunSlug(r.Context(), slug, req.Values)
	if err != nil {
		if errors.Is(err, command.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"output": out,
	})
}

func (s *Server) handleListCustomCommands(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"commands": s.registry.ListCustom(),
	})
}

func (s *Server) handleSaveCustomCommand(w http.ResponseWriter, r *http.Request) {
	var cmd command.Command
	if err := decodeJSON(r, &cmd); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := s.registry.SaveCustom(cmd)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"command": saved,
	})
}

func (s *Server) handleDeleteCustomCommand(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if err := s.registry.DeleteCustom(slug); err != nil {
		if errors.Is(err, command.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
