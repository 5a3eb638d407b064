package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/dgnsrekt/audiofetch/internal/library"
	"github.com/dgnsrekt/audiofetch/internal/nowplaying"
	"github.com/dgnsrekt/audiofetch/internal/page"
	"github.com/dgnsrekt/audiofetch/internal/playback"
	"github.com/dgnsrekt/audiofetch/internal/store"
)

type renameRequest struct {
	Name string `json:"name"`
}

type moveRequest struct {
	From []int `json:"from"`
	To   int   `json:"to"`
}

type rateRequest struct {
	Rate float64 `json:"rate"`
}

type textRequest struct {
	Text           string `json:"text"`
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type sayRequest struct {
	PromptID string `json:"promptId"`
	Text     string `json:"text"`
}

// conversationView is one group of the list as served to clients.
type conversationView struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Collapsed bool         `json:"collapsed"`
	Items     []store.Item `json:"items"`
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	items := s.opts.Store.Search(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) renameItem(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.opts.Store.Rename(mux.Vars(r)["id"], req.Name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var err error
	if s.opts.Page != nil {
		err = s.opts.Page.Forget(s.opts.Store, id)
	} else {
		err = s.opts.Store.Delete(id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) playItem(w http.ResponseWriter, r *http.Request) {
	if s.opts.Engine == nil {
		http.Error(w, "playback is disabled", http.StatusServiceUnavailable)
		return
	}
	if err := s.opts.Engine.Play(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Engine.State())
}

func (s *Server) listConversations(w http.ResponseWriter, _ *http.Request) {
	groups := s.opts.Store.Groups()
	views := make([]conversationView, 0, len(groups))
	for _, g := range groups {
		views = append(views, conversationView{
			ID:        g.ConversationID,
			Name:      g.Name,
			Collapsed: g.Collapsed,
			Items:     g.Items,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) renameConversation(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.opts.Store.RenameConversation(mux.Vars(r)["id"], req.Name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if s.opts.Page != nil {
		if err := s.opts.Page.CheckHost(); err != nil {
			writeError(w, err)
			return
		}
	}
	removed := s.opts.Store.DeleteConversation(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) moveItems(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decode(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]
	s.opts.Store.MoveWithinConversation(id, req.From, req.To)
	writeJSON(w, http.StatusOK, s.opts.Store.Groups())
}

func (s *Server) toggleCollapsed(w http.ResponseWriter, r *http.Request) {
	collapsed := s.opts.Store.ToggleCollapsed(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, map[string]bool{"collapsed": collapsed})
}

func (s *Server) downloadAll(w http.ResponseWriter, r *http.Request) {
	if s.opts.Hub == nil {
		http.Error(w, "no page bridge", http.StatusServiceUnavailable)
		return
	}
	clients := s.opts.Hub.RequestDownloadAll(s.opts.Store, mux.Vars(r)["id"])
	writeJSON(w, http.StatusAccepted, map[string]int{"clients": clients})
}

func (s *Server) playerState(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Engine == nil {
		http.Error(w, "playback is disabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Engine.State())
}

func (s *Server) playerCommand(w http.ResponseWriter, r *http.Request) {
	if s.opts.Engine == nil {
		http.Error(w, "playback is disabled", http.StatusServiceUnavailable)
		return
	}
	cmd, err := nowplaying.ParseCommand(mux.Vars(r)["command"], r.URL.Query().Get("value"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.opts.Engine.HandleCommand(cmd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Engine.State())
}

func (s *Server) setRate(w http.ResponseWriter, r *http.Request) {
	if s.opts.Engine == nil {
		http.Error(w, "playback is disabled", http.StatusServiceUnavailable)
		return
	}
	var req rateRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.opts.Engine.SetPlaybackRate(req.Rate); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Engine.State())
}

func (s *Server) queueStats(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Queue == nil {
		http.Error(w, "no interception queue", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Queue.Stats())
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	if s.opts.Library == nil {
		writeJSON(w, http.StatusOK, []library.Note{})
		return
	}
	if conv := r.URL.Query().Get("conversation"); conv != "" {
		writeJSON(w, http.StatusOK, s.opts.Library.NotesFor(conv))
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Library.Notes.List())
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	if s.opts.Library == nil {
		http.Error(w, "library is disabled", http.StatusServiceUnavailable)
		return
	}
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := s.opts.Library.AddNote(req.Text, req.MessageID, req.ConversationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) addFragment(w http.ResponseWriter, r *http.Request) {
	if s.opts.Library == nil {
		http.Error(w, "library is disabled", http.StatusServiceUnavailable)
		return
	}
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := s.opts.Library.AddFragment(req.Text, req.MessageID, req.ConversationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) listPrompts(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Library == nil {
		writeJSON(w, http.StatusOK, []library.Prompt{})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Library.Prompts.List())
}

func (s *Server) say(w http.ResponseWriter, r *http.Request) {
	if s.opts.Hub == nil || s.opts.Library == nil {
		http.Error(w, "no page bridge", http.StatusServiceUnavailable)
		return
	}
	var req sayRequest
	if !decode(w, r, &req) {
		return
	}
	text, err := s.opts.Library.Compose(req.PromptID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	clients := s.opts.Hub.RequestSay(text)
	writeJSON(w, http.StatusAccepted, map[string]int{"clients": clients})
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	item, ok := s.opts.Store.Get(mux.Vars(r)["id"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := s.opts.Store.Fs().Open(s.opts.Store.Path(item))
	if err != nil {
		log.Warn("Could not open audio file", "id", item.ID, "error", err)
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/mp4")
	http.ServeContent(w, r, item.RelativePath, item.DownloadedAt, f)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Could not write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, playback.ErrUnknownItem),
		errors.Is(err, library.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, playback.ErrFileMissing):
		status = http.StatusGone
	case errors.Is(err, page.ErrUnexpectedHost):
		status = http.StatusPreconditionFailed
		msg = "Failed to remove item: " + err.Error()
	case errors.Is(err, playback.ErrNothingLoaded):
		status = http.StatusConflict
	case errors.Is(err, nowplaying.ErrUnknownCommand), errors.Is(err, nowplaying.ErrBadArgument),
		errors.Is(err, library.ErrEmptyText):
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "error", err)
	}
	http.Error(w, msg, status)
}
