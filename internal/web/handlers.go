package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/ipc"
)

// maxCommandBody matches the IPC request limit.
const maxCommandBody = ipc.MaxRequestSize

// commandRequest is the JSON body of POST /command.
type commandRequest struct {
	Command string `json:"command"`
}

// commandResponse mirrors ipc.Response for JSON clients.
type commandResponse struct {
	OK      bool        `json:"ok"`
	Kind    apperr.Kind `json:"kind,omitempty"`
	Message string      `json:"message"`
	Result  any         `json:"result,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok\n")
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	data := StatusPageData{
		PageData: PageData{Title: "music-agent", CurrentPath: r.URL.Path},
		Status:   s.daemon.Status(r.Context()),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.Render(w, "status", data); err != nil {
		s.logger.Error("rendering status page", "error", err)
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

// handleCommand runs one command. The body is either JSON
// ({"command": "..."}) or plain text.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeFailure(w, apperr.Invalid("web.command", "Request too large."))
			return
		}
		s.writeFailure(w, apperr.Wrap(apperr.KindTransport, "web.command", err))
		return
	}

	command := string(body)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		var req commandRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeFailure(w, apperr.Invalid("web.command", "Malformed JSON body."))
			return
		}
		command = req.Command
	}
	if strings.TrimSpace(command) == "" {
		s.writeFailure(w, apperr.Invalid("web.command", "Empty command."))
		return
	}

	resp := s.daemon.Execute(r.Context(), command)
	s.writeJSON(w, statusFor(resp), commandResponse{
		OK:      resp.OK,
		Kind:    resp.Kind,
		Message: resp.Message,
		Result:  resp.Result,
	})
}

// handleEvents streams daemon events to a websocket client as JSON text
// messages until either side goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := s.daemon.Subscribe()
	defer cancel()

	// Nothing is read from clients; CloseRead handles their close frames.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "done")
			return
		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "daemon stopping")
				return
			}
			if err := wsjson.Write(ctx, conn, e); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	resp := ipc.Failure(err)
	s.writeJSON(w, statusFor(resp), commandResponse{Kind: resp.Kind, Message: resp.Message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}

// statusFor maps a response to an HTTP status code.
func statusFor(resp ipc.Response) int {
	if resp.OK {
		return http.StatusOK
	}
	switch resp.Kind {
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindTransient, apperr.KindTransport:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
