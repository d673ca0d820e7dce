package web

import (
	"encoding/json"
	"net/http"

	"github.com/parleygate/parley/internal/gateway"
	"github.com/parleygate/parley/internal/tools"
)

// httpStatusFor maps a facade error code to an HTTP status.
func httpStatusFor(code string) int {
	switch code {
	case tools.CodeInvalidArgument:
		return http.StatusBadRequest
	case tools.CodeInvalidSession:
		return http.StatusNotFound
	case tools.CodeUnknownTool:
		return http.StatusNotFound
	case tools.CodeRemoteError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse renders the structured error payload shared with the
// MCP surface.
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	info := tools.MapError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusFor(info.Code))
	if encErr := json.NewEncoder(w).Encode(map[string]any{"error": info}); encErr != nil {
		s.logger.Debug("failed to write error response", "error", encErr)
	}
}

// badRequest renders a plain invalid_argument payload for malformed
// request bodies, which never reach the gateway.
func (s *Server) badRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"error": tools.ErrorInfo{Code: tools.CodeInvalidArgument, Message: message},
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

type startSessionRequest struct {
	AppName       string `json:"appName"`
	ClientVersion string `json:"clientVersion"`
	CaptchaToken  string `json:"captchaToken"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.badRequest(w, "invalid request body: "+err.Error())
			return
		}
	}

	result, err := s.svc.StartSession(r.Context(), gateway.StartSessionParams{
		AppName:       req.AppName,
		ClientVersion: req.ClientVersion,
		CaptchaToken:  req.CaptchaToken,
	})
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	s.writeJSON(w, result)
}

type createConversationRequest struct {
	RoutingAttributes map[string]any `json:"routingAttributes"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.badRequest(w, "invalid request body: "+err.Error())
			return
		}
	}

	result, err := s.svc.CreateConversation(r.Context(), r.PathValue("sessionId"), req.RoutingAttributes)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	s.writeJSON(w, result)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		s.badRequest(w, "text is required")
		return
	}

	result, err := s.svc.SendMessage(r.Context(),
		r.PathValue("sessionId"), r.PathValue("conversationId"), req.Text)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.writeJSON(w, result)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	// poll=false requests a single snapshot listing.
	pollingEnabled := r.URL.Query().Get("poll") != "false"

	result, err := s.svc.ListEntries(r.Context(),
		r.PathValue("sessionId"), r.PathValue("conversationId"),
		r.URL.Query().Get("continuationToken"), pollingEnabled)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.writeJSON(w, result)
}

func (s *Server) handleRoutingStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.RoutingStatus(r.Context(),
		r.PathValue("sessionId"), r.PathValue("conversationId"))
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.writeJSON(w, result)
}

func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	agentName := r.URL.Query().Get("agentName")
	if agentName == "" {
		s.badRequest(w, "agentName is required")
		return
	}

	result, err := s.svc.LiveAgentSurface(r.Context(),
		r.PathValue("sessionId"), r.PathValue("conversationId"), agentName)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.writeJSON(w, result)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	result := s.svc.CloseConversation(r.Context(),
		r.PathValue("sessionId"), r.PathValue("conversationId"))
	s.writeJSON(w, result)
}
