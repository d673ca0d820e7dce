package mcp

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// sessionHeader carries the MCP session identifier on the streamable
// HTTP transport.
const sessionHeader = "Mcp-Session-Id"

// maxBodyBytes bounds a single HTTP request body.
const maxBodyBytes = 4 * 1024 * 1024

// NewHTTPHandler returns the streamable HTTP transport: a POST
// endpoint accepting one JSON-RPC request per call. An initialize
// request mints a session identifier which the host echoes back on
// subsequent calls; the identifier is opaque and only used for
// logging, so unknown values are accepted rather than rejected.
func (s *Server) NewHTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeResponse(w, newErrorResponse(nil, codeInvalidRequest, "read body: "+err.Error()))
			return
		}

		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			writeResponse(w, newErrorResponse(nil, codeParseError, "parse error: "+err.Error()))
			return
		}

		if req.Method == "initialize" {
			w.Header().Set(sessionHeader, uuid.NewString())
		} else if sid := r.Header.Get(sessionHeader); sid != "" {
			w.Header().Set(sessionHeader, sid)
		}

		resp := s.Handle(r.Context(), &req)
		if resp == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		writeResponse(w, resp)
	})
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
