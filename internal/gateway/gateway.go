// Package gateway implements the tool surface an AI agent calls:
// session issuance, conversation lifecycle, message exchange, routing
// status, best-effort close, and the live-agent surface payload. It
// resolves session identifiers to server-held credentials, enforces
// the platform rules of the remote service, and delegates response
// readiness to the poll engine.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/parleygate/parley/internal/classify"
	"github.com/parleygate/parley/internal/messaging"
	"github.com/parleygate/parley/internal/poll"
	"github.com/parleygate/parley/internal/session"
)

// ChatClient is the remote chat surface the gateway drives. Satisfied
// by messaging.Client; defined here so operations can be tested
// against a fake remote.
type ChatClient interface {
	IssueGuestToken(ctx context.Context, req messaging.TokenRequest) (messaging.TokenGrant, error)
	CreateConversation(ctx context.Context, token, conversationID string, routingAttributes map[string]any) error
	SendMessage(ctx context.Context, token, conversationID, messageID, text string) error
	ListEntries(ctx context.Context, token, conversationID, continuationToken string) (messaging.EntryPage, error)
	GetRoutingStatus(ctx context.Context, token, conversationID string) (messaging.RoutingStatus, error)
	SendParticipantLeft(ctx context.Context, token, conversationID string) error
	SendRoutingEnd(ctx context.Context, token, conversationID string) error
	EndSession(ctx context.Context, token, conversationID string) error
	DeleteConversation(ctx context.Context, token, conversationID string) error
}

// platformWeb is the platform tag for which device identifiers must
// never be transmitted.
const platformWeb = "Web"

// Config assembles a gateway Service.
type Config struct {
	Store  session.Store
	Client ChatClient

	// Platform and DeviceID are reported during token issuance. For
	// platform "Web" the device identifier is always withheld.
	Platform string
	DeviceID string

	// BaseURL is the externally visible URL of this gateway, reported
	// to the live-agent surface.
	BaseURL string

	Poll   poll.Config
	Logger *slog.Logger
}

// Service is the gateway's operation set.
type Service struct {
	store    session.Store
	client   ChatClient
	engine   *poll.Engine
	noise    classify.NoiseTable
	platform string
	deviceID string
	baseURL  string
	logger   *slog.Logger
}

// New creates the gateway service.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Platform == "" {
		cfg.Platform = platformWeb
	}
	return &Service{
		store:    cfg.Store,
		client:   cfg.Client,
		engine:   poll.NewEngine(cfg.Client, cfg.Poll),
		noise:    cfg.Poll.Noise,
		platform: cfg.Platform,
		deviceID: cfg.DeviceID,
		baseURL:  cfg.BaseURL,
		logger:   cfg.Logger,
	}
}

// resolve looks up the session record for sessionID or reports an
// invalid-session error.
func (s *Service) resolve(sessionID string) (session.Record, error) {
	rec, err := s.store.Get(sessionID)
	if err != nil {
		return session.Record{}, fmt.Errorf("session %q: %w", sessionID, err)
	}
	return rec, nil
}

// StartSessionParams are the caller-supplied token issuance fields.
type StartSessionParams struct {
	AppName       string
	ClientVersion string
	CaptchaToken  string
}

// StartSessionResult reports the opaque session handle. The bearer
// credential stays server-side.
type StartSessionResult struct {
	SessionID string `json:"sessionId"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

// StartSession issues a guest token and registers a session for it.
func (s *Service) StartSession(ctx context.Context, params StartSessionParams) (StartSessionResult, error) {
	req := messaging.TokenRequest{
		Platform:      s.platform,
		AppName:       params.AppName,
		ClientVersion: params.ClientVersion,
		CaptchaToken:  params.CaptchaToken,
	}
	// The remote service rejects Web token requests that carry a device
	// identifier; this rule is fixed, not discovered.
	if s.platform != platformWeb {
		req.DeviceID = s.deviceID
	}

	grant, err := s.client.IssueGuestToken(ctx, req)
	if err != nil {
		return StartSessionResult{}, err
	}

	sessionID := uuid.NewString()
	if err := s.store.Create(session.Record{
		SessionID:  sessionID,
		Credential: grant.AccessToken,
	}); err != nil {
		return StartSessionResult{}, fmt.Errorf("store session: %w", err)
	}

	s.logger.Info("session started", "session_id", sessionID)
	return StartSessionResult{SessionID: sessionID, ExpiresIn: grant.ExpiresIn}, nil
}

// CreateConversationResult reports a newly created conversation.
type CreateConversationResult struct {
	ConversationID string `json:"conversationId"`
	Status         string `json:"status"`
	NextAction     string `json:"nextAction"`
}

// CreateConversation creates a conversation under the session. The
// identifier is generated locally; the remote service never
// allocates it.
func (s *Service) CreateConversation(ctx context.Context, sessionID string, routingAttributes map[string]any) (CreateConversationResult, error) {
	rec, err := s.resolve(sessionID)
	if err != nil {
		return CreateConversationResult{}, err
	}

	conversationID := uuid.NewString()
	if err := s.client.CreateConversation(ctx, rec.Credential, conversationID, routingAttributes); err != nil {
		return CreateConversationResult{}, err
	}

	if err := s.store.AttachConversation(sessionID, conversationID); err != nil {
		return CreateConversationResult{}, fmt.Errorf("attach conversation: %w", err)
	}

	s.logger.Info("conversation created",
		"session_id", sessionID,
		"conversation_id", conversationID,
	)
	return CreateConversationResult{
		ConversationID: conversationID,
		Status:         "created",
		NextAction:     "Send the user's first message with chat_send_message.",
	}, nil
}

// SendMessageResult reports an accepted outbound message.
type SendMessageResult struct {
	MessageID  string `json:"messageId"`
	Timestamp  string `json:"timestamp"`
	NextAction string `json:"nextAction"`
}

// SendMessage posts a text message on the conversation. The message
// identifier is generated locally.
func (s *Service) SendMessage(ctx context.Context, sessionID, conversationID, text string) (SendMessageResult, error) {
	rec, err := s.resolve(sessionID)
	if err != nil {
		return SendMessageResult{}, err
	}

	messageID := uuid.NewString()
	if err := s.client.SendMessage(ctx, rec.Credential, conversationID, messageID, text); err != nil {
		return SendMessageResult{}, err
	}

	return SendMessageResult{
		MessageID:  messageID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		NextAction: "Call chat_list_entries to wait for the reply.",
	}, nil
}

// ListEntries runs the response-readiness engine for the conversation.
// pollingEnabled selects between the bounded polling mode and the
// single-snapshot immediate mode.
func (s *Service) ListEntries(ctx context.Context, sessionID, conversationID, continuationToken string, pollingEnabled bool) (poll.Result, error) {
	rec, err := s.resolve(sessionID)
	if err != nil {
		return poll.Result{}, err
	}
	return s.engine.Await(ctx, rec.Credential, conversationID, continuationToken, pollingEnabled)
}

// RoutingStatusResult is the remote routing view of a conversation.
type RoutingStatusResult struct {
	Status            string `json:"status"`
	EstimatedWaitTime int    `json:"estimatedWaitTime,omitempty"`
}

// RoutingStatus queries the remote service's routing state.
func (s *Service) RoutingStatus(ctx context.Context, sessionID, conversationID string) (RoutingStatusResult, error) {
	rec, err := s.resolve(sessionID)
	if err != nil {
		return RoutingStatusResult{}, err
	}

	status, err := s.client.GetRoutingStatus(ctx, rec.Credential, conversationID)
	if err != nil {
		return RoutingStatusResult{}, err
	}
	return RoutingStatusResult{
		Status:            status.Status,
		EstimatedWaitTime: status.EstimatedWaitTime,
	}, nil
}

// TranscriptMessage is one rendered line of the live-agent surface
// transcript.
type TranscriptMessage struct {
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// LiveAgentSurfaceResult is the structured payload backing the
// embedded live-chat surface.
type LiveAgentSurfaceResult struct {
	Transcript []TranscriptMessage `json:"transcript"`
	ServerURL  string              `json:"serverUrl"`
	AgentName  string              `json:"agentName"`
}

// LiveAgentSurface returns the transcript view (end user, bot, and
// agent messages, noise excluded) plus the widget location for the
// conversation's embedded live-chat surface.
func (s *Service) LiveAgentSurface(ctx context.Context, sessionID, conversationID, agentName string) (LiveAgentSurfaceResult, error) {
	rec, err := s.resolve(sessionID)
	if err != nil {
		return LiveAgentSurfaceResult{}, err
	}

	// One snapshot listing; the surface refreshes on its own cadence.
	res, err := s.engine.Await(ctx, rec.Credential, conversationID, "", false)
	if err != nil {
		return LiveAgentSurfaceResult{}, err
	}

	return LiveAgentSurfaceResult{
		Transcript: s.Transcript(res.RawEntries),
		ServerURL:  s.baseURL,
		AgentName:  agentName,
	}, nil
}

// Transcript renders the permissive transcript view of a batch.
func (s *Service) Transcript(entries []messaging.ConversationEntry) []TranscriptMessage {
	transcript := []TranscriptMessage{}
	for _, e := range s.noise.FilterTranscript(entries) {
		transcript = append(transcript, TranscriptMessage{
			Role:      string(classify.ParseRole(e.SenderRole())),
			Name:      e.SenderDisplayName,
			Text:      e.Text(),
			Timestamp: e.Timestamp,
		})
	}
	return transcript
}
