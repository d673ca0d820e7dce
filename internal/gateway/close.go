package gateway

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// closeMessageText is the free-text fallback posted when the
// structured close signals fail.
const closeMessageText = "The user has ended the chat."

// CloseResult reports a close attempt. Success is always true; close
// is advisory cleanup, and the one thing the caller cannot usefully do
// with a close failure is retry it.
type CloseResult struct {
	Success bool `json:"success"`
}

// CloseConversation signals conversation termination to the remote
// service, best-effort. Up to five distinct operations are attempted
// in fixed order (participant-left entry, routing-end entry, a
// free-text close message, session delete, conversation delete) and
// the chain stops at the first one that succeeds. Failures fall
// through to the next method; if every method fails the close is
// still reported as successful.
//
// Unlike every other operation, an unresolvable session does not fail
// the call: with no credential there is nothing left to signal, and
// the caller is told the conversation is closed.
func (s *Service) CloseConversation(ctx context.Context, sessionID, conversationID string) CloseResult {
	rec, err := s.store.Get(sessionID)
	if err != nil {
		s.logger.Warn("close without resolvable session",
			"session_id", sessionID,
			"conversation_id", conversationID,
		)
		return CloseResult{Success: true}
	}
	defer s.store.Delete(sessionID)

	steps := []struct {
		name string
		run  func(context.Context, string, string) error
	}{
		{"participant_left", s.client.SendParticipantLeft},
		{"routing_end", s.client.SendRoutingEnd},
		{"close_message", func(ctx context.Context, token, convID string) error {
			return s.client.SendMessage(ctx, token, convID, uuid.NewString(), closeMessageText)
		}},
		{"end_session", s.client.EndSession},
		{"delete_conversation", s.client.DeleteConversation},
	}

	for _, step := range steps {
		if err := step.run(ctx, rec.Credential, conversationID); err == nil {
			s.logger.Info("conversation closed",
				"conversation_id", conversationID,
				"method", step.name,
			)
			return CloseResult{Success: true}
		} else {
			s.logger.Debug("close method failed, trying next",
				"conversation_id", conversationID,
				"method", step.name,
				slog.Any("error", err),
			)
		}
	}

	s.logger.Warn("all close methods failed; reporting success anyway",
		"conversation_id", conversationID,
	)
	return CloseResult{Success: true}
}
