package tools

import (
	"context"

	"github.com/parleygate/parley/internal/gateway"
)

// NewChatRegistry builds the registry holding the full chat tool
// surface over the given gateway service.
func NewChatRegistry(svc *gateway.Service) *Registry {
	r := NewRegistry()
	r.registerChatTools(svc)
	return r
}

func (r *Registry) registerChatTools(svc *gateway.Service) {
	r.Register(&Tool{
		Name:        "chat_start_session",
		Description: "Start a guest live-chat session. Returns an opaque sessionId used by every other chat tool. Call this once before creating a conversation.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"appName": map[string]any{
					"type":        "string",
					"description": "Name of the calling application, reported to the chat service",
				},
				"clientVersion": map[string]any{
					"type":        "string",
					"description": "Version of the calling application",
				},
				"captchaToken": map[string]any{
					"type":        "string",
					"description": "Captcha token, if the deployment requires one",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			res, err := svc.StartSession(ctx, gateway.StartSessionParams{
				AppName:       stringArg(args, "appName"),
				ClientVersion: stringArg(args, "clientVersion"),
				CaptchaToken:  stringArg(args, "captchaToken"),
			})
			if err != nil {
				return "", err
			}
			return marshal(res)
		},
	})

	r.Register(&Tool{
		Name:        "chat_create_conversation",
		Description: "Create a new conversation under a session. Returns the conversationId for sending and listing messages.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sessionId": map[string]any{
					"type":        "string",
					"description": "Session identifier from chat_start_session",
				},
				"routingAttributes": map[string]any{
					"type":        "object",
					"description": "Optional routing attributes (e.g. topic, locale) passed to the chat service",
				},
			},
			"required": []string{"sessionId"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			sessionID, err := requireString(args, "sessionId")
			if err != nil {
				return "", err
			}
			attrs, _ := args["routingAttributes"].(map[string]any)
			res, err := svc.CreateConversation(ctx, sessionID, attrs)
			if err != nil {
				return "", err
			}
			return marshal(res)
		},
	})

	r.Register(&Tool{
		Name:        "chat_send_message",
		Description: "Send the user's message to the conversation. Follow with chat_list_entries to wait for the reply.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sessionId": map[string]any{
					"type":        "string",
					"description": "Session identifier from chat_start_session",
				},
				"conversationId": map[string]any{
					"type":        "string",
					"description": "Conversation identifier from chat_create_conversation",
				},
				"text": map[string]any{
					"type":        "string",
					"description": "The message text to send",
				},
			},
			"required": []string{"sessionId", "conversationId", "text"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			sessionID, err := requireString(args, "sessionId")
			if err != nil {
				return "", err
			}
			conversationID, err := requireString(args, "conversationId")
			if err != nil {
				return "", err
			}
			text, err := requireString(args, "text")
			if err != nil {
				return "", err
			}
			res, err := svc.SendMessage(ctx, sessionID, conversationID, text)
			if err != nil {
				return "", err
			}
			return marshal(res)
		},
	})

	r.Register(&Tool{
		Name:        "chat_list_entries",
		Description: "List conversation entries, waiting for a new reply. The roleInfo.instruction field tells you exactly what to do next: recite a reply verbatim, hand off to the live surface, keep polling, or acknowledge the end of the chat.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sessionId": map[string]any{
					"type":        "string",
					"description": "Session identifier from chat_start_session",
				},
				"conversationId": map[string]any{
					"type":        "string",
					"description": "Conversation identifier from chat_create_conversation",
				},
				"continuationToken": map[string]any{
					"type":        "string",
					"description": "Pagination cursor from a previous listing",
				},
				"pollingEnabled": map[string]any{
					"type":        "boolean",
					"description": "Wait for a qualifying reply (default true). Set false for a single snapshot.",
				},
			},
			"required": []string{"sessionId", "conversationId"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			sessionID, err := requireString(args, "sessionId")
			if err != nil {
				return "", err
			}
			conversationID, err := requireString(args, "conversationId")
			if err != nil {
				return "", err
			}
			res, err := svc.ListEntries(ctx, sessionID, conversationID,
				stringArg(args, "continuationToken"),
				boolArg(args, "pollingEnabled", true),
			)
			if err != nil {
				return "", err
			}
			return marshal(res)
		},
	})

	r.Register(&Tool{
		Name:        "chat_routing_status",
		Description: "Get the conversation's routing status (queued, routed, active, closed) and the estimated wait time when available.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sessionId": map[string]any{
					"type":        "string",
					"description": "Session identifier from chat_start_session",
				},
				"conversationId": map[string]any{
					"type":        "string",
					"description": "Conversation identifier from chat_create_conversation",
				},
			},
			"required": []string{"sessionId", "conversationId"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			sessionID, err := requireString(args, "sessionId")
			if err != nil {
				return "", err
			}
			conversationID, err := requireString(args, "conversationId")
			if err != nil {
				return "", err
			}
			res, err := svc.RoutingStatus(ctx, sessionID, conversationID)
			if err != nil {
				return "", err
			}
			return marshal(res)
		},
	})

	r.Register(&Tool{
		Name:        "chat_close_conversation",
		Description: "End the conversation. Best-effort: always succeeds, even when the remote service is unreachable.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sessionId": map[string]any{
					"type":        "string",
					"description": "Session identifier from chat_start_session",
				},
				"conversationId": map[string]any{
					"type":        "string",
					"description": "Conversation identifier from chat_create_conversation",
				},
			},
			"required": []string{"sessionId", "conversationId"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			sessionID, err := requireString(args, "sessionId")
			if err != nil {
				return "", err
			}
			conversationID, err := requireString(args, "conversationId")
			if err != nil {
				return "", err
			}
			return marshal(svc.CloseConversation(ctx, sessionID, conversationID))
		},
	})

	r.Register(&Tool{
		Name:        "chat_live_agent_surface",
		Description: "Get the embedded live-chat surface payload for a conversation a human agent has joined: the transcript so far, the widget server URL, and the agent's name.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sessionId": map[string]any{
					"type":        "string",
					"description": "Session identifier from chat_start_session",
				},
				"conversationId": map[string]any{
					"type":        "string",
					"description": "Conversation identifier from chat_create_conversation",
				},
				"agentName": map[string]any{
					"type":        "string",
					"description": "Display name of the live agent, from roleInfo.mostRecentSenderName",
				},
			},
			"required": []string{"sessionId", "conversationId", "agentName"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			sessionID, err := requireString(args, "sessionId")
			if err != nil {
				return "", err
			}
			conversationID, err := requireString(args, "conversationId")
			if err != nil {
				return "", err
			}
			agentName, err := requireString(args, "agentName")
			if err != nil {
				return "", err
			}
			res, err := svc.LiveAgentSurface(ctx, sessionID, conversationID, agentName)
			if err != nil {
				return "", err
			}
			return marshal(res)
		},
	})
}
