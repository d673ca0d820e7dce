// Package messaging is the client for the remote live-chat REST API.
// It formats and issues authenticated calls for token issuance,
// conversation lifecycle, message send, entry listing, and routing
// status. No branching logic lives here; callers decide what to do
// with the responses.
//
// Credentials are passed into every call rather than held on the
// client, so one client instance can serve any number of concurrent
// sessions without cross-request interference.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/parleygate/parley/internal/config"
	"github.com/parleygate/parley/internal/httpkit"
)

// basePath is the versioned API prefix on the remote service.
const basePath = "/iamessage/api/v2"

// capabilitiesVersion is reported during token issuance.
const capabilitiesVersion = "1"

// APIError is a non-2xx response from the remote service. The status
// code and body are preserved so callers can surface them as a
// structured error payload.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote chat API error %d", e.StatusCode)
	}
	return fmt.Sprintf("remote chat API error %d: %s", e.StatusCode, e.Body)
}

// Client is the remote live-chat service client.
type Client struct {
	endpoint     string
	orgID        string
	deploymentID string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates a remote chat client for the given service
// endpoint and tenant identifiers.
func NewClient(endpoint, orgID, deploymentID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:     endpoint,
		orgID:        orgID,
		deploymentID: deploymentID,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(httpkit.DefaultRequestTimeout),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// TokenRequest carries the caller-supplied fields for token issuance.
type TokenRequest struct {
	// Platform is the reporting platform tag ("Web", "iOS", ...).
	Platform string

	// DeviceID identifies the caller device. Callers must leave this
	// empty for platform "Web"; the remote service rejects Web token
	// requests that carry a device identifier. That rule is enforced by
	// the caller, not here.
	DeviceID string

	AppName       string
	ClientVersion string
	CaptchaToken  string
}

// IssueGuestToken exchanges an unauthenticated caller identity for a
// bearer credential.
func (c *Client) IssueGuestToken(ctx context.Context, req TokenRequest) (TokenGrant, error) {
	body := map[string]any{
		"orgId":               c.orgID,
		"esDeveloperName":     c.deploymentID,
		"capabilitiesVersion": capabilitiesVersion,
		"platform":            req.Platform,
	}
	if req.DeviceID != "" {
		body["deviceId"] = req.DeviceID
	}
	if req.CaptchaToken != "" {
		body["captchaToken"] = req.CaptchaToken
	}
	if req.AppName != "" || req.ClientVersion != "" {
		body["context"] = map[string]any{
			"appName":       req.AppName,
			"clientVersion": req.ClientVersion,
		}
	}

	var grant TokenGrant
	if err := c.do(ctx, "", http.MethodPost, "/authorization/unauthenticated/access-token", body, &grant); err != nil {
		return TokenGrant{}, err
	}
	return grant, nil
}

// CreateConversation registers a new conversation under the caller's
// credential. The conversation identifier is allocated by the caller,
// never by the remote service.
func (c *Client) CreateConversation(ctx context.Context, token, conversationID string, routingAttributes map[string]any) error {
	body := map[string]any{
		"conversationId":  conversationID,
		"esDeveloperName": c.deploymentID,
	}
	if len(routingAttributes) > 0 {
		body["routingAttributes"] = routingAttributes
	}
	return c.do(ctx, token, http.MethodPost, "/conversation", body, nil)
}

// SendMessage posts a text message to the conversation. The message
// identifier is allocated by the caller.
func (c *Client) SendMessage(ctx context.Context, token, conversationID, messageID, text string) error {
	body := map[string]any{
		"message": map[string]any{
			"id":          messageID,
			"messageType": "StaticContentMessage",
			"staticContent": map[string]any{
				"formatType": "Text",
				"text":       text,
			},
		},
		"esDeveloperName": c.deploymentID,
	}
	return c.do(ctx, token, http.MethodPost, "/conversation/"+url.PathEscape(conversationID)+"/message", body, nil)
}

// ListEntries fetches one page of the conversation's entry stream.
func (c *Client) ListEntries(ctx context.Context, token, conversationID, continuationToken string) (EntryPage, error) {
	path := "/conversation/" + url.PathEscape(conversationID) + "/entries?direction=FromEnd&limit=50"
	if continuationToken != "" {
		path += "&continuationToken=" + url.QueryEscape(continuationToken)
	}

	var page EntryPage
	if err := c.do(ctx, token, http.MethodGet, path, nil, &page); err != nil {
		return EntryPage{}, err
	}
	return page, nil
}

// GetRoutingStatus fetches the remote service's routing view of the
// conversation (queued, routed, active, closed) and the estimated
// wait time when one is available.
func (c *Client) GetRoutingStatus(ctx context.Context, token, conversationID string) (RoutingStatus, error) {
	var status RoutingStatus
	path := "/conversation/" + url.PathEscape(conversationID) + "/routing-status"
	if err := c.do(ctx, token, http.MethodGet, path, nil, &status); err != nil {
		return RoutingStatus{}, err
	}
	return status, nil
}

// SendParticipantLeft posts a participant-changed entry marking the
// end user as having left the conversation.
func (c *Client) SendParticipantLeft(ctx context.Context, token, conversationID string) error {
	body := map[string]any{
		"entryType": EntryTypeParticipantChanged,
		"payload": map[string]any{
			"operation": OperationRemove,
			"participants": []map[string]any{
				{"role": WireRoleEndUser, "operation": OperationRemove},
			},
		},
	}
	return c.do(ctx, token, http.MethodPost, "/conversation/"+url.PathEscape(conversationID)+"/entry", body, nil)
}

// SendRoutingEnd posts a routing-result entry asking the remote
// service to end routing for the conversation.
func (c *Client) SendRoutingEnd(ctx context.Context, token, conversationID string) error {
	body := map[string]any{
		"entryType": EntryTypeRoutingResult,
		"payload": map[string]any{
			"routingType": RoutingTypeEndConversation,
		},
	}
	return c.do(ctx, token, http.MethodPost, "/conversation/"+url.PathEscape(conversationID)+"/entry", body, nil)
}

// EndSession deletes the messaging session attached to the
// conversation.
func (c *Client) EndSession(ctx context.Context, token, conversationID string) error {
	return c.do(ctx, token, http.MethodDelete, "/conversation/"+url.PathEscape(conversationID)+"/session", nil, nil)
}

// DeleteConversation deletes the conversation itself.
func (c *Client) DeleteConversation(ctx context.Context, token, conversationID string) error {
	return c.do(ctx, token, http.MethodDelete, "/conversation/"+url.PathEscape(conversationID), nil, nil)
}

// do issues one request against the remote API. A non-2xx response is
// returned as an *APIError carrying the status and a bounded slice of
// the body.
func (c *Client) do(ctx context.Context, token, method, path string, body any, result any) error {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+basePath+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.logger.Enabled(ctx, config.LevelTrace) {
		c.logger.Log(ctx, config.LevelTrace, "remote chat request",
			"method", method,
			"path", path,
			"body", string(reqBody),
		)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	// Drain and close to ensure connection reuse even when result is nil.
	defer httpkit.DrainAndClose(resp.Body, 4096)

	c.logger.Debug("remote chat call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       httpkit.ReadErrorBody(resp.Body, 512),
		}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
