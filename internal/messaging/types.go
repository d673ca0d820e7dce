package messaging

// Entry type tags as they appear on the wire. The remote service's
// entry shapes vary across deployments, so every field in these types
// is optional and consumers must tolerate absence.
const (
	EntryTypeMessage            = "Message"
	EntryTypeParticipantChanged = "ParticipantChanged"
	EntryTypeRoutingResult      = "RoutingResult"
	EntryTypeConversationClose  = "ConversationClose"
)

// Sender role tags as they appear on the wire.
const (
	WireRoleEndUser = "EndUser"
	WireRoleChatbot = "Chatbot"
	WireRoleAgent   = "Agent"
	WireRoleSystem  = "System"
)

// RoutingTypeEndConversation marks a routing result that terminates
// the conversation rather than transferring it.
const RoutingTypeEndConversation = "EndConversation"

// OperationRemove marks a participant-changed entry for a participant
// leaving the conversation.
const OperationRemove = "remove"

// Sender describes who produced a conversation entry.
type Sender struct {
	Role    string `json:"role,omitempty"`
	Subject string `json:"subject,omitempty"`
	AppType string `json:"appType,omitempty"`
}

// StaticContent is the text payload of a message entry.
type StaticContent struct {
	FormatType string `json:"formatType,omitempty"`
	Text       string `json:"text,omitempty"`
}

// AbstractMessage is the message body carried by Message entries.
type AbstractMessage struct {
	ID            string         `json:"id,omitempty"`
	MessageType   string         `json:"messageType,omitempty"`
	MessageReason string         `json:"messageReason,omitempty"`
	StaticContent *StaticContent `json:"staticContent,omitempty"`
}

// Participant describes one party in a participant-changed entry.
type Participant struct {
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role,omitempty"`
	Operation   string `json:"operation,omitempty"`
}

// EntryPayload is the type-dependent body of a conversation entry.
// Only the fields relevant to the entry's type are populated; all are
// optional on the wire.
type EntryPayload struct {
	AbstractMessage *AbstractMessage `json:"abstractMessage,omitempty"`
	RoutingType     string           `json:"routingType,omitempty"`
	Operation       string           `json:"operation,omitempty"`
	Participants    []Participant    `json:"participants,omitempty"`
}

// ConversationEntry is one timestamped unit in a conversation's event
// stream. Entries are immutable once fetched; classification is
// computed over them, never written back.
type ConversationEntry struct {
	EntryID           string        `json:"entryId,omitempty"`
	EntryType         string        `json:"entryType,omitempty"`
	Timestamp         int64         `json:"timestamp,omitempty"` // epoch milliseconds
	Sender            *Sender       `json:"sender,omitempty"`
	SenderDisplayName string        `json:"senderDisplayName,omitempty"`
	Payload           *EntryPayload `json:"payload,omitempty"`
}

// SenderRole returns the wire role of the entry's sender, or "" when
// the sender or role field is absent.
func (e ConversationEntry) SenderRole() string {
	if e.Sender == nil {
		return ""
	}
	return e.Sender.Role
}

// Text returns the message text for Message entries, or "" for
// entries without a text payload.
func (e ConversationEntry) Text() string {
	if e.Payload == nil || e.Payload.AbstractMessage == nil || e.Payload.AbstractMessage.StaticContent == nil {
		return ""
	}
	return e.Payload.AbstractMessage.StaticContent.Text
}

// MessageReason returns the message reason tag, or "" when absent.
func (e ConversationEntry) MessageReason() string {
	if e.Payload == nil || e.Payload.AbstractMessage == nil {
		return ""
	}
	return e.Payload.AbstractMessage.MessageReason
}

// RoutingType returns the routing result type, or "" when absent.
func (e ConversationEntry) RoutingType() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.RoutingType
}

// EntryPage is one page of a conversation's entry stream.
type EntryPage struct {
	Entries           []ConversationEntry `json:"conversationEntries"`
	ContinuationToken string              `json:"continuationToken,omitempty"`
}

// RoutingStatus is the remote service's view of conversation routing.
type RoutingStatus struct {
	Status            string `json:"status,omitempty"`
	EstimatedWaitTime int    `json:"estimatedWaitTime,omitempty"` // seconds; 0 = unknown
}

// TokenGrant is the result of a token issuance call.
type TokenGrant struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn,omitempty"` // seconds
}
