// Package classify contains the pure classification rules for
// conversation entries: entry kind, sender role, noise detection, the
// qualifying-response rule, the two display filters, and
// conversation-ended detection. Nothing here performs I/O or holds
// state: classifying the same entry twice always yields the same
// result.
package classify

import (
	"sort"
	"strings"

	"github.com/parleygate/parley/internal/messaging"
)

// Role is the normalized sender role of an entry.
type Role string

const (
	RoleEndUser Role = "EndUser"
	RoleChatbot Role = "Chatbot"
	RoleAgent   Role = "Agent"
	RoleUnknown Role = "Unknown"
)

// Kind is the normalized entry kind.
type Kind string

const (
	KindMessage            Kind = "message"
	KindParticipantChanged Kind = "participant_changed"
	KindRoutingResult      Kind = "routing_result"
	KindConversationClose  Kind = "conversation_close"
	KindOther              Kind = "other"
)

// NoiseTable holds the match tables for noise detection. The same
// table is injected into every filter site so the sites cannot
// diverge. Matching is case-insensitive except for sender substrings,
// which are literal.
type NoiseTable struct {
	// SenderSubstrings flag entries whose sender display name contains
	// any of these literal substrings.
	SenderSubstrings []string

	// MessageReasons flag entries whose messageReason tag equals any of
	// these values.
	MessageReasons []string

	// Phrases flag message entries whose text contains any of these
	// phrases (case-insensitive): queue-wait notices and canned
	// greetings posted before an agent is assigned.
	Phrases []string
}

// DefaultNoiseTable returns the built-in noise tables.
func DefaultNoiseTable() NoiseTable {
	return NoiseTable{
		SenderSubstrings: []string{"Automated Process"},
		MessageReasons:   []string{"AutomatedResponse"},
		Phrases: []string{
			"One moment while I connect you",
			"Please wait while we connect you",
			"You are now in the queue",
			"An agent will be with you shortly",
			"Your estimated wait time is",
			"Thanks for reaching out",
		},
	}
}

// Classification is the derived view of one entry.
type Classification struct {
	Kind    Kind
	Role    Role
	IsNoise bool
}

// IsMessage reports whether the entry is a Message entry.
func (c Classification) IsMessage() bool {
	return c.Kind == KindMessage
}

// ParseRole normalizes a wire role tag. Empty, missing, and "System"
// roles all collapse to RoleUnknown; the remote service's role field
// is optional and inconsistent across deployments, so anything
// unrecognized is Unknown rather than an error.
func ParseRole(wire string) Role {
	switch {
	case strings.EqualFold(wire, messaging.WireRoleEndUser):
		return RoleEndUser
	case strings.EqualFold(wire, messaging.WireRoleChatbot):
		return RoleChatbot
	case strings.EqualFold(wire, messaging.WireRoleAgent):
		return RoleAgent
	default:
		return RoleUnknown
	}
}

// parseKind normalizes a wire entry type tag.
func parseKind(wire string) Kind {
	switch {
	case strings.EqualFold(wire, messaging.EntryTypeMessage):
		return KindMessage
	case strings.EqualFold(wire, messaging.EntryTypeParticipantChanged):
		return KindParticipantChanged
	case strings.EqualFold(wire, messaging.EntryTypeRoutingResult):
		return KindRoutingResult
	case strings.EqualFold(wire, messaging.EntryTypeConversationClose):
		return KindConversationClose
	default:
		return KindOther
	}
}

// Classify derives the kind, role, and noise flag for one entry.
func (t NoiseTable) Classify(e messaging.ConversationEntry) Classification {
	return Classification{
		Kind:    parseKind(e.EntryType),
		Role:    ParseRole(e.SenderRole()),
		IsNoise: t.isNoise(e),
	}
}

// isNoise reports whether the entry is a system/automated artifact.
// Any single table hit is sufficient, regardless of sender role.
func (t NoiseTable) isNoise(e messaging.ConversationEntry) bool {
	for _, sub := range t.SenderSubstrings {
		if sub != "" && strings.Contains(e.SenderDisplayName, sub) {
			return true
		}
	}

	reason := e.MessageReason()
	for _, r := range t.MessageReasons {
		if r != "" && strings.EqualFold(reason, r) {
			return true
		}
	}

	text := strings.ToLower(e.Text())
	if text != "" {
		for _, p := range t.Phrases {
			if p != "" && strings.Contains(text, strings.ToLower(p)) {
				return true
			}
		}
	}

	return false
}

// IsQualifying reports whether the entry is a qualifying response: a
// Message entry from a bot or a human agent that is not noise. The
// end user's own echoed messages never qualify.
func (t NoiseTable) IsQualifying(e messaging.ConversationEntry) bool {
	c := t.Classify(e)
	return c.IsMessage() && (c.Role == RoleChatbot || c.Role == RoleAgent) && !c.IsNoise
}

// SortNewestFirst returns a copy of entries ordered by descending
// timestamp. Entries with a missing or zero timestamp sort as oldest.
func SortNewestFirst(entries []messaging.ConversationEntry) []messaging.ConversationEntry {
	sorted := make([]messaging.ConversationEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp > sorted[j].Timestamp
	})
	return sorted
}

// FilterVerbatim returns the entries the calling agent may recite:
// non-noise Message entries from the bot or a human agent, newest
// first. End-user entries are always excluded from this view.
func (t NoiseTable) FilterVerbatim(entries []messaging.ConversationEntry) []messaging.ConversationEntry {
	var out []messaging.ConversationEntry
	for _, e := range SortNewestFirst(entries) {
		if t.IsQualifying(e) {
			out = append(out, e)
		}
	}
	return out
}

// FilterTranscript returns the transcript shown inside the embedded
// live-chat surface: non-noise Message entries from the end user, the
// bot, and human agents, newest first. This view keeps end-user
// entries for conversational context; the verbatim view never does.
func (t NoiseTable) FilterTranscript(entries []messaging.ConversationEntry) []messaging.ConversationEntry {
	var out []messaging.ConversationEntry
	for _, e := range SortNewestFirst(entries) {
		c := t.Classify(e)
		if !c.IsMessage() || c.IsNoise {
			continue
		}
		switch c.Role {
		case RoleEndUser, RoleChatbot, RoleAgent:
			out = append(out, e)
		}
	}
	return out
}

// ConversationEnded reports whether the batch carries a termination
// signal: a ConversationClose entry, a routing result of type
// EndConversation, or a participant-changed entry showing the end
// user leaving.
func ConversationEnded(entries []messaging.ConversationEntry) bool {
	for _, e := range entries {
		switch parseKind(e.EntryType) {
		case KindConversationClose:
			return true
		case KindRoutingResult:
			if strings.EqualFold(e.RoutingType(), messaging.RoutingTypeEndConversation) {
				return true
			}
		case KindParticipantChanged:
			if endUserLeft(e) {
				return true
			}
		}
	}
	return false
}

// endUserLeft inspects a participant-changed payload for the end user
// being removed. Both payload shapes seen in the wild are accepted:
// a participants list with per-participant operations, and a bare
// payload-level operation paired with the sender role.
func endUserLeft(e messaging.ConversationEntry) bool {
	if e.Payload == nil {
		return false
	}
	for _, p := range e.Payload.Participants {
		if ParseRole(p.Role) == RoleEndUser && strings.EqualFold(p.Operation, messaging.OperationRemove) {
			return true
		}
	}
	return strings.EqualFold(e.Payload.Operation, messaging.OperationRemove) &&
		ParseRole(e.SenderRole()) == RoleEndUser
}

// BatchResult is the classification of one listing batch, driving the
// poll loop's stopping decision and the caller's roleInfo metadata.
type BatchResult struct {
	// MostRecentMessage is the globally most recent Message entry
	// across all roles, or nil when the batch has none. The poll loop
	// inspects this entry, not merely the most recent bot/agent entry,
	// so a stale bot message that predates the user's latest turn
	// cannot stop the loop early.
	MostRecentMessage *messaging.ConversationEntry

	// Qualifying reports whether MostRecentMessage is a qualifying
	// response.
	Qualifying bool

	// Role and SenderName describe the qualifying response, or
	// RoleUnknown and "" when there is none.
	Role       Role
	SenderName string

	// IsLiveAgent is true iff the qualifying response came from a
	// human agent. Chatbot responses never trigger hand-off.
	IsLiveAgent bool

	// Ended reports a conversation-termination signal in the batch.
	Ended bool
}

// Evaluate classifies a listing batch.
func (t NoiseTable) Evaluate(entries []messaging.ConversationEntry) BatchResult {
	res := BatchResult{
		Role:  RoleUnknown,
		Ended: ConversationEnded(entries),
	}

	for _, e := range SortNewestFirst(entries) {
		if parseKind(e.EntryType) != KindMessage {
			continue
		}
		mostRecent := e
		res.MostRecentMessage = &mostRecent
		if t.IsQualifying(e) {
			res.Qualifying = true
			res.Role = t.Classify(e).Role
			res.SenderName = e.SenderDisplayName
			res.IsLiveAgent = res.Role == RoleAgent
		}
		break
	}

	return res
}
