package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parleygate/parley/internal/classify"
	"github.com/parleygate/parley/internal/messaging"
)

// scriptedLister returns one page per call, repeating the last page
// once the script is exhausted.
type scriptedLister struct {
	pages []messaging.EntryPage
	err   error
	calls int
}

func (l *scriptedLister) ListEntries(ctx context.Context, token, conversationID, continuationToken string) (messaging.EntryPage, error) {
	l.calls++
	if l.err != nil {
		return messaging.EntryPage{}, l.err
	}
	i := l.calls - 1
	if i >= len(l.pages) {
		i = len(l.pages) - 1
	}
	if i < 0 {
		return messaging.EntryPage{}, nil
	}
	return l.pages[i], nil
}

func message(role, name, text string, ts int64) messaging.ConversationEntry {
	return messaging.ConversationEntry{
		EntryType:         messaging.EntryTypeMessage,
		Timestamp:         ts,
		Sender:            &messaging.Sender{Role: role},
		SenderDisplayName: name,
		Payload: &messaging.EntryPayload{
			AbstractMessage: &messaging.AbstractMessage{
				StaticContent: &messaging.StaticContent{Text: text},
			},
		},
	}
}

func newTestEngine(l Lister, deadline, interval time.Duration) *Engine {
	return NewEngine(l, Config{
		Deadline: deadline,
		Interval: interval,
		Noise:    classify.DefaultNoiseTable(),
	})
}

func TestAwaitAgentReplyFirstPoll(t *testing.T) {
	lister := &scriptedLister{pages: []messaging.EntryPage{{
		Entries: []messaging.ConversationEntry{
			message("EndUser", "Visitor", "hi", 1),
			message("Chatbot", "Bot", "One moment while I connect you...", 2),
			message("Agent", "Sam", "Hi, I'm Sam", 3),
		},
	}}}
	engine := newTestEngine(lister, time.Second, 10*time.Millisecond)

	res, err := engine.Await(context.Background(), "jwt", "conv-1", "", true)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if lister.calls != 1 {
		t.Errorf("expected a single listing call, got %d", lister.calls)
	}
	if !res.RoleInfo.IsLiveAgent {
		t.Error("expected IsLiveAgent")
	}
	if res.RoleInfo.MostRecentSenderRole != "Agent" || res.RoleInfo.MostRecentSenderName != "Sam" {
		t.Errorf("roleInfo = %+v", res.RoleInfo)
	}
	if res.RoleInfo.Instruction != InstructionHandOff {
		t.Errorf("instruction = %q", res.RoleInfo.Instruction)
	}
	if len(res.Entries) != 1 || res.Entries[0].Text() != "Hi, I'm Sam" {
		t.Errorf("verbatim view should hold only the agent reply, got %d entries", len(res.Entries))
	}
	if len(res.RawEntries) != 3 {
		t.Errorf("raw view should hold all entries, got %d", len(res.RawEntries))
	}
}

func TestAwaitKeepsPollingPastStaleUserTurn(t *testing.T) {
	userTurn := messaging.EntryPage{Entries: []messaging.ConversationEntry{
		message("Chatbot", "Bot", "earlier answer", 1),
		message("EndUser", "Visitor", "one more question", 2),
	}}
	botReply := messaging.EntryPage{Entries: []messaging.ConversationEntry{
		message("Chatbot", "Bot", "earlier answer", 1),
		message("EndUser", "Visitor", "one more question", 2),
		message("Chatbot", "Bot", "Your order arrives Tuesday.", 3),
	}}
	lister := &scriptedLister{pages: []messaging.EntryPage{userTurn, userTurn, botReply}}
	engine := newTestEngine(lister, time.Second, 5*time.Millisecond)

	res, err := engine.Await(context.Background(), "jwt", "conv-1", "", true)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if lister.calls != 3 {
		t.Errorf("expected 3 listing calls, got %d", lister.calls)
	}
	if res.RoleInfo.MostRecentSenderRole != "Chatbot" {
		t.Errorf("role = %q", res.RoleInfo.MostRecentSenderRole)
	}
	if res.RoleInfo.IsLiveAgent {
		t.Error("chatbot reply must not trigger hand-off")
	}
	if res.RoleInfo.Instruction != InstructionRecite {
		t.Errorf("instruction = %q", res.RoleInfo.Instruction)
	}
}

func TestAwaitNoisyReplyKeepsWaiting(t *testing.T) {
	noisy := messaging.EntryPage{Entries: []messaging.ConversationEntry{
		message("EndUser", "Visitor", "hi", 1),
		message("Chatbot", "Bot", "thanks for reaching out", 2),
	}}
	lister := &scriptedLister{pages: []messaging.EntryPage{noisy}}
	engine := newTestEngine(lister, 40*time.Millisecond, 10*time.Millisecond)

	res, err := engine.Await(context.Background(), "jwt", "conv-1", "", true)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if lister.calls < 2 {
		t.Errorf("expected the loop to retry past the boilerplate reply, got %d calls", lister.calls)
	}
	if res.RoleInfo.Instruction != InstructionKeepPolling {
		t.Errorf("instruction = %q", res.RoleInfo.Instruction)
	}
}

func TestAwaitDeadlineBoundsCalls(t *testing.T) {
	deadline := 50 * time.Millisecond
	interval := 10 * time.Millisecond
	lister := &scriptedLister{} // always empty batches
	engine := newTestEngine(lister, deadline, interval)

	start := time.Now()
	res, err := engine.Await(context.Background(), "jwt", "conv-1", "", true)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("await: %v", err)
	}

	// At most ceil(d/p)+1 remote calls, returning not long after the
	// deadline.
	maxCalls := int(deadline/interval) + 2
	if lister.calls > maxCalls {
		t.Errorf("got %d calls, want at most %d", lister.calls, maxCalls)
	}
	if elapsed > deadline+200*time.Millisecond {
		t.Errorf("await took %v, deadline was %v", elapsed, deadline)
	}

	if res.RoleInfo.MostRecentSenderRole != "Unknown" {
		t.Errorf("role = %q, want Unknown", res.RoleInfo.MostRecentSenderRole)
	}
	if res.RoleInfo.Instruction != InstructionKeepPolling {
		t.Errorf("instruction = %q", res.RoleInfo.Instruction)
	}
}

func TestAwaitImmediateModeSingleCall(t *testing.T) {
	lister := &scriptedLister{pages: []messaging.EntryPage{{
		Entries: []messaging.ConversationEntry{
			message("EndUser", "Visitor", "hi", 1),
		},
		ContinuationToken: "tok-9",
	}}}
	engine := newTestEngine(lister, time.Second, 5*time.Millisecond)

	res, err := engine.Await(context.Background(), "jwt", "conv-1", "", false)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if lister.calls != 1 {
		t.Errorf("immediate mode must issue exactly one call, got %d", lister.calls)
	}
	if res.RoleInfo.Instruction != InstructionKeepPolling {
		t.Errorf("instruction = %q", res.RoleInfo.Instruction)
	}
	if res.ContinuationToken != "tok-9" {
		t.Errorf("continuation = %q", res.ContinuationToken)
	}
}

func TestAwaitTransportErrorPropagates(t *testing.T) {
	wantErr := errors.New("connection reset")
	lister := &scriptedLister{err: wantErr}
	engine := newTestEngine(lister, time.Second, 5*time.Millisecond)

	_, err := engine.Await(context.Background(), "jwt", "conv-1", "", true)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if lister.calls != 1 {
		t.Errorf("transport errors must not be retried, got %d calls", lister.calls)
	}
}

func TestAwaitConversationEnded(t *testing.T) {
	lister := &scriptedLister{pages: []messaging.EntryPage{{
		Entries: []messaging.ConversationEntry{
			message("Agent", "Sam", "bye now", 1),
			{EntryType: messaging.EntryTypeConversationClose, Timestamp: 2},
		},
	}}}
	engine := newTestEngine(lister, time.Second, 5*time.Millisecond)

	res, err := engine.Await(context.Background(), "jwt", "conv-1", "", true)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if lister.calls != 1 {
		t.Errorf("ended conversations must stop the loop, got %d calls", lister.calls)
	}
	if !res.RoleInfo.ConversationEnded {
		t.Error("expected ConversationEnded")
	}
	if res.RoleInfo.Instruction != InstructionEnded {
		t.Errorf("instruction = %q", res.RoleInfo.Instruction)
	}
}

func TestAwaitContextCancellation(t *testing.T) {
	lister := &scriptedLister{} // empty batches, loop would run to deadline
	engine := newTestEngine(lister, time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := engine.Await(ctx, "jwt", "conv-1", "", true)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
