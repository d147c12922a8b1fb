package ledger

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"qs_chat/internal/model"
)

var (
	// ErrInvalidStatusTransition is returned when a status update would move
	// backward on the sent -> delivered -> read lattice.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrUnknownMessage is returned when a status update names an id the
	// ledger has never accepted.
	ErrUnknownMessage = errors.New("unknown message id")
)

// Result is the outcome of an insert attempt.
type Result uint8

const (
	Accepted Result = iota
	Duplicate
	Rejected
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

type (
	// Quarantined is a received-but-rejected envelope retained for audit.
	// It is never surfaced as content.
	Quarantined struct {
		Envelope *model.Envelope
		Reason   string
		At       time.Time
	}

	// conversation is the ordered, deduplicated message sequence for one
	// peer pair. All mutation happens under its own lock; conversations
	// never coordinate with each other.
	conversation struct {
		mu          sync.Mutex
		msgs        []*model.Message
		byID        map[string]*model.Message
		quarantined []*Quarantined
	}

	// Ledger is the single choke point for dedup and ordering across the
	// send and receive paths.
	Ledger struct {
		mu    sync.RWMutex
		convs map[string]*conversation
		index map[string]string // message id -> conversation key
	}
)

func NewLedger() *Ledger {
	return &Ledger{
		convs: make(map[string]*conversation),
		index: make(map[string]string),
	}
}

// ConversationKey is direction-independent: A->B and B->A share one ledger.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Insert records a message in its conversation. A message whose id is
// already present yields Duplicate with no mutation; a message without an id
// or timestamp is Rejected.
func (l *Ledger) Insert(msg *model.Message) Result {
	if msg == nil || msg.ID == "" || msg.Timestamp == 0 {
		return Rejected
	}
	key := ConversationKey(msg.SenderID, msg.ReceiverID)
	conv := l.conversation(key)

	conv.mu.Lock()
	defer conv.mu.Unlock()
	if _, ok := conv.byID[msg.ID]; ok {
		return Duplicate
	}

	// Insertion point by (timestamp, id); ties broken lexicographically by
	// id so the order is total even when sender clocks collide.
	i := sort.Search(len(conv.msgs), func(i int) bool {
		m := conv.msgs[i]
		if m.Timestamp != msg.Timestamp {
			return m.Timestamp > msg.Timestamp
		}
		return strings.Compare(m.ID, msg.ID) > 0
	})
	conv.msgs = append(conv.msgs, nil)
	copy(conv.msgs[i+1:], conv.msgs[i:])
	conv.msgs[i] = msg
	conv.byID[msg.ID] = msg

	l.mu.Lock()
	l.index[msg.ID] = key
	l.mu.Unlock()
	return Accepted
}

// MarkStatus advances a message along the delivery lattice. Moving backward
// fails with ErrInvalidStatusTransition and leaves the message unchanged.
func (l *Ledger) MarkStatus(id string, status model.DeliveryStatus) error {
	l.mu.RLock()
	key, ok := l.index[id]
	l.mu.RUnlock()
	if !ok {
		return ErrUnknownMessage
	}

	conv := l.conversation(key)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	msg, ok := conv.byID[id]
	if !ok {
		return ErrUnknownMessage
	}
	if status < msg.Status {
		return ErrInvalidStatusTransition
	}
	msg.Status = status
	return nil
}

// List returns a consistent snapshot of the conversation in committed order.
func (l *Ledger) List(a, b string) []model.Message {
	conv := l.conversation(ConversationKey(a, b))
	conv.mu.Lock()
	defer conv.mu.Unlock()

	out := make([]model.Message, len(conv.msgs))
	for i, m := range conv.msgs {
		out[i] = *m
	}
	return out
}

// Quarantine retains a rejected envelope for audit without exposing it to
// the application layer.
func (l *Ledger) Quarantine(env *model.Envelope, reason string) {
	conv := l.conversation(ConversationKey(env.From, env.To))
	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.quarantined = append(conv.quarantined, &Quarantined{
		Envelope: env,
		Reason:   reason,
		At:       time.Now(),
	})
}

// Quarantined lists the audit holding area for one conversation.
func (l *Ledger) Quarantined(a, b string) []*Quarantined {
	conv := l.conversation(ConversationKey(a, b))
	conv.mu.Lock()
	defer conv.mu.Unlock()

	out := make([]*Quarantined, len(conv.quarantined))
	copy(out, conv.quarantined)
	return out
}

// Snapshot exports every conversation as an ordered message list keyed by
// conversation.
func (l *Ledger) Snapshot() map[string][]model.Message {
	l.mu.RLock()
	keys := make([]string, 0, len(l.convs))
	for k := range l.convs {
		keys = append(keys, k)
	}
	l.mu.RUnlock()

	out := make(map[string][]model.Message, len(keys))
	for _, k := range keys {
		conv := l.conversation(k)
		conv.mu.Lock()
		msgs := make([]model.Message, len(conv.msgs))
		for i, m := range conv.msgs {
			msgs[i] = *m
		}
		conv.mu.Unlock()
		out[k] = msgs
	}
	return out
}

func (l *Ledger) conversation(key string) *conversation {
	l.mu.RLock()
	conv, ok := l.convs[key]
	l.mu.RUnlock()
	if ok {
		return conv
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if conv, ok := l.convs[key]; ok {
		return conv
	}
	conv = &conversation{
		byID: make(map[string]*model.Message),
	}
	l.convs[key] = conv
	return conv
}
