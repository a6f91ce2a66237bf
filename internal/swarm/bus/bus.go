// Package bus implements the swarm's single in-process broadcast primitive:
// every subscriber other than the sender sees every message published after
// it subscribed, with a capacity-bounded, oldest-truncated message log for
// later inspection.
//
// Grounded on agent/collaboration/multi_agent.go's MessageHub (per-agent
// channel map, sync.Once-guarded Close, non-blocking send-or-drop) and
// generalized from that file's single ad-hoc Message type to the closed
// SwarmMessage set this domain requires.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

// MessageKind is the closed set of message types the bus carries.
type MessageKind string

const (
	KindTaskAssigned  MessageKind = "task_assigned"
	KindTaskCompleted MessageKind = "task_completed"
	KindProposal      MessageKind = "proposal"
	KindVote          MessageKind = "vote"
	KindPatternShare  MessageKind = "pattern_share"
	KindHelpRequest   MessageKind = "help_request"
	KindHandoff       MessageKind = "handoff"
	KindProgress      MessageKind = "progress"
	KindSystemMessage MessageKind = "system_message"
)

// Urgency is the closed urgency set carried by HelpRequest.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// SystemLevel is the closed severity set carried by SystemMessage.
type SystemLevel string

const (
	LevelInfo     SystemLevel = "info"
	LevelWarning  SystemLevel = "warning"
	LevelError    SystemLevel = "error"
	LevelCritical SystemLevel = "critical"
)

// Message is one envelope carried by the bus. From is the broadcaster; To,
// when non-zero, names the intended recipient for send_direct — filtering
// on To is the receiver's responsibility, per spec §4.4.
type Message struct {
	ID        string
	Kind      MessageKind
	From      swarmtypes.AgentID
	To        swarmtypes.AgentID
	HasTo     bool
	Urgency   Urgency
	Level     SystemLevel
	Topic     string
	Payload   any
	Timestamp time.Time
}

const (
	defaultLogCapacity     = 10_000
	defaultSubscriberDepth = 256
)

// Bus is the broadcast primitive. A single broadcaster observes FIFO
// delivery to every receiver; across broadcasters no global order is
// guaranteed, matching the per-channel-send ordering the teacher's
// MessageHub already provides.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Message
	log         []Message
	logCap      int
	subDepth    int
	closed      bool
	logger      *zap.Logger
}

// New constructs a Bus with the documented defaults (log capacity 10 000,
// per-subscriber channel depth 256).
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subscribers: make(map[string]chan Message),
		logCap:      defaultLogCapacity,
		subDepth:    defaultSubscriberDepth,
		logger:      logger.With(zap.String("component", "bus")),
	}
}

// Subscribe returns a receiver that observes every broadcast produced after
// this call; historical messages are not replayed.
func (b *Bus) Subscribe(id swarmtypes.AgentID) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, b.subDepth)
	b.subscribers[id.String()] = ch
	return ch
}

// Unsubscribe closes and removes a subscriber's channel. Safe to call more
// than once for the same id.
func (b *Bus) Unsubscribe(id swarmtypes.AgentID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id.String()]; ok {
		close(ch)
		delete(b.subscribers, id.String())
	}
}

// Broadcast appends msg to the log and delivers it to every live subscriber
// except the sender. Unreachable subscribers (closed receiver map entry
// already removed) are simply absent from iteration, matching the spec's
// "dropped silently" language. A subscriber whose channel is full has its
// oldest queued message dropped to make room for this one, and is then sent
// a SystemMessage(Warning).
func (b *Bus) Broadcast(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.log = append(b.log, msg)
	if len(b.log) > b.logCap {
		excess := len(b.log) - b.logCap
		b.log = b.log[excess:]
	}

	overflowed := make([]string, 0)
	for subID, ch := range b.subscribers {
		if subID == msg.From.String() {
			continue
		}
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- msg:
			default:
			}
			overflowed = append(overflowed, subID)
		}
	}
	b.mu.Unlock()

	for _, subID := range overflowed {
		b.notifyOverflow(subID)
	}
}

// notifyOverflow best-effort delivers a SystemMessage(Warning) to a
// subscriber whose channel was found full. Like the message that
// overflowed, the warning takes the place of the oldest queued message; if
// the channel still has no room (another broadcast refilled it first), the
// warning itself is dropped rather than blocking the broadcaster — the same
// non-blocking discipline used for ordinary messages.
func (b *Bus) notifyOverflow(subID string) {
	b.mu.RLock()
	ch, ok := b.subscribers[subID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	warn := Message{
		ID:        uuid.New().String(),
		Kind:      KindSystemMessage,
		Level:     LevelWarning,
		Payload:   "subscriber overflow: oldest undelivered message dropped",
		Timestamp: time.Now(),
	}
	select {
	case ch <- warn:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- warn:
		default:
			b.logger.Debug("overflow warning itself dropped, subscriber fully saturated", zap.String("subscriber", subID))
		}
	}
}

// SendDirect is implemented as a Broadcast with To set; filtering to the
// intended recipient is the receiver's job, per spec §4.4.
func (b *Bus) SendDirect(from, to swarmtypes.AgentID, kind MessageKind, payload any) {
	b.Broadcast(Message{From: from, To: to, HasTo: true, Kind: kind, Payload: payload})
}

// Messages returns a snapshot of the whole message log; MessagesFrom
// filters it to one sender.
func (b *Bus) Messages() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Message, len(b.log))
	copy(out, b.log)
	return out
}

// MessagesFrom filters the log to messages broadcast by a given agent.
func (b *Bus) MessagesFrom(agent swarmtypes.AgentID) []Message {
	all := b.Messages()
	out := make([]Message, 0)
	for _, m := range all {
		if m.From == agent {
			out = append(out, m)
		}
	}
	return out
}

// Close shuts the bus down: every subscriber channel is closed and further
// Broadcast calls become no-ops. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
