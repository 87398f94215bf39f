package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/alimasry/go-collab-canvas/canvas"
	"github.com/alimasry/go-collab-canvas/protocol"
	"github.com/alimasry/go-collab-canvas/store"
)

// ViewportMode selects whether viewport changes are shared between
// participants.
type ViewportMode string

const (
	// ViewportLocal keeps every participant's camera private. Viewport events
	// are dropped.
	ViewportLocal ViewportMode = "local"
	// ViewportShared stores the last viewport and forwards changes to the
	// other participants.
	ViewportShared ViewportMode = "shared"
)

// ParseViewportMode validates a configured viewport mode.
func ParseViewportMode(s string) (ViewportMode, error) {
	switch ViewportMode(s) {
	case ViewportLocal, ViewportShared:
		return ViewportMode(s), nil
	case "":
		return ViewportLocal, nil
	}
	return "", fmt.Errorf("unknown viewport mode %q", s)
}

// Options configures relays created by a Hub.
type Options struct {
	ViewportMode ViewportMode
	// CursorRate caps cursor broadcasts per participant per second. Zero
	// disables the cap.
	CursorRate  rate.Limit
	CursorBurst int
	Palette     []string

	// RoomIdleTimeout is how long a named room may stay empty before its
	// relay is released.
	RoomIdleTimeout time.Duration

	ParticipantIDs canvas.IDFunc
	ObjectIDs      canvas.IDFunc

	Logger  *logrus.Logger
	Metrics *Metrics
}

func (o Options) withDefaults() Options {
	if o.ViewportMode == "" {
		o.ViewportMode = ViewportLocal
	}
	if o.CursorBurst <= 0 {
		o.CursorBurst = 1
	}
	if o.RoomIdleTimeout <= 0 {
		o.RoomIdleTimeout = time.Minute
	}
	if o.ParticipantIDs == nil {
		o.ParticipantIDs = canvas.RandomIDs()
	}
	if o.ObjectIDs == nil {
		o.ObjectIDs = canvas.RandomIDs()
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

type inboxKind int

const (
	inboxJoin inboxKind = iota
	inboxLeave
	inboxEvent
	inboxCursorFlush
)

type inboxMessage struct {
	kind   inboxKind
	client *Client
	event  protocol.Event
}

// Stats is a point-in-time count of a relay's contents.
type Stats struct {
	Participants int `json:"participants"`
	Objects      int `json:"objects"`
}

// Relay owns the canvas state and participant registry of one room.
// Joins, leaves and events from every connection go through a single inbox
// and are applied one at a time by Run.
type Relay struct {
	room     string
	store    store.CanvasStore
	registry *Registry
	opts     Options
	log      *logrus.Entry

	// Owned by the Run goroutine.
	clients map[string]*Client
	// onEmpty runs on the Run goroutine after the last participant leaves.
	onEmpty func(*Relay)

	// admit orders joins against retire.
	admit        sync.RWMutex
	pendingJoins atomic.Int32

	inbox    chan inboxMessage
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRelay creates a relay for room. Call Run to start processing.
func NewRelay(room string, opts Options) *Relay {
	opts = opts.withDefaults()
	return &Relay{
		room:     room,
		store:    store.NewMemoryStore(opts.ObjectIDs),
		registry: NewRegistry(opts.Palette),
		opts:     opts,
		log:      opts.Logger.WithField("room", room),
		clients:  make(map[string]*Client),
		inbox:    make(chan inboxMessage, 256),
		stop:     make(chan struct{}),
	}
}

// Run is the relay's main loop. It serializes every state change.
func (r *Relay) Run() {
	r.log.Info("relay started")
	for {
		select {
		case m := <-r.inbox:
			r.process(m)
		case <-r.stop:
			r.opts.Metrics.deleteRoom(r.room)
			r.log.Info("relay stopped")
			return
		}
	}
}

// Close stops the Run loop. Pending inbox messages are discarded.
func (r *Relay) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Join queues c for registration. It blocks while the inbox is full and
// reports false once the relay is closed.
func (r *Relay) Join(c *Client) bool {
	r.admit.RLock()
	defer r.admit.RUnlock()

	r.pendingJoins.Add(1)
	if !r.enqueue(inboxMessage{kind: inboxJoin, client: c}) {
		r.pendingJoins.Add(-1)
		return false
	}
	return true
}

// Leave queues c for removal. Leaving twice is harmless.
func (r *Relay) Leave(c *Client) bool {
	return r.enqueue(inboxMessage{kind: inboxLeave, client: c})
}

// Submit queues a validated event from c.
func (r *Relay) Submit(c *Client, ev protocol.Event) bool {
	return r.enqueue(inboxMessage{kind: inboxEvent, client: c, event: ev})
}

// retire closes the relay if nobody is connected and no join is queued.
func (r *Relay) retire() bool {
	r.admit.Lock()
	defer r.admit.Unlock()

	if r.pendingJoins.Load() > 0 || r.registry.Len() > 0 {
		return false
	}
	r.Close()
	return true
}

func (r *Relay) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *Relay) enqueue(m inboxMessage) bool {
	select {
	case <-r.stop:
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.stop:
		return false
	}
}

// Stats reports the current participant and object counts.
func (r *Relay) Stats() Stats {
	return Stats{Participants: r.registry.Len(), Objects: r.store.Len()}
}

// Snapshot returns a copy of the canvas state.
func (r *Relay) Snapshot() store.State {
	return r.store.Snapshot()
}

// Participants returns the current roster.
func (r *Relay) Participants() []protocol.Participant {
	return r.registry.List()
}

func (r *Relay) process(m inboxMessage) {
	if r.stopped() {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.WithFields(logrus.Fields{
				"participant": m.client.ID,
				"panic":       p,
			}).Error("relay: recovered from handler panic")
			r.opts.Metrics.eventDropped(dropPanic)
		}
	}()

	switch m.kind {
	case inboxJoin:
		r.handleJoin(m.client)
	case inboxLeave:
		r.handleLeave(m.client)
	case inboxEvent:
		r.handleEvent(m.client, m.event)
	case inboxCursorFlush:
		r.flushCursor(m.client)
	}
	r.opts.Metrics.setRoom(r.room, r.registry.Len(), r.store.Len())

	if m.kind == inboxLeave && len(r.clients) == 0 && r.onEmpty != nil {
		r.onEmpty(r)
	}
}

func (r *Relay) handleJoin(c *Client) {
	defer r.pendingJoins.Add(-1)

	if _, ok := r.clients[c.ID]; ok {
		r.log.WithField("participant", c.ID).Warn("relay: duplicate join ignored")
		return
	}

	c.state = stateConnecting
	p := r.registry.Register(c.ID)
	r.clients[c.ID] = c
	if r.opts.CursorRate > 0 {
		c.cursorLimiter = rate.NewLimiter(r.opts.CursorRate, r.opts.CursorBurst)
	}

	c.sendMsg(protocol.Message{
		Event: protocol.EventInit,
		Data: protocol.Init{
			State:        r.store.Snapshot(),
			Participants: r.registry.List(),
			SelfID:       c.ID,
		},
	})
	c.state = stateActive

	r.broadcast(c, protocol.AudienceOthers, protocol.Message{
		Event: protocol.EventParticipantJoined,
		Data:  p,
	})
	r.log.WithFields(logrus.Fields{
		"participant": c.ID,
		"name":        p.Name,
	}).Info("participant joined")
}

func (r *Relay) handleLeave(c *Client) {
	if cur, ok := r.clients[c.ID]; !ok || cur != c {
		return
	}
	c.state = stateClosed
	delete(r.clients, c.ID)
	r.registry.Unregister(c.ID)
	close(c.send)

	r.broadcast(nil, protocol.AudienceAll, protocol.Message{
		Event: protocol.EventParticipantLeft,
		Data:  protocol.ParticipantLeft{ParticipantID: c.ID},
	})
	r.log.WithField("participant", c.ID).Info("participant left")
}

func (r *Relay) handleEvent(c *Client, ev protocol.Event) {
	logCtx := r.log.WithFields(logrus.Fields{"participant": c.ID, "event": ev.Kind()})

	if cur, ok := r.clients[c.ID]; !ok || cur != c {
		logCtx.Debug("relay: event from inactive connection dropped")
		r.opts.Metrics.eventDropped(dropInactive)
		return
	}
	h, ok := dispatch[c.state][ev.Kind()]
	if !ok {
		logCtx.WithField("state", c.state).Warn("relay: no handler for event in this state")
		r.opts.Metrics.eventDropped(dropUnhandled)
		return
	}
	r.opts.Metrics.eventHandled(ev.Kind())
	h(r, c, ev)
}

// broadcast encodes msg once and queues it for the audience relative to
// sender. A nil sender with AudienceOthers reaches everyone.
func (r *Relay) broadcast(sender *Client, audience protocol.Audience, msg protocol.Message) {
	if audience == protocol.AudienceNone {
		return
	}
	data := msg.Encode()
	for _, c := range r.clients {
		if c.state != stateActive {
			continue
		}
		if audience == protocol.AudienceOthers && c == sender {
			continue
		}
		if !c.trySend(data) {
			r.log.WithFields(logrus.Fields{
				"participant": c.ID,
				"event":       msg.Event,
			}).Warn("relay: client queue full, message dropped")
			r.opts.Metrics.messageSkipped()
		}
	}
}
