package server

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alimasry/go-collab-canvas/protocol"
	"github.com/alimasry/go-collab-canvas/store"
)

type connState int

const (
	stateConnecting connState = iota
	stateActive
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateActive:
		return "active"
	default:
		return "closed"
	}
}

type handlerFunc func(r *Relay, c *Client, ev protocol.Event)

// dispatch lists the events each connection state accepts. Connecting and
// closed connections accept none.
var dispatch = map[connState]map[string]handlerFunc{
	stateActive: {
		protocol.EventCursorMove:        (*Relay).onCursorMove,
		protocol.EventObjectCreate:      (*Relay).onObjectCreate,
		protocol.EventObjectUpdate:      (*Relay).onObjectUpdate,
		protocol.EventObjectDelete:      (*Relay).onObjectDelete,
		protocol.EventObjectSelect:      (*Relay).onObjectSelect,
		protocol.EventViewportUpdate:    (*Relay).onViewportUpdate,
		protocol.EventObjectGroup:       (*Relay).onObjectGroup,
		protocol.EventObjectUngroup:     (*Relay).onObjectUngroup,
		protocol.EventCanvasClear:       (*Relay).onCanvasClear,
		protocol.EventParticipantRename: (*Relay).onParticipantRename,
	},
}

func (r *Relay) onCursorMove(c *Client, ev protocol.Event) {
	e := ev.(protocol.CursorMove)
	r.registry.UpdateCursor(c.ID, e.Point)
	switch {
	case c.cursorLimiter == nil:
	case c.cursorFlushDue:
		// The queued flush will carry this position.
		return
	case !c.cursorLimiter.Allow():
		r.scheduleCursorFlush(c)
		return
	}
	r.broadcast(c, protocol.Audiences[e.Kind()], protocol.Message{
		Event: protocol.EventCursorUpdate,
		Data:  protocol.CursorUpdate{ParticipantID: c.ID, Cursor: e.Point},
	})
}

// scheduleCursorFlush reserves the next token for c and queues a flush of
// its latest cursor for when that token is available.
func (r *Relay) scheduleCursorFlush(c *Client) {
	c.cursorFlushDue = true
	delay := c.cursorLimiter.Reserve().Delay()
	time.AfterFunc(delay, func() {
		r.enqueue(inboxMessage{kind: inboxCursorFlush, client: c})
	})
}

func (r *Relay) flushCursor(c *Client) {
	if cur, ok := r.clients[c.ID]; !ok || cur != c || c.state != stateActive {
		return
	}
	c.cursorFlushDue = false
	p, ok := r.registry.Get(c.ID)
	if !ok || p.Cursor == nil {
		return
	}
	r.broadcast(c, protocol.Audiences[protocol.EventCursorMove], protocol.Message{
		Event: protocol.EventCursorUpdate,
		Data:  protocol.CursorUpdate{ParticipantID: c.ID, Cursor: *p.Cursor},
	})
}

func (r *Relay) onObjectCreate(c *Client, ev protocol.Event) {
	e := ev.(protocol.ObjectCreate)
	obj, err := r.store.Create(e.Object)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			r.opts.Metrics.eventDropped(dropDuplicateID)
		}
		r.log.WithField("participant", c.ID).WithError(err).Warn("relay: create rejected")
		return
	}
	r.broadcast(c, protocol.Audiences[e.Kind()], protocol.Message{
		Event: protocol.EventObjectCreated,
		Data:  obj,
	})
}

func (r *Relay) onObjectUpdate(c *Client, ev protocol.Event) {
	e := ev.(protocol.ObjectUpdate)
	obj, ok := r.store.Update(e.Object)
	if !ok {
		r.log.WithFields(logrus.Fields{"participant": c.ID, "object": e.Object.ID}).
			Debug("relay: update target missing, ignored")
		r.opts.Metrics.eventDropped(dropNotFound)
		return
	}
	r.broadcast(c, protocol.Audiences[e.Kind()], protocol.Message{
		Event: protocol.EventObjectUpdated,
		Data:  obj,
	})
}

func (r *Relay) onObjectDelete(c *Client, ev protocol.Event) {
	e := ev.(protocol.ObjectDelete)
	removed := r.store.Delete(e.IDs)
	if len(removed) == 0 {
		r.opts.Metrics.eventDropped(dropNotFound)
		return
	}
	r.broadcast(c, protocol.Audiences[e.Kind()], protocol.Message{
		Event: protocol.EventObjectDeleted,
		Data:  protocol.ObjectsDeleted{IDs: removed},
	})
}

func (r *Relay) onObjectSelect(c *Client, ev protocol.Event) {
	e := ev.(protocol.ObjectSelect)
	r.registry.UpdateSelection(c.ID, e.IDs)
	r.broadcast(c, protocol.Audiences[e.Kind()], protocol.Message{
		Event: protocol.EventSelectionChanged,
		Data:  protocol.SelectionChanged{ParticipantID: c.ID, IDs: e.IDs},
	})
}

func (r *Relay) onViewportUpdate(c *Client, ev protocol.Event) {
	e := ev.(protocol.ViewportUpdate)
	if r.opts.ViewportMode != ViewportShared {
		r.opts.Metrics.eventDropped(dropViewport)
		return
	}
	r.store.SetViewport(e.Viewport)
	r.broadcast(c, protocol.Audiences[e.Kind()], protocol.Message{
		Event: protocol.EventViewportUpdated,
		Data:  e.Viewport,
	})
}

func (r *Relay) onObjectGroup(c *Client, ev protocol.Event) {
	e := ev.(protocol.ObjectGroup)
	res, ok := r.store.Group(e.IDs)
	if !ok {
		r.opts.Metrics.eventDropped(dropNotFound)
		return
	}
	r.broadcast(c, protocol.Audiences[e.Kind()], protocol.Message{
		Event: protocol.EventObjectGrouped,
		Data:  res,
	})
}

func (r *Relay) onObjectUngroup(c *Client, ev protocol.Event) {
	e := ev.(protocol.ObjectUngroup)
	members, ok := r.store.Ungroup(e.GroupID)
	if !ok {
		r.opts.Metrics.eventDropped(dropNotFound)
		return
	}
	r.broadcast(c, protocol.Audiences[e.Kind()], protocol.Message{
		Event: protocol.EventObjectUngrouped,
		Data:  protocol.ObjectUngrouped{GroupID: e.GroupID, Members: members},
	})
}

func (r *Relay) onCanvasClear(c *Client, ev protocol.Event) {
	n := r.store.Clear()
	r.log.WithField("participant", c.ID).Infof("canvas cleared (%d objects)", n)
	r.broadcast(c, protocol.Audiences[ev.Kind()], protocol.Message{
		Event: protocol.EventCanvasCleared,
		Data:  protocol.CanvasCleared{ParticipantID: c.ID},
	})
}

func (r *Relay) onParticipantRename(c *Client, ev protocol.Event) {
	e := ev.(protocol.ParticipantRename)
	r.registry.Rename(c.ID, e.Name)
	r.broadcast(c, protocol.Audiences[e.Kind()], protocol.Message{
		Event: protocol.EventParticipantRenamed,
		Data:  protocol.ParticipantRenamed{ParticipantID: c.ID, Name: e.Name},
	})
}
