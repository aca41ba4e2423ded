package conversation

import "fmt"

// Apply folds ev into c and reports whether the event was appended. It never
// mutates c; the returned conversation is c itself on a no-op and a fresh copy
// otherwise. A nil c opens a new conversation whose identity fields are left
// for the caller to fill in.
func Apply(c *Conversation, ev Event, now int64) (*Conversation, bool) {
	if c == nil {
		return open(ev, now), true
	}

	if c.Status == StatusIgnored {
		return c, false
	}
	if c.hasDedupeKey(ev.DedupeKey) {
		return c, false
	}
	// Comments get redelivered and repeated; only a fresh public comment on an
	// abandoned thread is allowed to reopen it.
	if ev.Kind.commentClass() && c.Status != StatusAbandoned {
		return c, false
	}

	next := c.Clone()
	next.Events = append(next.Events, ev)
	next.UpdatedAt = now

	switch {
	case ev.Direction == DirectionReceived && ev.Kind.Actionable():
		if !next.Status.Terminal() || (next.Status == StatusAbandoned && ev.Kind.commentClass()) {
			next.setStatus(StatusAwaitingReply)
			next.TerminalReason = ""
		}
	case ev.Direction == DirectionSent && ev.Kind.Actionable() && !next.Status.Terminal():
		if ev.IsEcho {
			next.setStatus(StatusIgnored)
		} else {
			next.setStatus(StatusWaitingForCounterpart)
		}
	}

	return next, true
}

func open(ev Event, now int64) *Conversation {
	status := StatusIgnored
	if ev.Direction == DirectionReceived && ev.Kind.Actionable() {
		status = StatusAwaitingReply
	}
	return &Conversation{
		Status:    status,
		Events:    []Event{ev},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Conversation) setStatus(s Status) {
	if s != StatusAwaitingReply {
		c.clearClaim()
	}
	c.Status = s
}

// Abandon closes an awaiting conversation the counterpart is not interested in.
func Abandon(c *Conversation, reason string, now int64) (*Conversation, error) {
	return terminate(c, StatusAbandoned, reason, now)
}

// Convert closes an awaiting conversation that reached its goal.
func Convert(c *Conversation, reason string, now int64) (*Conversation, error) {
	return terminate(c, StatusConverted, reason, now)
}

func terminate(c *Conversation, to Status, reason string, now int64) (*Conversation, error) {
	if c.Status != StatusAwaitingReply {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	next := c.Clone()
	next.setStatus(to)
	next.TerminalReason = reason
	next.UpdatedAt = now
	return next, nil
}

// Hold parks an awaiting conversation until the tenant is entitled again.
func Hold(c *Conversation, now int64) (*Conversation, error) {
	if c.Status != StatusAwaitingReply {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusWaitingForPayment)
	}
	next := c.Clone()
	next.setStatus(StatusWaitingForPayment)
	next.UpdatedAt = now
	return next, nil
}

// Claim stamps a dispatcher lease on an awaiting conversation. updated_at is
// left alone so queue order is unaffected.
func Claim(c *Conversation, claimID string, until, now int64) (*Conversation, error) {
	if c.Status != StatusAwaitingReply {
		return nil, fmt.Errorf("%w: claim on %s", ErrInvalidTransition, c.Status)
	}
	if c.Claimed(now) {
		return nil, fmt.Errorf("%w: already claimed", ErrInvalidTransition)
	}
	next := c.Clone()
	next.ClaimID = claimID
	next.ClaimedUntil = until
	return next, nil
}

// Release drops the lease identified by claimID; ok is false when the lease
// is no longer held by that claim.
func Release(c *Conversation, claimID string) (*Conversation, bool) {
	if c.ClaimID != claimID {
		return c, false
	}
	next := c.Clone()
	next.clearClaim()
	return next, true
}
