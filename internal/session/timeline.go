package session

import "daymoon-client/internal/chattypes"

// Timeline mutation helpers. All of these run under the client lock; none
// of them may leave the conversation with a duplicate message identifier
// or a delivery state rolled backwards.

func (c *Conversation) indexByID(id string) int {
	if id == "" {
		return -1
	}
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Conversation) indexByTempID(tempID string) int {
	if tempID == "" {
		return -1
	}
	for i := range c.Messages {
		if c.Messages[i].LocalTempID == tempID && !c.Messages[i].Confirmed() {
			return i
		}
	}
	return -1
}

// insertIncoming applies a new_message event. Idempotent: if the id is
// already present (for example because an optimistic send reconciled it
// first), only the delivery state may advance; the message set size does
// not change.
func (c *Conversation) insertIncoming(msg chattypes.Message) bool {
	if i := c.indexByID(msg.ID); i >= 0 {
		if msg.DeliveryState.Dominates(c.Messages[i].DeliveryState) {
			c.Messages[i].DeliveryState = msg.DeliveryState
		}
		return false
	}
	c.insertOrdered(msg)
	return true
}

// insertOrdered places a confirmed message by server timestamp. Incoming
// history and realtime pushes are already close to sorted, so scanning
// from the tail is the common O(1) case. Local pending entries stay at the
// tail: a confirmed message never sorts after them.
func (c *Conversation) insertOrdered(msg chattypes.Message) {
	at := len(c.Messages)
	for at > 0 {
		prev := c.Messages[at-1]
		if !prev.Confirmed() {
			at-- // pending entries stay last
			continue
		}
		if !prev.CreatedAt.After(msg.CreatedAt) {
			break
		}
		at--
	}
	c.Messages = append(c.Messages, chattypes.Message{})
	copy(c.Messages[at+1:], c.Messages[at:])
	c.Messages[at] = msg
}

// appendPending adds an optimistic entry at the tail, after the last
// confirmed message at time of send.
func (c *Conversation) appendPending(msg chattypes.Message) {
	c.Messages = append(c.Messages, msg)
}

// reconcilePending replaces the optimistic entry with the server-confirmed
// record. If the confirmed id is already in the timeline (the realtime
// push beat the HTTP response) the pending entry is dropped instead, so
// the send never produces two messages.
func (c *Conversation) reconcilePending(tempID string, confirmed chattypes.Message) {
	pending := c.indexByTempID(tempID)
	if existing := c.indexByID(confirmed.ID); existing >= 0 {
		if pending >= 0 {
			c.removeAt(pending)
		}
		return
	}
	if pending < 0 {
		// Conversation was replaced while the request was in flight.
		return
	}
	confirmed.LocalTempID = ""
	c.Messages[pending] = confirmed
}

// removePending rolls back a failed optimistic send.
func (c *Conversation) removePending(tempID string) {
	if i := c.indexByTempID(tempID); i >= 0 {
		c.removeAt(i)
	}
}

// applyStatus advances a message's delivery state. Updates that do not
// dominate the current state are ignored, so out-of-order events cannot
// regress Read back to Delivered or Sent.
func (c *Conversation) applyStatus(messageID string, state chattypes.DeliveryState) bool {
	i := c.indexByID(messageID)
	if i < 0 {
		return false
	}
	if !state.Dominates(c.Messages[i].DeliveryState) {
		return false
	}
	c.Messages[i].DeliveryState = state
	return true
}

// replaceMessage applies a message_updated event, keeping the delivery
// state monotone.
func (c *Conversation) replaceMessage(msg chattypes.Message) bool {
	i := c.indexByID(msg.ID)
	if i < 0 {
		return false
	}
	if !msg.DeliveryState.Dominates(c.Messages[i].DeliveryState) {
		msg.DeliveryState = c.Messages[i].DeliveryState
	}
	c.Messages[i] = msg
	return true
}

// removeMessage applies a message_deleted event.
func (c *Conversation) removeMessage(messageID string) bool {
	i := c.indexByID(messageID)
	if i < 0 {
		return false
	}
	c.removeAt(i)
	return true
}

func (c *Conversation) removeAt(i int) {
	c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
}
