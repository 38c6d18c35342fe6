package session

import (
	"testing"
	"time"

	"daymoon-client/internal/chattypes"
)

func confirmedMsg(id string, at time.Time) chattypes.Message {
	return chattypes.Message{
		ID:            id,
		Content:       "msg " + id,
		DeliveryState: chattypes.SentState,
		CreatedAt:     at,
	}
}

func TestInsertIncomingIsIdempotent(t *testing.T) {
	conv := &Conversation{PeerID: "peer"}
	base := time.Now()

	if !conv.insertIncoming(confirmedMsg("m1", base)) {
		t.Fatalf("first insert should report a new message")
	}
	if conv.insertIncoming(confirmedMsg("m1", base)) {
		t.Fatalf("second insert of the same id should not report a new message")
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conv.Messages))
	}
}

func TestInsertIncomingAdvancesStateOnDuplicate(t *testing.T) {
	conv := &Conversation{PeerID: "peer"}
	base := time.Now()
	conv.insertIncoming(confirmedMsg("m1", base))

	dup := confirmedMsg("m1", base)
	dup.DeliveryState = chattypes.ReadState
	conv.insertIncoming(dup)
	if got := conv.Messages[0].DeliveryState; got != chattypes.ReadState {
		t.Fatalf("expected read after duplicate with higher state, got %s", got)
	}

	// A lower state on a later duplicate must not regress it.
	regress := confirmedMsg("m1", base)
	regress.DeliveryState = chattypes.DeliveredState
	conv.insertIncoming(regress)
	if got := conv.Messages[0].DeliveryState; got != chattypes.ReadState {
		t.Fatalf("duplicate regressed state to %s", got)
	}
}

func TestInsertOrderedKeepsTimestampOrder(t *testing.T) {
	conv := &Conversation{PeerID: "peer"}
	base := time.Now()
	conv.insertIncoming(confirmedMsg("m1", base))
	conv.insertIncoming(confirmedMsg("m3", base.Add(2*time.Second)))
	// Out-of-order arrival lands between its neighbors.
	conv.insertIncoming(confirmedMsg("m2", base.Add(time.Second)))

	want := []string{"m1", "m2", "m3"}
	for i, id := range want {
		if conv.Messages[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, conv.Messages[i].ID)
		}
	}
}

func TestPendingEntriesStayAtTail(t *testing.T) {
	conv := &Conversation{PeerID: "peer"}
	base := time.Now()
	conv.insertIncoming(confirmedMsg("m1", base))
	conv.appendPending(chattypes.Message{
		LocalTempID:   "tmp1",
		Content:       "optimistic",
		DeliveryState: chattypes.PendingState,
		CreatedAt:     base.Add(time.Second),
	})
	// A confirmed message that arrives later still sorts before pending.
	conv.insertIncoming(confirmedMsg("m2", base.Add(2*time.Second)))

	last := conv.Messages[len(conv.Messages)-1]
	if last.LocalTempID != "tmp1" {
		t.Fatalf("pending entry should stay last, tail is %q/%q", last.ID, last.LocalTempID)
	}
}

func TestReconcilePendingReplacesInPlace(t *testing.T) {
	conv := &Conversation{PeerID: "peer"}
	conv.appendPending(chattypes.Message{
		LocalTempID:   "tmp1",
		Content:       "hello",
		DeliveryState: chattypes.PendingState,
		CreatedAt:     time.Now(),
	})

	conv.reconcilePending("tmp1", confirmedMsg("srv1", time.Now()))
	if len(conv.Messages) != 1 {
		t.Fatalf("expected 1 message after reconcile, got %d", len(conv.Messages))
	}
	if conv.Messages[0].ID != "srv1" || conv.Messages[0].LocalTempID != "" {
		t.Fatalf("pending entry not replaced by server record: %+v", conv.Messages[0])
	}
	if conv.Messages[0].DeliveryState != chattypes.SentState {
		t.Fatalf("expected sent state, got %s", conv.Messages[0].DeliveryState)
	}
}

func TestReconcilePendingWhenRealtimePushWonFirst(t *testing.T) {
	conv := &Conversation{PeerID: "peer"}
	conv.appendPending(chattypes.Message{
		LocalTempID:   "tmp1",
		DeliveryState: chattypes.PendingState,
		CreatedAt:     time.Now(),
	})
	// The confirmed record arrived over the websocket before the HTTP
	// response.
	conv.insertIncoming(confirmedMsg("srv1", time.Now()))

	conv.reconcilePending("tmp1", confirmedMsg("srv1", time.Now()))
	if len(conv.Messages) != 1 {
		t.Fatalf("send produced a duplicate: %d messages", len(conv.Messages))
	}
	if conv.Messages[0].ID != "srv1" {
		t.Fatalf("expected the confirmed record to survive, got %+v", conv.Messages[0])
	}
}

func TestRemovePendingRollsBackOnlyUnconfirmed(t *testing.T) {
	conv := &Conversation{PeerID: "peer"}
	conv.insertIncoming(confirmedMsg("m1", time.Now()))
	conv.appendPending(chattypes.Message{
		LocalTempID:   "tmp1",
		DeliveryState: chattypes.PendingState,
		CreatedAt:     time.Now(),
	})

	conv.removePending("tmp1")
	if len(conv.Messages) != 1 || conv.Messages[0].ID != "m1" {
		t.Fatalf("rollback removed the wrong entry: %+v", conv.Messages)
	}
	// Rolling back twice is harmless.
	conv.removePending("tmp1")
	if len(conv.Messages) != 1 {
		t.Fatalf("second rollback changed the timeline")
	}
}

func TestApplyStatusNeverRegresses(t *testing.T) {
	conv := &Conversation{PeerID: "peer"}
	conv.insertIncoming(confirmedMsg("m1", time.Now()))

	if !conv.applyStatus("m1", chattypes.ReadState) {
		t.Fatalf("read should dominate sent")
	}
	if conv.applyStatus("m1", chattypes.DeliveredState) {
		t.Fatalf("delivered must not overwrite read")
	}
	if got := conv.Messages[0].DeliveryState; got != chattypes.ReadState {
		t.Fatalf("state regressed to %s", got)
	}
	if conv.applyStatus("missing", chattypes.ReadState) {
		t.Fatalf("status for an unknown id should be a no-op")
	}
}

func TestReplaceMessageKeepsStateMonotone(t *testing.T) {
	conv := &Conversation{PeerID: "peer"}
	msg := confirmedMsg("m1", time.Now())
	msg.DeliveryState = chattypes.ReadState
	conv.insertIncoming(msg)

	edited := confirmedMsg("m1", time.Now())
	edited.Content = "edited"
	conv.replaceMessage(edited)

	if conv.Messages[0].Content != "edited" {
		t.Fatalf("content not replaced")
	}
	if conv.Messages[0].DeliveryState != chattypes.ReadState {
		t.Fatalf("edit regressed delivery state to %s", conv.Messages[0].DeliveryState)
	}
}

func TestRemoveMessage(t *testing.T) {
	conv := &Conversation{PeerID: "peer"}
	base := time.Now()
	conv.insertIncoming(confirmedMsg("m1", base))
	conv.insertIncoming(confirmedMsg("m2", base.Add(time.Second)))

	if !conv.removeMessage("m1") {
		t.Fatalf("expected removal of m1")
	}
	if conv.removeMessage("m1") {
		t.Fatalf("second removal should be a no-op")
	}
	if len(conv.Messages) != 1 || conv.Messages[0].ID != "m2" {
		t.Fatalf("unexpected timeline after delete: %+v", conv.Messages)
	}
}
