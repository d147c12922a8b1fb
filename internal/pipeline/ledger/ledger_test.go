package ledger

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qs_chat/internal/model"
)

func testMessage(id string, ts int64) *model.Message {
	return &model.Message{
		ID:         id,
		SenderID:   "alice",
		ReceiverID: "bob",
		Mode:       model.ModeSymmetricFast,
		Timestamp:  ts,
		Status:     model.StatusSent,
	}
}

func TestInsertDedup(t *testing.T) {
	l := NewLedger()
	msg := testMessage("aa", 100)

	require.Equal(t, Accepted, l.Insert(msg))
	require.Equal(t, Duplicate, l.Insert(msg))

	msgs := l.List("alice", "bob")
	require.Len(t, msgs, 1)
	assert.Equal(t, "aa", msgs[0].ID)
}

func TestInsertRejectsIncomplete(t *testing.T) {
	l := NewLedger()

	assert.Equal(t, Rejected, l.Insert(nil))
	assert.Equal(t, Rejected, l.Insert(testMessage("", 100)))
	assert.Equal(t, Rejected, l.Insert(testMessage("aa", 0)))
}

func TestListOrderedByTimestampThenID(t *testing.T) {
	l := NewLedger()

	msgs := []*model.Message{
		testMessage("cc", 300),
		testMessage("bb", 100), // same timestamp as "aa", id breaks the tie
		testMessage("aa", 100),
		testMessage("dd", 200),
	}
	rand.Shuffle(len(msgs), func(i, j int) {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	})
	for _, m := range msgs {
		require.Equal(t, Accepted, l.Insert(m))
	}

	got := l.List("alice", "bob")
	require.Len(t, got, 4)
	assert.Equal(t, "aa", got[0].ID)
	assert.Equal(t, "bb", got[1].ID)
	assert.Equal(t, "dd", got[2].ID)
	assert.Equal(t, "cc", got[3].ID)
}

func TestConversationKeyDirectionIndependent(t *testing.T) {
	l := NewLedger()
	require.Equal(t, Accepted, l.Insert(testMessage("aa", 100)))

	reply := testMessage("bb", 200)
	reply.SenderID, reply.ReceiverID = "bob", "alice"
	require.Equal(t, Accepted, l.Insert(reply))

	assert.Len(t, l.List("alice", "bob"), 2)
	assert.Len(t, l.List("bob", "alice"), 2)
}

func TestMarkStatusMonotonic(t *testing.T) {
	l := NewLedger()
	require.Equal(t, Accepted, l.Insert(testMessage("aa", 100)))

	require.NoError(t, l.MarkStatus("aa", model.StatusDelivered))
	require.NoError(t, l.MarkStatus("aa", model.StatusRead))

	err := l.MarkStatus("aa", model.StatusSent)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)

	msgs := l.List("alice", "bob")
	assert.Equal(t, model.StatusRead, msgs[0].Status)
}

func TestMarkStatusSkipsDelivered(t *testing.T) {
	l := NewLedger()
	require.Equal(t, Accepted, l.Insert(testMessage("aa", 100)))

	// A read receipt can overtake the delivery receipt on the wire.
	require.NoError(t, l.MarkStatus("aa", model.StatusRead))
	assert.Equal(t, model.StatusRead, l.List("alice", "bob")[0].Status)
}

func TestMarkStatusUnknownID(t *testing.T) {
	l := NewLedger()
	err := l.MarkStatus("missing", model.StatusDelivered)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestQuarantineInvisibleToList(t *testing.T) {
	l := NewLedger()
	env := &model.Envelope{
		From: "mallory",
		To:   "bob",
		Mode: model.ModeSymmetricFast,
	}

	l.Quarantine(env, "signature invalid")

	assert.Empty(t, l.List("mallory", "bob"))
	q := l.Quarantined("mallory", "bob")
	require.Len(t, q, 1)
	assert.Equal(t, "signature invalid", q[0].Reason)
}

func TestSnapshotKeyedByConversation(t *testing.T) {
	l := NewLedger()
	require.Equal(t, Accepted, l.Insert(testMessage("aa", 100)))

	other := testMessage("bb", 50)
	other.SenderID, other.ReceiverID = "alice", "carol"
	require.Equal(t, Accepted, l.Insert(other))

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.Len(t, snap[ConversationKey("alice", "bob")], 1)
	assert.Len(t, snap[ConversationKey("alice", "carol")], 1)
}

func TestConcurrentInsertsSingleCopyEach(t *testing.T) {
	l := NewLedger()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every message inserted twice from different goroutines.
			msg := testMessage(fmt.Sprintf("%03d", i), int64(100+i))
			l.Insert(msg)
			l.Insert(msg)
		}(i)
	}
	wg.Wait()

	msgs := l.List("alice", "bob")
	require.Len(t, msgs, n)
	for i := 1; i < len(msgs); i++ {
		assert.LessOrEqual(t, msgs[i-1].Timestamp, msgs[i].Timestamp)
	}
}
