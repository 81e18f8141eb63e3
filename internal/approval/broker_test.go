package approval

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"wallet-provider/internal/notify"
	"wallet-provider/pkg/errno"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	payload json.RawMessage
	err     error
}

func startBroker(t *testing.T, limit int) (*Broker, *Desk, *notify.Recorder) {
	t.Helper()
	desk := NewDesk()
	rec := &notify.Recorder{}
	b := NewBroker(desk, rec, limit)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(cancel)
	return b, desk, rec
}

func request(b *Broker, ctx context.Context, t *Ticket, opts ...Option) <-chan outcome {
	ch := make(chan outcome, 1)
	go func() {
		p, err := b.Request(ctx, t, opts...)
		ch <- outcome{p, err}
	}()
	return ch
}

func waitCurrent(t *testing.T, d *Desk, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		cur, ok := d.Current()
		return ok && cur.ID == id
	}, time.Second, 5*time.Millisecond)
}

func TestBrokerResolvesWithPayload(t *testing.T) {
	b, desk, rec := startBroker(t, 0)

	res := request(b, context.Background(), &Ticket{ID: "t1", Kind: KindConnect, Origin: "https://a.xyz"})
	waitCurrent(t, desk, "t1")

	require.NoError(t, desk.Decide("t1", Decision{Approved: true, Payload: json.RawMessage(`{"chainId":"0x1"}`)}))

	out := <-res
	require.NoError(t, out.err)
	assert.JSONEq(t, `{"chainId":"0x1"}`, string(out.payload))
	assert.Equal(t, 1, rec.Count(notify.ApprovalRequired))
	assert.Equal(t, 1, rec.Count(notify.ApprovalResolved))
}

func TestBrokerRejectAndDismiss(t *testing.T) {
	b, desk, _ := startBroker(t, 0)

	res := request(b, context.Background(), &Ticket{ID: "t1", Kind: KindSignText})
	waitCurrent(t, desk, "t1")
	require.NoError(t, desk.Decide("t1", Decision{Approved: false}))
	out := <-res
	assert.ErrorIs(t, out.err, errno.ErrUserRejected)

	res = request(b, context.Background(), &Ticket{ID: "t2", Kind: KindSignText})
	waitCurrent(t, desk, "t2")
	desk.Dismiss("t2")
	out = <-res
	assert.ErrorIs(t, out.err, errno.ErrUserRejected)
}

func TestBrokerSingleFlightFIFO(t *testing.T) {
	b, desk, _ := startBroker(t, 0)

	first := request(b, context.Background(), &Ticket{ID: "a", Kind: KindConnect, Origin: "https://a.xyz"})
	waitCurrent(t, desk, "a")
	second := request(b, context.Background(), &Ticket{ID: "b", Kind: KindConnect, Origin: "https://b.xyz"})
	third := request(b, context.Background(), &Ticket{ID: "c", Kind: KindConnect, Origin: "https://c.xyz"})

	require.Eventually(t, func() bool { return len(b.Pending()) == 3 }, time.Second, 5*time.Millisecond)

	// 只有一个 Ticket 可见，且不能对排队中的 Ticket 作答
	assert.ErrorIs(t, desk.Decide("b", Decision{Approved: true}), ErrTicketNotFound)

	require.NoError(t, desk.Decide("a", Decision{Approved: true}))
	require.NoError(t, (<-first).err)

	waitCurrent(t, desk, "b")
	require.NoError(t, desk.Decide("b", Decision{Approved: true}))
	require.NoError(t, (<-second).err)

	waitCurrent(t, desk, "c")
	require.NoError(t, desk.Decide("c", Decision{Approved: true}))
	require.NoError(t, (<-third).err)
}

func TestBrokerUnshiftJumpsQueue(t *testing.T) {
	b, desk, _ := startBroker(t, 0)

	first := request(b, context.Background(), &Ticket{ID: "tx", Kind: KindSignTx})
	waitCurrent(t, desk, "tx")
	queued := request(b, context.Background(), &Ticket{ID: "other", Kind: KindSignText})
	require.Eventually(t, func() bool { return len(b.Pending()) == 2 }, time.Second, 5*time.Millisecond)

	// 已在进行中的审批的后续步骤排在队首
	confirm := request(b, context.Background(), &Ticket{ID: "confirm", Kind: KindSignerConfirm}, Unshift())
	require.Eventually(t, func() bool { return len(b.Pending()) == 3 }, time.Second, 5*time.Millisecond)

	pending := b.Pending()
	assert.Equal(t, []string{"tx", "confirm", "other"}, []string{pending[0].ID, pending[1].ID, pending[2].ID})

	require.NoError(t, desk.Decide("tx", Decision{Approved: true}))
	require.NoError(t, (<-first).err)

	waitCurrent(t, desk, "confirm")
	require.NoError(t, desk.Decide("confirm", Decision{Approved: true}))
	require.NoError(t, (<-confirm).err)

	waitCurrent(t, desk, "other")
	require.NoError(t, desk.Decide("other", Decision{Approved: true}))
	require.NoError(t, (<-queued).err)
}

func TestBrokerCanceledRequesterLeavesQueue(t *testing.T) {
	b, desk, _ := startBroker(t, 0)

	blocking := request(b, context.Background(), &Ticket{ID: "a", Kind: KindConnect})
	waitCurrent(t, desk, "a")

	ctx, cancel := context.WithCancel(context.Background())
	canceled := request(b, ctx, &Ticket{ID: "b", Kind: KindConnect})
	require.Eventually(t, func() bool { return len(b.Pending()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	out := <-canceled
	assert.ErrorIs(t, out.err, context.Canceled)
	assert.Len(t, b.Pending(), 1)

	require.NoError(t, desk.Decide("a", Decision{Approved: true}))
	require.NoError(t, (<-blocking).err)
}

func TestBrokerCanceledWhilePresentedIsDismissed(t *testing.T) {
	b, desk, _ := startBroker(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	res := request(b, ctx, &Ticket{ID: "a", Kind: KindSignTx})
	waitCurrent(t, desk, "a")

	cancel()
	out := <-res
	assert.ErrorIs(t, out.err, context.Canceled)

	_, ok := desk.Current()
	assert.False(t, ok)
}

func TestBrokerQueueLimit(t *testing.T) {
	b, desk, _ := startBroker(t, 1)

	first := request(b, context.Background(), &Ticket{ID: "a"})
	waitCurrent(t, desk, "a")
	second := request(b, context.Background(), &Ticket{ID: "b"})
	require.Eventually(t, func() bool { return len(b.Pending()) == 2 }, time.Second, 5*time.Millisecond)

	_, err := b.Request(context.Background(), &Ticket{ID: "c"})
	assert.ErrorIs(t, err, errno.ErrAlreadyProcessing)

	require.NoError(t, desk.Decide("a", Decision{Approved: true}))
	require.NoError(t, (<-first).err)
	waitCurrent(t, desk, "b")
	require.NoError(t, desk.Decide("b", Decision{Approved: true}))
	require.NoError(t, (<-second).err)
}
