package approval

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"wallet-provider/internal/notify"
	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/logger"
	"wallet-provider/pkg/monitor"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errBrokerStopped = errno.ErrInternal.WithMessage("approval broker stopped")

// Broker 审批的单飞通道：同一时刻只有一个 Ticket 展示给用户，其余排队
type Broker struct {
	surface  Surface
	notifier notify.Notifier
	limit    int

	mu      sync.Mutex
	queue   []*waiter
	current *waiter
	wake    chan struct{}
}

type waiter struct {
	ticket *Ticket
	ctx    context.Context
	done   chan result
}

type result struct {
	payload json.RawMessage
	err     error
}

// NewBroker limit 为排队上限，<=0 表示不限制
func NewBroker(surface Surface, notifier notify.Notifier, limit int) *Broker {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Broker{
		surface:  surface,
		notifier: notifier,
		limit:    limit,
		wake:     make(chan struct{}, 1),
	}
}

type options struct {
	unshift bool
}

type Option func(*options)

// Unshift 插到队首。用于已在进行中的审批的后续步骤 (例如硬件确认)
func Unshift() Option {
	return func(o *options) { o.unshift = true }
}

// Request 提交 Ticket 并等待结果。拒绝或关闭返回 ErrUserRejected
func (b *Broker) Request(ctx context.Context, t *Ticket, opts ...Option) (json.RawMessage, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = StatusPending
	t.CreatedAt = time.Now().UTC()

	w := &waiter{ticket: t, ctx: ctx, done: make(chan result, 1)}

	b.mu.Lock()
	if b.limit > 0 && len(b.queue) >= b.limit {
		b.mu.Unlock()
		return nil, errno.ErrAlreadyProcessing.WithMessage("too many pending approvals")
	}
	if o.unshift {
		b.queue = append([]*waiter{w}, b.queue...)
	} else {
		b.queue = append(b.queue, w)
	}
	monitor.ApprovalQueueDepth.Set(float64(len(b.queue)))
	b.mu.Unlock()

	logger.Debug("approval queued", zap.String("id", t.ID), zap.String("kind", string(t.Kind)),
		zap.String("origin", t.Origin), zap.Bool("unshift", o.unshift))
	b.signal()

	select {
	case r := <-w.done:
		return r.payload, r.err
	case <-ctx.Done():
		if b.remove(w) {
			b.settle(w, nil, ctx.Err(), "")
		}
		// 正在展示的 Ticket 由 worker 负责 Dismiss 并回传结果
		r := <-w.done
		return r.payload, r.err
	}
}

// Run 单 worker 循环，阻塞直到 ctx 取消
func (b *Broker) Run(ctx context.Context) {
	logger.Info("approval broker started")
	for {
		w := b.next(ctx)
		if w == nil {
			b.drain()
			logger.Info("approval broker stopped")
			return
		}
		b.present(ctx, w)
	}
}

// Pending 返回正在展示和排队中的 Ticket 快照，正在展示的在最前
func (b *Broker) Pending() []Ticket {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Ticket, 0, len(b.queue)+1)
	if b.current != nil {
		out = append(out, *b.current.ticket)
	}
	for _, w := range b.queue {
		out = append(out, *w.ticket)
	}
	return out
}

func (b *Broker) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Broker) next(ctx context.Context) *waiter {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			w := b.queue[0]
			b.queue = b.queue[1:]
			b.current = w
			monitor.ApprovalQueueDepth.Set(float64(len(b.queue)))
			b.mu.Unlock()
			return w
		}
		b.mu.Unlock()

		select {
		case <-b.wake:
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *Broker) present(ctx context.Context, w *waiter) {
	t := w.ticket
	defer func() {
		b.mu.Lock()
		b.current = nil
		b.mu.Unlock()
	}()

	// 排队期间请求方已经放弃
	if err := w.ctx.Err(); err != nil {
		b.settle(w, nil, err, "")
		return
	}

	pctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(w.ctx, cancel)

	b.notifier.Notify(ctx, notify.New(notify.ApprovalRequired, t.Origin, map[string]interface{}{
		"id":   t.ID,
		"kind": t.Kind,
	}))

	d, err := b.surface.Present(pctx, t)
	stop()
	cancel()

	switch {
	case err == nil && d.Approved:
		b.settle(w, d.Payload, nil, "")
	case err == nil:
		rejected := errno.ErrUserRejected
		if d.Reason != "" {
			rejected = rejected.WithMessage(d.Reason)
		}
		b.settle(w, nil, rejected, d.Reason)
	case errors.Is(err, ErrDismissed):
		b.settle(w, nil, errno.ErrUserRejected, "dismissed")
	case pctx.Err() != nil:
		b.surface.Dismiss(t.ID)
		if w.ctx.Err() != nil {
			b.settle(w, nil, w.ctx.Err(), "canceled")
		} else {
			b.settle(w, nil, errBrokerStopped, "canceled")
		}
	default:
		logger.Error("approval surface failed", zap.String("id", t.ID), zap.Error(err))
		b.settle(w, nil, err, err.Error())
	}
}

func (b *Broker) remove(w *waiter) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, q := range b.queue {
		if q == w {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			monitor.ApprovalQueueDepth.Set(float64(len(b.queue)))
			return true
		}
	}
	return false
}

func (b *Broker) drain() {
	b.mu.Lock()
	queued := b.queue
	b.queue = nil
	monitor.ApprovalQueueDepth.Set(0)
	b.mu.Unlock()

	for _, w := range queued {
		b.settle(w, nil, errBrokerStopped, "canceled")
	}
}

func (b *Broker) settle(w *waiter, payload json.RawMessage, err error, reason string) {
	t := w.ticket
	outcome := "approved"
	if err != nil {
		outcome = "rejected"
		if !errors.Is(err, errno.ErrUserRejected) {
			outcome = "canceled"
		}
	}

	b.mu.Lock()
	if err != nil {
		t.Status = StatusRejected
		t.Reason = reason
	} else {
		t.Status = StatusResolved
		t.Payload = payload
	}
	b.mu.Unlock()

	monitor.ApprovalsTotal.WithLabelValues(string(t.Kind), outcome).Inc()
	monitor.ObserveApprovalWait(string(t.Kind), outcome, t.CreatedAt)
	b.notifier.Notify(context.Background(), notify.New(notify.ApprovalResolved, t.Origin, map[string]interface{}{
		"id":      t.ID,
		"kind":    t.Kind,
		"outcome": outcome,
	}))
	logger.Info("approval settled", zap.String("id", t.ID), zap.String("kind", string(t.Kind)),
		zap.String("origin", t.Origin), zap.String("outcome", outcome))

	w.done <- result{payload: payload, err: err}
}
