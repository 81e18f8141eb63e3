package approval

import (
	"context"
	"sync"

	"wallet-provider/pkg/errno"
)

var (
	ErrTicketNotFound = errno.ErrNotFound.WithMessage("approval not found")
	errDeskBusy       = errno.ErrInternal.WithMessage("approval desk busy")
)

// Desk 是给 HTTP / CLI 使用的 Surface：UI 轮询 Current，再通过 Decide 作答
type Desk struct {
	mu   sync.Mutex
	item *deskItem
}

type deskItem struct {
	ticket    Ticket
	decision  chan Decision
	dismissed chan struct{}
	once      sync.Once
}

func NewDesk() *Desk {
	return &Desk{}
}

func (d *Desk) Present(ctx context.Context, t *Ticket) (Decision, error) {
	item := &deskItem{
		ticket:    *t,
		decision:  make(chan Decision, 1),
		dismissed: make(chan struct{}),
	}

	d.mu.Lock()
	if d.item != nil {
		d.mu.Unlock()
		return Decision{}, errDeskBusy
	}
	d.item = item
	d.mu.Unlock()

	defer d.clear(item)

	select {
	case dec := <-item.decision:
		return dec, nil
	case <-item.dismissed:
		return Decision{}, ErrDismissed
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

func (d *Desk) Dismiss(id string) {
	d.mu.Lock()
	item := d.item
	d.mu.Unlock()
	if item != nil && item.ticket.ID == id {
		item.once.Do(func() { close(item.dismissed) })
	}
}

// Current 当前展示中的 Ticket
func (d *Desk) Current() (Ticket, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.item == nil {
		return Ticket{}, false
	}
	return d.item.ticket, true
}

// Decide 对当前 Ticket 作答；id 不是当前 Ticket 时返回 ErrTicketNotFound
func (d *Desk) Decide(id string, dec Decision) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.item == nil || d.item.ticket.ID != id {
		return ErrTicketNotFound
	}
	d.item.decision <- dec
	// 已作答的 Ticket 不再对 UI 可见
	d.item = nil
	return nil
}

func (d *Desk) clear(item *deskItem) {
	d.mu.Lock()
	if d.item == item {
		d.item = nil
	}
	d.mu.Unlock()
}
