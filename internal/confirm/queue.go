// Package confirm holds the orders waiting for an operator's yes/no.
//
// The orchestrator calls Confirm and blocks; whatever surface shows the
// prompt (console, local API) lists Pending and answers with Resolve.
package confirm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrylevesque/scanfulfill/internal/models"
)

var ErrUnknownPrompt = errors.New("confirm: no pending prompt with that id")

// Prompt is one open question to the operator.
type Prompt struct {
	ID        string          `json:"id"`
	Order     models.OrderRef `json:"order"`
	CreatedAt time.Time       `json:"created_at"`
}

type entry struct {
	prompt Prompt
	done   chan models.Verdict
}

type Queue struct {
	now func() time.Time

	mu          sync.Mutex
	pending     map[string]*entry
	order       []string
	subscribers map[int]chan Prompt
	nextSub     int
}

func NewQueue() *Queue {
	return &Queue{
		now:         time.Now,
		pending:     make(map[string]*entry),
		subscribers: make(map[int]chan Prompt),
	}
}

// Confirm shows order to the operator and waits for the verdict. A
// cancelled ctx withdraws the prompt and counts as cancel.
func (q *Queue) Confirm(ctx context.Context, order models.OrderRef) models.Verdict {
	if ctx.Err() != nil {
		return models.VerdictCancel
	}
	e := &entry{
		prompt: Prompt{ID: uuid.NewString(), Order: order, CreatedAt: q.now()},
		done:   make(chan models.Verdict, 1),
	}

	q.mu.Lock()
	q.pending[e.prompt.ID] = e
	q.order = append(q.order, e.prompt.ID)
	for _, ch := range q.subscribers {
		select {
		case ch <- e.prompt:
		default:
		}
	}
	q.mu.Unlock()

	select {
	case v := <-e.done:
		return v
	case <-ctx.Done():
		q.mu.Lock()
		q.removeLocked(e.prompt.ID)
		q.mu.Unlock()
		// Resolve may have won the race.
		select {
		case v := <-e.done:
			return v
		default:
			return models.VerdictCancel
		}
	}
}

// Resolve answers the prompt with the given id.
func (q *Queue) Resolve(id string, v models.Verdict) error {
	q.mu.Lock()
	e, ok := q.pending[id]
	if ok {
		q.removeLocked(id)
	}
	q.mu.Unlock()
	if !ok {
		return ErrUnknownPrompt
	}
	e.done <- v
	return nil
}

// Pending returns the open prompts, oldest first.
func (q *Queue) Pending() []Prompt {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Prompt, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.pending[id].prompt)
	}
	return out
}

// Subscribe delivers each new prompt. A subscriber that falls behind
// misses prompts but can still find them through Pending.
func (q *Queue) Subscribe() (<-chan Prompt, func()) {
	ch := make(chan Prompt, 8)
	q.mu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subscribers[id] = ch
	q.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.subscribers, id)
			q.mu.Unlock()
			close(ch)
		})
	}
}

func (q *Queue) removeLocked(id string) {
	delete(q.pending, id)
	for i, v := range q.order {
		if v == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}
