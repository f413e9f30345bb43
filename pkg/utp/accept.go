package utp

import "github.com/eapache/queue"

// acceptQueue holds accepted endpoints not yet claimed by the application, in
// arrival order.
type acceptQueue struct{ q *queue.Queue }

func (a *acceptQueue) push(e *Endpoint) {
	if a.q == nil {
		a.q = queue.New()
	}

	a.q.Add(e)
}

func (a *acceptQueue) pop() *Endpoint {
	if a.Len() == 0 {
		return nil
	}

	e := a.q.Peek().(*Endpoint)
	a.q.Remove()
	return e
}

func (a *acceptQueue) Len() int {
	if a.q == nil {
		return 0
	}

	return a.q.Length()
}
