package memory

import "sync"

// Pool is a typed object pool. Values are zeroed before they go back
// into the pool, so Get always returns a clean *T.
type Pool[T any] struct {
	p *sync.Pool
}

func NewPool[T any](ctor func() *T) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

// Put zeroes v and returns it to the pool. The caller must not keep
// any reference to v afterwards.
func (p *Pool[T]) Put(v *T) {
	if v == nil {
		return
	}
	var zero T
	*v = zero
	p.p.Put(v)
}
