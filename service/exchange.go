package service

import (
	"errors"
	"fmt"
	"sort"
)

// Exchange routes calls to independent markets by name.
type Exchange struct {
	markets map[string]*Market
	names   []string
}

func NewExchange(markets ...*Market) (*Exchange, error) {
	e := &Exchange{markets: make(map[string]*Market, len(markets))}
	for _, m := range markets {
		if _, dup := e.markets[m.Name()]; dup {
			return nil, fmt.Errorf("duplicate market %s", m.Name())
		}
		e.markets[m.Name()] = m
		e.names = append(e.names, m.Name())
	}
	sort.Strings(e.names)
	return e, nil
}

func (e *Exchange) Market(name string) (*Market, error) {
	m, ok := e.markets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMarket, name)
	}
	return m, nil
}

// Markets returns the markets ordered by name.
func (e *Exchange) Markets() []*Market {
	out := make([]*Market, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, e.markets[name])
	}
	return out
}

// Recover recovers every market.
func (e *Exchange) Recover() error {
	for _, m := range e.Markets() {
		if err := m.Recover(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the market journals.
func (e *Exchange) Close() error {
	var errs []error
	for _, m := range e.Markets() {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
