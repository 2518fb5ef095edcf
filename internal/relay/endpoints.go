package relay

import (
	"fmt"
	"strconv"
	"sync"
)

// Endpoints is the set of interchangeable relay bases the user picks from.
type Endpoints struct {
	mu      sync.RWMutex
	list    []string
	current int
}

// NewEndpoints selects def, or the first entry when def is empty.
func NewEndpoints(list []string, def string) (*Endpoints, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("no relay endpoints configured")
	}

	e := &Endpoints{list: append([]string(nil), list...)}
	if def != "" {
		if _, err := e.Select(def); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Endpoints) List() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.list...)
}

func (e *Endpoints) Current() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.list[e.current]
}

// Resolve accepts a 1-based index into List or one of its exact URLs.
func (e *Endpoints) Resolve(v string) (string, error) {
	i, err := e.index(v)
	if err != nil {
		return "", err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.list[i], nil
}

// Select makes the endpoint named by v the current one.
func (e *Endpoints) Select(v string) (string, error) {
	i, err := e.index(v)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = i
	return e.list[i], nil
}

func (e *Endpoints) index(v string) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if n, err := strconv.Atoi(v); err == nil {
		if n < 1 || n > len(e.list) {
			return 0, fmt.Errorf("endpoint index %d out of range 1..%d", n, len(e.list))
		}
		return n - 1, nil
	}
	for i, u := range e.list {
		if u == v {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown relay endpoint %q", v)
}
