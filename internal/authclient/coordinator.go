package authclient

import "sync"

// refreshResult is the outcome of one refresh, shared by every request waiting on it.
type refreshResult struct {
	token string
	err   error
}

// refreshTurn tells a request how to proceed after a 401.
type refreshTurn struct {
	// leader is set for the request that has to perform the refresh.
	leader bool
	// queued is set when the request waits for an in-flight refresh.
	queued bool
	// settled is set when the outcome is already known.
	settled *refreshResult
}

// refreshCoordinator is the single-slot gate plus wait list of the refresh flow.
// At most one refresh is in flight; later requests queue until it settles.
type refreshCoordinator struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []func(refreshResult)

	// Outcome of the last settled refresh and the token it replaced. Requests
	// still carrying that token reuse the outcome instead of refreshing again.
	lastStale string
	last      *refreshResult
}

// join registers a request that got a 401 while using the stale token.
// current returns the token the transport would attach right now.
// When a refresh is in flight, resume is queued and called once it settles.
func (c *refreshCoordinator) join(stale string, current func() string, resume func(refreshResult)) refreshTurn {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		c.waiters = append(c.waiters, resume)
		return refreshTurn{queued: true}
	}

	if cur := current(); cur != "" && cur != stale {
		return refreshTurn{settled: &refreshResult{token: cur}}
	}
	if c.last != nil && c.lastStale == stale {
		res := *c.last
		return refreshTurn{settled: &res}
	}

	c.inFlight = true
	return refreshTurn{leader: true}
}

// settle records the outcome, clears the gate and resumes waiters in FIFO order.
func (c *refreshCoordinator) settle(stale string, res refreshResult) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.inFlight = false
	c.lastStale, c.last = stale, &res
	c.mu.Unlock()

	for _, resume := range waiters {
		resume(res)
	}
}

// reset forgets the last outcome. Called when a new session starts or ends.
func (c *refreshCoordinator) reset() {
	c.mu.Lock()
	c.lastStale, c.last = "", nil
	c.mu.Unlock()
}

func (c *refreshCoordinator) refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *refreshCoordinator) queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
