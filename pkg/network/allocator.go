package network

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/cuemby/podlease/pkg/metrics"
)

// ErrNoPort is returned when no port in the configured range can be
// allocated.
var ErrNoPort = fmt.Errorf("no port available in range")

// Allocator hands out host ports for workload leases. One
// Allocator per Provider process, covering a single [Start, End] range.
type Allocator struct {
	start, end int

	mu          sync.Mutex
	allocatedBy map[int]bool // ports this Allocator has handed out and not yet released

	// probeBind is overridable in tests so port-probe behavior can be
	// deterministic without binding real sockets.
	probeBind func(port int) bool
	// sleep is overridable in tests to skip the TOCTOU backoff delay.
	sleep func(time.Duration)
}

// NewAllocator builds an Allocator over the inclusive range [start, end].
func NewAllocator(start, end int) *Allocator {
	a := &Allocator{
		start:       start,
		end:         end,
		allocatedBy: make(map[int]bool),
		sleep:       time.Sleep,
	}
	a.probeBind = a.defaultProbeBind
	return a
}

func (a *Allocator) defaultProbeBind(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

// Allocate returns a free host port, or ErrNoPort if the range is
// exhausted. Safe for concurrent use.
func (a *Allocator) Allocate() (int, error) {
	candidates := a.candidateOrder()

	for _, p := range candidates {
		if a.tryCommit(p) {
			metrics.PortAllocationsTotal.Inc()
			return p, nil
		}
	}

	// Bypass scan: walk the whole range once more in ascending order
	// with the same bind probe. tryCommit still skips ports this
	// Allocator has already handed out.
	for p := a.start; p <= a.end; p++ {
		if a.tryCommit(p) {
			metrics.PortAllocationsTotal.Inc()
			return p, nil
		}
	}

	metrics.PortAllocationFailuresTotal.Inc()
	return 0, ErrNoPort
}

// tryCommit probes a single candidate and, if the bind succeeds, commits
// it under the exclusive lock after a randomized sub-10ms delay.
func (a *Allocator) tryCommit(p int) bool {
	a.mu.Lock()
	alreadyOurs := a.allocatedBy[p]
	a.mu.Unlock()
	if alreadyOurs {
		return false
	}

	if !a.probeBind(p) {
		return false
	}

	// Narrow the TOCTOU window between the probe above and the commit
	// below: two concurrent allocators may both have just observed p as
	// free.
	a.sleep(time.Duration(rand.Intn(10)) * time.Millisecond)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.allocatedBy[p] {
		return false
	}
	a.allocatedBy[p] = true
	return true
}

// candidateOrder returns every port in [start, end] not already
// allocated by this Allocator, in a pseudo-random order.
func (a *Allocator) candidateOrder() []int {
	a.mu.Lock()
	var candidates []int
	for p := a.start; p <= a.end; p++ {
		if !a.allocatedBy[p] {
			candidates = append(candidates, p)
		}
	}
	a.mu.Unlock()

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	return candidates
}

// Release returns a port to the available pool. Callers MUST only call
// this once the Backend has confirmed the owning workload is gone.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocatedBy, port)
}

// Available returns the number of ports in [start, end] this Allocator
// has not currently handed out, for metrics reporting.
func (a *Allocator) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return (a.end - a.start + 1) - len(a.allocatedBy)
}
