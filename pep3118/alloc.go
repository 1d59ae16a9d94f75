package pep3118

import "sync"

// Allocator supplies the scratch storage that backs a view's shape and
// strides. Every successful Alloc is matched by exactly one Free, either
// when the export fails or when the view is released.
type Allocator interface {
	Alloc(words int) ([]int, error)
	Free(buf []int)
}

type heapAllocator struct{}

func (heapAllocator) Alloc(words int) ([]int, error) { return make([]int, words), nil }

func (heapAllocator) Free([]int) {}

// CountingAllocator is a heap allocator that tracks live allocations. It is
// useful for leak checks and for exercising allocation failures.
type CountingAllocator struct {
	// Limit caps the number of live allocations. Zero means unlimited.
	Limit int

	mu    sync.Mutex
	live  int
	total int
}

// Alloc returns a zeroed buffer of the given number of words, or
// ErrAllocationFailure when Limit live buffers already exist.
func (a *CountingAllocator) Alloc(words int) ([]int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Limit > 0 && a.live >= a.Limit {
		return nil, ErrAllocationFailure
	}
	a.live++
	a.total++
	return make([]int, words), nil
}

func (a *CountingAllocator) Free([]int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.live == 0 {
		panic("pep3118: free without matching alloc")
	}
	a.live--
}

// Live returns the number of allocations not yet freed.
func (a *CountingAllocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Total returns the number of successful allocations so far.
func (a *CountingAllocator) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}
