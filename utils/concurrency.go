package utils

import (
	"context"
	"sort"
	"sync"
	"time"
)

// WorkerPool runs jobs on at most a fixed number of goroutines and keeps
// a minimum gap between two job starts.
type WorkerPool struct {
	slots chan struct{}
	wg    sync.WaitGroup

	mu       sync.Mutex
	gap      time.Duration
	nextSlot time.Time
}

// NewWorkerPool creates a pool of size workers whose jobs start at least
// rateLimitMs milliseconds apart.
func NewWorkerPool(size, rateLimitMs int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		slots: make(chan struct{}, size),
		gap:   time.Duration(rateLimitMs) * time.Millisecond,
	}
}

// Go schedules job. It blocks until a worker is free or ctx is done; jobs
// whose turn comes after cancellation are dropped without running.
func (p *WorkerPool) Go(ctx context.Context, job func(ctx context.Context)) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.slots
			p.wg.Done()
		}()
		if !p.waitTurn(ctx) {
			return
		}
		job(ctx)
	}()
}

// Wait blocks until every scheduled job has returned.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// waitTurn reserves the next start slot and sleeps until it arrives.
func (p *WorkerPool) waitTurn(ctx context.Context) bool {
	if p.gap <= 0 {
		return ctx.Err() == nil
	}

	p.mu.Lock()
	now := time.Now()
	start := p.nextSlot
	if start.Before(now) {
		start = now
	}
	p.nextSlot = start.Add(p.gap)
	p.mu.Unlock()

	delay := time.Until(start)
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// URLSet is a set of listing URLs safe for concurrent use.
type URLSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func NewURLSet() *URLSet {
	return &URLSet{urls: make(map[string]struct{})}
}

// Add reports whether url was not yet in the set.
func (s *URLSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(url)
}

// AddAll inserts urls and returns how many were new.
func (s *URLSet) AddAll(urls []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range urls {
		if s.insert(u) {
			n++
		}
	}
	return n
}

func (s *URLSet) insert(url string) bool {
	if _, ok := s.urls[url]; ok {
		return false
	}
	s.urls[url] = struct{}{}
	return true
}

func (s *URLSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

// Values returns the URLs in sorted order.
func (s *URLSet) Values() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.urls))
	for u := range s.urls {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
