package parallel

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// For splits [0, n) into contiguous chunks, runs fn on each chunk from its
// own goroutine and joins before returning.
func For(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// Try is the fallible variant of For. The join doubles as a phase barrier:
// every chunk has finished, successfully or not, before Try returns. A panic
// inside a chunk is captured and reported as an error instead of tearing down
// the process.
func Try(n int, fn func(start, end int) error) error {
	if n <= 0 {
		return nil
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		return runChunk(0, n, fn)
	}
	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		s, e := start, end
		g.Go(func() error {
			return runChunk(s, e, fn)
		})
	}
	return g.Wait()
}

func runChunk(start, end int, fn func(start, end int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic on [%d,%d): %v", start, end, r)
		}
	}()
	return fn(start, end)
}
