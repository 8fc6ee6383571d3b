//go:build test

package predict

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"
	"testing"
)

var typedLines = []string{
	"v", "va", "val", "vali", "validate", "validateE",
	"function check(a, b) {", "const user =", "if (ready) {",
	"for", "users.", "return", "class Cart extends Base {",
}

// learnedEngine returns an engine holding a spread of function patterns.
func learnedEngine(t *testing.T) *Engine {
	t.Helper()
	e := newEngine(t, emailFn, phoneFn)
	for i := range 50 {
		learnFn(e.store, fmt.Sprintf("function helper%d(x) {\n  const y = x * %d;\n  return y + %d;\n}", i, i, i))
	}
	return e
}

func heapDelta(baseline runtime.MemStats) int64 {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return int64(m.Alloc) - int64(baseline.Alloc)
}

func TestMemoryLeakBasic(t *testing.T) {
	for _, iterations := range []int{100, 500, 1000} {
		t.Run(fmt.Sprintf("iterations_%d", iterations), func(t *testing.T) {
			e := learnedEngine(t)

			var baseline runtime.MemStats
			runtime.GC()
			runtime.ReadMemStats(&baseline)
			baselineGoroutines := runtime.NumGoroutine()

			for range iterations {
				for _, line := range typedLines {
					_ = e.Predict(Request{Line: line, Language: "javascript"})
					_ = e.Complete(Request{Line: line, Language: "javascript"})
				}
			}

			totalOps := iterations * len(typedLines)
			memPerOp := float64(heapDelta(baseline)) / float64(totalOps)
			goroutineDelta := runtime.NumGoroutine() - baselineGoroutines
			t.Logf("iterations=%d ops=%d mem_per_op=%.2f goroutine_delta=%d",
				iterations, totalOps, memPerOp, goroutineDelta)

			if memPerOp > 1000 {
				t.Errorf("excessive memory usage per operation: %.2f bytes", memPerOp)
			}
			if goroutineDelta > 2 {
				t.Errorf("goroutine leak detected: %d goroutines leaked", goroutineDelta)
			}
		})
	}
}

func TestMemoryLeakConcurrent(t *testing.T) {
	configs := []struct {
		workers             int
		iterationsPerWorker int
	}{
		{workers: 1, iterationsPerWorker: 400},
		{workers: 4, iterationsPerWorker: 100},
		{workers: 8, iterationsPerWorker: 50},
	}

	for _, cfg := range configs {
		t.Run(fmt.Sprintf("workers_%d_iter_%d", cfg.workers, cfg.iterationsPerWorker), func(t *testing.T) {
			e := learnedEngine(t)
			doc := "function validatePhone(phone) {\n  const regex = /^\\d{10}$/;\n  return regex.test(phone);\n}"

			var baseline runtime.MemStats
			runtime.GC()
			runtime.ReadMemStats(&baseline)
			baselineGoroutines := runtime.NumGoroutine()

			var wg sync.WaitGroup
			for range cfg.workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range cfg.iterationsPerWorker {
						for _, line := range typedLines {
							_ = e.Complete(Request{Line: line, Context: doc, Language: "javascript"})
						}
						_ = e.Hover(t.Context(), doc, "javascript", 1)
					}
				}()
			}
			wg.Wait()

			totalOps := cfg.workers * cfg.iterationsPerWorker * (len(typedLines) + 1)
			memPerOp := float64(heapDelta(baseline)) / float64(totalOps)
			goroutineDelta := runtime.NumGoroutine() - baselineGoroutines
			t.Logf("workers=%d ops=%d mem_per_op=%.2f goroutine_delta=%d",
				cfg.workers, totalOps, memPerOp, goroutineDelta)

			prof, err := os.Create(filepath.Join(t.TempDir(), "concurrent_memory.prof"))
			if err != nil {
				t.Fatalf("profile file creation failed: %v", err)
			}
			defer prof.Close()
			if err := pprof.WriteHeapProfile(prof); err != nil {
				t.Errorf("heap profile write failed: %v", err)
			}

			if memPerOp > 1000 {
				t.Errorf("excessive memory usage per operation: %.2f bytes", memPerOp)
			}
			if goroutineDelta > 3 {
				t.Errorf("goroutine leak detected: %d goroutines leaked", goroutineDelta)
			}
		})
	}
}
