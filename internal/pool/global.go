package pool

import "sync"

// globalMu and globalPool back GetOrCreate: an explicit, mutex-guarded
// process-scoped registry rather than an implicit construct-on-import
// singleton, per the design notes' guidance on modeling get_or_create.
var (
	globalMu   sync.Mutex
	globalPool *Pool
)

// GetOrCreate implements §4.6's get_or_create(size): returns the
// existing process-wide pool if its size already matches, resizes and
// returns it if a different size was requested, or creates one fresh if
// none exists yet (or the previous one was terminated).
func GetOrCreate(size int, cfg Config) (*Pool, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool != nil && globalPool.State() != StateTerminated {
		if globalPool.TargetSize() == size {
			return globalPool, nil
		}
		if err := globalPool.Resize(size); err != nil {
			return nil, err
		}
		return globalPool, nil
	}

	cfg.Size = size
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	globalPool = p
	return p, nil
}

// resetGlobalForTest clears the process-scoped singleton. Exported only
// within the package's test files via a lowercase name — tests in this
// package that exercise GetOrCreate call it to avoid cross-test leakage.
func resetGlobalForTest() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalPool = nil
}
