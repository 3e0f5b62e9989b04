package frontier

import (
	"slices"
	"sync"

	"github.com/nao1215/scopecrawl/internal/model"
)

// DefaultMaxRetries is the number of consecutive failed fetches after which an
// address is dropped.
const DefaultMaxRetries = 3

// Frontier owns all mutable crawl state: identities waiting to be fetched,
// identities already fetched with the fingerprints seen for them, and
// consecutive-failure counts. Every collection is keyed by pure form.
//
// All operations take one mutex for the whole read-decide-write sequence, so
// no key is ever in two collections at once. An address handed out by
// ClaimNext is held in flight until the worker reports back; sightings in the
// meantime are merged into it.
type Frontier struct {
	mu         sync.Mutex
	maxRetries int

	pending  map[string]model.Address
	inFlight map[string]*flight
	fetched  map[string]*fetchedEntry
	errors   map[string]int
	dropped  map[string]model.Address
}

// flight is an identity held by a worker. claimed is the copy handed out;
// sightings collects only what was offered after the claim, so releasing it
// never counts the claimed variants twice.
type flight struct {
	claimed   model.Address
	sightings []model.Address
}

// mergeInto folds the sightings into addr.
func (fl *flight) mergeInto(addr *model.Address) {
	for _, seen := range fl.sightings {
		_ = addr.Merge(seen) //nolint:errcheck // same key, same identity
	}
}

type fetchedEntry struct {
	addr         model.Address
	fingerprints []model.Fingerprint
}

// New creates an empty Frontier. A non-positive maxRetries uses DefaultMaxRetries.
func New(maxRetries int) *Frontier {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Frontier{
		maxRetries: maxRetries,
		pending:    make(map[string]model.Address),
		inFlight:   make(map[string]*flight),
		fetched:    make(map[string]*fetchedEntry),
		errors:     make(map[string]int),
		dropped:    make(map[string]model.Address),
	}
}

// Seed queues the initial addresses. Seeds are trusted and skip scope checks.
// Zero addresses are ignored and repeated identities are merged.
func (f *Frontier) Seed(addrs ...model.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, addr := range addrs {
		if addr.IsZero() {
			continue
		}
		f.offerLocked(addr)
	}
}

// ClaimNext removes and returns one pending address. No order is promised.
// ok is false when nothing is pending.
func (f *Frontier) ClaimNext() (addr model.Address, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for key, a := range f.pending {
		delete(f.pending, key)
		f.inFlight[key] = &flight{claimed: a.Clone()}
		return a, true
	}
	return model.Address{}, false
}

// RecordSuccess registers fp for addr's identity and resets its failure count.
// It returns false when the identity already has an identical fingerprint: the
// content is a duplicate already indexed under another parameterization and the
// caller must not publish the page's links. A pending re-sighting of the same
// identity is absorbed into the fetched record.
func (f *Frontier) RecordSuccess(addr model.Address, fp model.Fingerprint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := addr.Pure()
	delete(f.errors, key)
	f.release(&addr)

	if queued, ok := f.pending[key]; ok {
		_ = addr.Merge(queued) //nolint:errcheck // same key, same identity
		delete(f.pending, key)
	}

	entry, ok := f.fetched[key]
	if !ok {
		f.fetched[key] = &fetchedEntry{addr: addr.Clone(), fingerprints: []model.Fingerprint{fp}}
		return true
	}

	_ = entry.addr.Merge(addr) //nolint:errcheck // same key, same identity
	if slices.Contains(entry.fingerprints, fp) {
		return false
	}
	entry.fingerprints = append(entry.fingerprints, fp)
	return true
}

// RecordFailure counts a failed fetch of addr. While the count is below the
// retry budget the address is queued again and true is returned; once the budget
// is spent it is dropped for the rest of the run. An identity fetched meanwhile
// by another worker is not queued again.
func (f *Frontier) RecordFailure(addr model.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := addr.Pure()
	f.release(&addr)
	if entry, ok := f.fetched[key]; ok {
		_ = entry.addr.Merge(addr) //nolint:errcheck // same key, same identity
		return false
	}

	f.errors[key]++
	if f.errors[key] < f.maxRetries {
		f.offerLocked(addr)
		return true
	}

	if queued, ok := f.pending[key]; ok {
		_ = addr.Merge(queued) //nolint:errcheck // same key, same identity
		delete(f.pending, key)
	}
	if prev, ok := f.dropped[key]; ok {
		_ = prev.Merge(addr) //nolint:errcheck // same key, same identity
		addr = prev
	}
	f.dropped[key] = addr.Clone()
	return false
}

// Offer adds a newly discovered address. If its identity is already known
// (pending, in flight, fetched or dropped) the variant data is merged into the existing
// record and false is returned. Otherwise it is queued and true is returned;
// the caller reports it as a discovery.
func (f *Frontier) Offer(addr model.Address) bool {
	if addr.IsZero() {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.offerLocked(addr)
}

// release ends the in-flight hold on addr's identity and folds the sightings
// collected meanwhile into addr. The claimed variants are already in addr.
func (f *Frontier) release(addr *model.Address) {
	key := addr.Pure()
	held, ok := f.inFlight[key]
	if !ok {
		return
	}
	delete(f.inFlight, key)
	held.mergeInto(addr)
}

func (f *Frontier) offerLocked(addr model.Address) bool {
	key := addr.Pure()

	if held, ok := f.inFlight[key]; ok {
		held.sightings = append(held.sightings, addr.Clone())
		return false
	}

	if queued, ok := f.pending[key]; ok {
		_ = queued.Merge(addr) //nolint:errcheck // same key, same identity
		f.pending[key] = queued
		return false
	}
	if entry, ok := f.fetched[key]; ok {
		_ = entry.addr.Merge(addr) //nolint:errcheck // same key, same identity
		return false
	}
	if gone, ok := f.dropped[key]; ok {
		_ = gone.Merge(addr) //nolint:errcheck // same key, same identity
		f.dropped[key] = gone
		return false
	}

	f.pending[key] = addr.Clone()
	return true
}

// IsQuiescent reports whether nothing is pending and inFlight, the number of
// addresses currently held by workers, is zero.
func (f *Frontier) IsQuiescent(inFlight int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.pending) == 0 && inFlight == 0
}

// Stats is a point-in-time count of the frontier collections.
type Stats struct {
	Pending  int
	InFlight int
	Fetched  int
	Dropped  int
}

// Stats returns the current collection sizes.
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Stats{
		Pending:  len(f.pending),
		InFlight: len(f.inFlight),
		Fetched:  len(f.fetched),
		Dropped:  len(f.dropped),
	}
}

// Snapshot returns a copy of every known identity with its final state.
// Addresses in flight at the time of the call are reported as pending.
func (f *Frontier) Snapshot() []model.Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	records := make([]model.Record, 0, len(f.pending)+len(f.inFlight)+len(f.fetched)+len(f.dropped))
	for _, entry := range f.fetched {
		records = append(records, model.Record{
			Address:      entry.addr.Clone(),
			Status:       model.StatusFetched,
			Fingerprints: slices.Clone(entry.fingerprints),
		})
	}
	for key, held := range f.inFlight {
		addr := held.claimed.Clone()
		held.mergeInto(&addr)
		records = append(records, model.Record{
			Address: addr,
			Status:  model.StatusPending,
			Errors:  f.errors[key],
		})
	}
	for key, addr := range f.pending {
		records = append(records, model.Record{
			Address: addr.Clone(),
			Status:  model.StatusPending,
			Errors:  f.errors[key],
		})
	}
	for key, addr := range f.dropped {
		records = append(records, model.Record{
			Address: addr.Clone(),
			Status:  model.StatusDropped,
			Errors:  f.errors[key],
		})
	}
	return records
}
