package model

import (
	"encoding/json"
	"net/url"
	"sort"
	"time"
)

// RecordStatus is the final state of an identity at the end of a crawl.
type RecordStatus string

const (
	// StatusFetched means the identity was fetched successfully.
	StatusFetched RecordStatus = "fetched"
	// StatusPending means the identity was still queued when the crawl stopped.
	StatusPending RecordStatus = "pending"
	// StatusDropped means the identity exhausted its error budget.
	StatusDropped RecordStatus = "dropped"
)

// Record is one identity known to the frontier.
type Record struct {
	Address      Address       `json:"address"`
	Status       RecordStatus  `json:"status"`
	Fingerprints []Fingerprint `json:"fingerprints,omitempty"`
	Errors       int           `json:"errors,omitempty"`
}

// Inventory is the outcome of one crawl run.
type Inventory struct {
	Seeds      []string  `json:"seeds"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Stopped is true when the crawl was stopped before the frontier drained.
	Stopped bool     `json:"stopped"`
	Records []Record `json:"records"`
}

// Sort orders records by pure form.
func (inv *Inventory) Sort() {
	sort.Slice(inv.Records, func(i, j int) bool {
		return inv.Records[i].Address.Pure() < inv.Records[j].Address.Pure()
	})
}

// Count returns the number of records in the given status.
func (inv *Inventory) Count(status RecordStatus) int {
	n := 0
	for _, r := range inv.Records {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Duration returns how long the crawl ran.
func (inv *Inventory) Duration() time.Duration {
	return inv.FinishedAt.Sub(inv.StartedAt)
}

// HostCounts returns the number of records per host.
func (inv *Inventory) HostCounts() map[string]int {
	counts := make(map[string]int)
	for _, r := range inv.Records {
		host := "(unknown)"
		if u, err := url.Parse(r.Address.Pure()); err == nil && u.Host != "" {
			host = u.Host
		}
		counts[host]++
	}
	return counts
}

// addressJSON is the wire form of Address.
type addressJSON struct {
	URL     string     `json:"url"`
	Anchors []string   `json:"anchors,omitempty"`
	Params  []ParamSet `json:"params,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(addressJSON{URL: a.pure, Anchors: a.anchors, Params: a.params})
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Address) UnmarshalJSON(data []byte) error {
	var aj addressJSON
	if err := json.Unmarshal(data, &aj); err != nil {
		return err
	}
	a.pure = aj.URL
	a.anchors = aj.Anchors
	a.params = aj.Params
	return nil
}
