package svc

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Dedupe remembers message digests the service has already co-signed.
// It may report false positives, never false negatives.
type Dedupe struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func NewDedupe(capacity uint, falsePositive float64) *Dedupe {
	if capacity == 0 {
		capacity = 100000
	}
	if falsePositive <= 0 || falsePositive >= 1 {
		falsePositive = 0.0001
	}
	return &Dedupe{filter: bloom.NewWithEstimates(capacity, falsePositive)}
}

func (d *Dedupe) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filter.TestString(id)
}

func (d *Dedupe) Add(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter.AddString(id)
}
