// Package cache keeps the question bank between check-ins so a restarted
// session does not wait on GET /questions.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"insulink/log"
	"insulink/questionnaire"
)

// BankCache stores one question bank. Get reports ok=false on a miss or
// after expiry.
type BankCache interface {
	Get(ctx context.Context) (bank questionnaire.Bank, ok bool, err error)
	Set(ctx context.Context, bank questionnaire.Bank) error
}

// Memory is a process-local BankCache.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	bank    questionnaire.Bank
	expires time.Time
}

// NewMemory returns a cache whose entries live for ttl (0 = forever).
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now}
}

func (m *Memory) Get(context.Context) (questionnaire.Bank, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bank == nil {
		return nil, false, nil
	}
	if m.ttl > 0 && !m.now().Before(m.expires) {
		m.bank = nil
		return nil, false, nil
	}
	return cloneBank(m.bank), true, nil
}

func (m *Memory) Set(_ context.Context, bank questionnaire.Bank) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bank = cloneBank(bank)
	m.expires = m.now().Add(m.ttl)
	return nil
}

// CachedSource serves the bank from cache and falls back to the wrapped
// source on a miss. Concurrent misses share one fetch.
type CachedSource struct {
	src   questionnaire.BankSource
	cache BankCache
	sf    singleflight.Group
}

func NewCachedSource(src questionnaire.BankSource, cache BankCache) *CachedSource {
	return &CachedSource{src: src, cache: cache}
}

func (c *CachedSource) Questions(ctx context.Context) (questionnaire.Bank, error) {
	if bank, ok := c.lookup(ctx); ok {
		return bank, nil
	}

	result, err, _ := c.sf.Do("bank", func() (any, error) {
		// Re-check in case another caller filled it.
		if bank, ok := c.lookup(ctx); ok {
			return bank, nil
		}
		bank, err := c.src.Questions(ctx)
		if err != nil {
			return nil, err
		}
		if err := bank.Validate(); err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, bank); err != nil {
			log.Warnf("bank cache set failed: %v", err)
		}
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneBank(result.(questionnaire.Bank)), nil
}

// lookup treats cache errors as misses.
func (c *CachedSource) lookup(ctx context.Context) (questionnaire.Bank, bool) {
	bank, ok, err := c.cache.Get(ctx)
	if err != nil {
		log.Warnf("bank cache get failed: %v", err)
		return nil, false
	}
	if !ok || bank.Validate() != nil {
		return nil, false
	}
	return bank, true
}

func cloneBank(b questionnaire.Bank) questionnaire.Bank {
	out := make(questionnaire.Bank, len(b))
	for c, qs := range b {
		out[c] = append([]string(nil), qs...)
	}
	return out
}
