// Package symbolcache holds the in-memory price and factor store for the
// whole symbol universe. It is the single source of low-latency reads;
// misses fall back to persistent storage.
package symbolcache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	factorentity "risk_backend/internal/feature/factors/domain/entity"
	marketentity "risk_backend/internal/feature/marketdata/domain/entity"
)

// CachedSymbolData is one symbol's cached market data. Prices and exposures
// are ascending by date.
type CachedSymbolData struct {
	Symbol    string
	Prices    []marketentity.PricePoint
	Exposures []factorentity.FactorExposure
}

// PriceFor returns the symbol's price point on date, if cached.
func (d *CachedSymbolData) PriceFor(date time.Time) (marketentity.PricePoint, bool) {
	for i := len(d.Prices) - 1; i >= 0; i-- {
		if d.Prices[i].Date.Equal(date) {
			return d.Prices[i], true
		}
	}
	return marketentity.PricePoint{}, false
}

// FactorsFor returns the symbol's exposures on date, if cached.
func (d *CachedSymbolData) FactorsFor(date time.Time) factorentity.FactorSet {
	var out factorentity.FactorSet
	for _, e := range d.Exposures {
		if e.Date.Equal(date) {
			out = append(out, e)
		}
	}
	return out
}

// Loader reads cache contents from persistent storage.
type Loader interface {
	LoadSymbol(ctx context.Context, symbol string) (*CachedSymbolData, error)
	LoadAll(ctx context.Context) (map[string]*CachedSymbolData, error)
}

// entry is one symbol's slot. The slot pointer is stable within a generation;
// replacing a symbol's data is a single atomic store into its slot.
type entry struct {
	data atomic.Pointer[CachedSymbolData]
}

// generation is one immutable snapshot of the cache's key set. Readers hold
// at most one generation at a time, so a swap can never expose a mix of old
// and new key sets.
type generation struct {
	entries map[string]*entry
}

// SymbolCache serves lock-free reads from the current generation. RefreshAll
// builds a complete replacement off to the side and installs it with a single
// atomic pointer swap; per-symbol writes store into the symbol's slot and
// never touch the other entries.
type SymbolCache struct {
	gen    atomic.Pointer[generation]
	mu     sync.Mutex // serializes writers only; readers never take it
	loader Loader
	ready  atomic.Bool

	readyTimeout time.Duration

	// swapHook, when set, runs after the replacement generation is built
	// and before it is installed. Tests use it to observe swap atomicity.
	swapHook func()
}

// New creates an empty, not-yet-ready cache. readyTimeout bounds how long
// the process reports "warming" before it is treated as ready regardless of
// load completion (remaining symbols stay on storage fallback).
func New(loader Loader, readyTimeout time.Duration) *SymbolCache {
	if readyTimeout <= 0 {
		readyTimeout = 30 * time.Second
	}
	c := &SymbolCache{
		loader:       loader,
		readyTimeout: readyTimeout,
	}
	c.gen.Store(&generation{entries: map[string]*entry{}})
	return c
}

// IsReady reports whether the cache finished warming (or timed out waiting).
func (c *SymbolCache) IsReady() bool {
	return c.ready.Load()
}

// Len returns the number of cached symbols.
func (c *SymbolCache) Len() int {
	return len(c.gen.Load().entries)
}

// WarmUp populates the cache from storage in the background and returns
// immediately. Request handling is never blocked: reads during the warm
// window fall back to storage. A load failure is logged, not fatal; reads
// keep falling back until RefreshAll is retried.
func (c *SymbolCache) WarmUp(ctx context.Context) {
	timer := time.AfterFunc(c.readyTimeout, func() {
		if c.ready.CompareAndSwap(false, true) {
			slog.Warn("symbol cache ready timeout reached, serving with storage fallback",
				"timeout", c.readyTimeout, "loaded", c.Len())
		}
	})

	go func() {
		if err := c.RefreshAll(ctx); err != nil {
			// The timer keeps running: the ready deadline still fires so a
			// failed warm-up never leaves the process reporting "warming".
			slog.Error("symbol cache warm-up failed, reads stay on storage fallback", "error", err)
			return
		}
		timer.Stop()
		c.ready.Store(true)
		slog.Info("symbol cache warmed", "symbols", c.Len())
	}()
}

// RefreshAll rebuilds the entire cache from storage and atomically swaps it
// in. Concurrent readers observe either the fully-old or fully-new state.
func (c *SymbolCache) RefreshAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	loaded, err := c.loader.LoadAll(ctx)
	if err != nil {
		return err
	}
	entries := make(map[string]*entry, len(loaded))
	for symbol, data := range loaded {
		e := &entry{}
		e.data.Store(data)
		entries[symbol] = e
	}
	next := &generation{entries: entries}
	if c.swapHook != nil {
		c.swapHook()
	}
	c.gen.Store(next)
	return nil
}

// Get returns the cached data for symbol, falling back to storage on a miss.
// The fallback result is installed in the cache so repeat reads stay cheap.
func (c *SymbolCache) Get(ctx context.Context, symbol string) (*CachedSymbolData, error) {
	if e, ok := c.gen.Load().entries[symbol]; ok {
		return e.data.Load(), nil
	}

	slog.Debug("symbol cache miss, falling back to storage", "symbol", symbol, "ready", c.IsReady())
	d, err := c.loader.LoadSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.AddSymbol(symbol, d)
	return d, nil
}

// GetPrice returns the price for (symbol, date) from cache or storage.
func (c *SymbolCache) GetPrice(ctx context.Context, symbol string, date time.Time) (marketentity.PricePoint, bool) {
	d, err := c.Get(ctx, symbol)
	if err != nil || d == nil {
		return marketentity.PricePoint{}, false
	}
	return d.PriceFor(date)
}

// GetFactors returns the factor set for (symbol, date) from cache or storage.
func (c *SymbolCache) GetFactors(ctx context.Context, symbol string, date time.Time) factorentity.FactorSet {
	d, err := c.Get(ctx, symbol)
	if err != nil || d == nil {
		return nil
	}
	return d.FactorsFor(date)
}

// AddSymbol installs or replaces a single symbol's entry. Other entries are
// never invalidated or touched.
func (c *SymbolCache) AddSymbol(symbol string, data *CachedSymbolData) {
	if data == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.installLocked(symbol, data)
}

// MergePrice folds one freshly written price point into the symbol's entry,
// replacing any point already held for that date. The rest of the entry and
// all other symbols are untouched; a miss creates the entry.
func (c *SymbolCache) MergePrice(symbol string, point marketentity.PricePoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.dataLocked(symbol)
	next := &CachedSymbolData{Symbol: symbol}
	if cur != nil {
		next.Prices = append([]marketentity.PricePoint(nil), cur.Prices...)
		next.Exposures = cur.Exposures
	}
	replaced := false
	for i := range next.Prices {
		if next.Prices[i].Date.Equal(point.Date) {
			next.Prices[i] = point
			replaced = true
			break
		}
	}
	if !replaced {
		next.Prices = append(next.Prices, point)
		sort.Slice(next.Prices, func(i, j int) bool {
			return next.Prices[i].Date.Before(next.Prices[j].Date)
		})
	}
	c.installLocked(symbol, next)
}

// MergeFactors replaces the symbol's exposures for date with set, keeping
// exposures on other dates and the price series as they are.
func (c *SymbolCache) MergeFactors(symbol string, date time.Time, set factorentity.FactorSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.dataLocked(symbol)
	next := &CachedSymbolData{Symbol: symbol}
	if cur != nil {
		next.Prices = cur.Prices
		for _, e := range cur.Exposures {
			if !e.Date.Equal(date) {
				next.Exposures = append(next.Exposures, e)
			}
		}
	}
	next.Exposures = append(next.Exposures, set...)
	sort.Slice(next.Exposures, func(i, j int) bool {
		return next.Exposures[i].Date.Before(next.Exposures[j].Date)
	})
	c.installLocked(symbol, next)
}

func (c *SymbolCache) dataLocked(symbol string) *CachedSymbolData {
	if e, ok := c.gen.Load().entries[symbol]; ok {
		return e.data.Load()
	}
	return nil
}

// installLocked publishes data into the symbol's slot. An existing slot takes
// a single atomic store; only a previously unseen symbol pays for a key-set
// copy. Callers hold mu.
func (c *SymbolCache) installLocked(symbol string, data *CachedSymbolData) {
	cur := c.gen.Load()
	if e, ok := cur.entries[symbol]; ok {
		e.data.Store(data)
		return
	}
	entries := make(map[string]*entry, len(cur.entries)+1)
	for k, v := range cur.entries {
		entries[k] = v
	}
	e := &entry{}
	e.data.Store(data)
	entries[symbol] = e
	c.gen.Store(&generation{entries: entries})
}
