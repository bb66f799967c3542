// Package book implements the Order-Book View (C3): a thread-safe cache
// populated by a background stream subscriber, with a singleflight-backed
// synchronous-fetch fallback used both cold and when the stream entry has
// gone stale (spec §4.2). Derived best_bid/best_ask always re-scan price
// levels — sort order is never trusted (spec §3).
package book

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway"
)

// staleAfter is the freshness window spec §3/§4.2 mandates: a cache hit
// older than this is treated as absent.
const staleAfter = 30 * time.Second

// entry is one cached book plus the bookkeeping the streamer uses to log
// only significant changes (spec §4.2).
type entry struct {
	book          gateway.Book
	lastUpdate    time.Time
	updateCount   int
	lastBestBid   float64
	lastBestAsk   float64
}

// Fetcher performs the synchronous on-demand book fetch (implemented by
// gateway.Gateway.FetchBook).
type Fetcher interface {
	FetchBook(ctx context.Context, tokenID string) (*gateway.Book, error)
}

// View is the Order-Book View: a stream cache with synchronous fallback.
type View struct {
	mu      sync.RWMutex
	entries map[string]*entry

	fetcher Fetcher
	group   singleflight.Group
}

// New creates a View backed by fetcher for cache misses/staleness.
func New(fetcher Fetcher) *View {
	return &View{
		entries: make(map[string]*entry),
		fetcher: fetcher,
	}
}

// Update installs a freshly streamed book (called by the book-stream
// listener task).
func (v *View) Update(b gateway.Book) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[b.TokenID]
	if !ok {
		e = &entry{}
		v.entries[b.TokenID] = e
	}
	e.lastBestBid, _ = BestBid(e.book)
	e.lastBestAsk, _ = BestAsk(e.book)
	e.book = b
	e.lastUpdate = time.Now()
	e.updateCount++
}

// SignificantChange reports whether the most recent update to tokenID
// moved best_bid or best_ask by more than 1%, or is an Nth update
// (spec §4.2: "log only significant changes").
func (v *View) SignificantChange(tokenID string, everyN int) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	e, ok := v.entries[tokenID]
	if !ok {
		return true
	}
	if everyN > 0 && e.updateCount%everyN == 0 {
		return true
	}
	bid, bidOK := BestBid(e.book)
	ask, askOK := BestAsk(e.book)
	if !bidOK || !askOK {
		return true
	}
	return movedMoreThanOnePct(e.lastBestBid, bid) || movedMoreThanOnePct(e.lastBestAsk, ask)
}

func movedMoreThanOnePct(prev, cur float64) bool {
	if prev == 0 {
		return cur != 0
	}
	delta := (cur - prev) / prev
	if delta < 0 {
		delta = -delta
	}
	return delta > 0.01
}

// FetchBook returns the book for tokenID: a fresh stream-cache hit if one
// exists within 30s, else a synchronous fetch (coalesced with
// singleflight so concurrent callers share one in-flight request).
func (v *View) FetchBook(ctx context.Context, tokenID string) (*gateway.Book, error) {
	if b, ok := v.freshFromCache(tokenID); ok {
		return b, nil
	}

	result, err, _ := v.group.Do(tokenID, func() (interface{}, error) {
		// Re-check the cache inside the singleflight critical section:
		// another caller may have just populated it via Update.
		if b, ok := v.freshFromCache(tokenID); ok {
			return b, nil
		}
		fetched, fErr := v.fetcher.FetchBook(ctx, tokenID)
		if fErr != nil {
			return nil, fErr
		}
		v.Update(*fetched)
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*gateway.Book), nil
}

func (v *View) freshFromCache(tokenID string) (*gateway.Book, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	e, ok := v.entries[tokenID]
	if !ok {
		return nil, false
	}
	if time.Since(e.lastUpdate) > staleAfter {
		return nil, false
	}
	cp := e.book
	return &cp, true
}

// BestBid returns max(price over bids), scanning every level (P10).
func BestBid(b gateway.Book) (float64, bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}
	best := b.Bids[0].Price
	for _, lvl := range b.Bids[1:] {
		if lvl.Price > best {
			best = lvl.Price
		}
	}
	return best, true
}

// BestAsk returns min(price over asks), scanning every level (P10).
func BestAsk(b gateway.Book) (float64, bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}
	best := b.Asks[0].Price
	for _, lvl := range b.Asks[1:] {
		if lvl.Price < best {
			best = lvl.Price
		}
	}
	return best, true
}

// ThresholdSide names which outcome side crossed a buy threshold.
type ThresholdSide string

const (
	ThresholdSideYes ThresholdSide = "YES"
	ThresholdSideNo  ThresholdSide = "NO"
)

// ThresholdResult is check_threshold's return value: the first side whose
// best_ask crossed threshold, with that ask price.
type ThresholdResult struct {
	Side ThresholdSide
	Ask  float64
}

// CheckThreshold returns the first side (YES probed first, per spec
// §4.5.1's deterministic tie-break) whose best_ask >= threshold, or nil
// if neither crosses.
func CheckThreshold(yesBook, noBook gateway.Book, threshold float64) *ThresholdResult {
	if ask, ok := BestAsk(yesBook); ok && ask >= threshold {
		return &ThresholdResult{Side: ThresholdSideYes, Ask: ask}
	}
	if ask, ok := BestAsk(noBook); ok && ask >= threshold {
		return &ThresholdResult{Side: ThresholdSideNo, Ask: ask}
	}
	return nil
}
