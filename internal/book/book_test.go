package book

import (
	"context"
	"testing"
	"time"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway"
)

type fakeFetcher struct {
	calls int
	book  gateway.Book
	err   error
}

func (f *fakeFetcher) FetchBook(ctx context.Context, tokenID string) (*gateway.Book, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := f.book
	return &cp, nil
}

func sampleBook(tokenID string) gateway.Book {
	return gateway.Book{
		TokenID: tokenID,
		Bids:    []gateway.BookLevel{{Price: 0.40, Size: 10}, {Price: 0.55, Size: 5}},
		Asks:    []gateway.BookLevel{{Price: 0.60, Size: 10}, {Price: 0.58, Size: 5}},
	}
}

func TestBestBidAskIgnoreOrder(t *testing.T) {
	// P10: derivation is order-independent.
	b := sampleBook("tok")
	bid, ok := BestBid(b)
	if !ok || bid != 0.55 {
		t.Errorf("BestBid = %v, want 0.55", bid)
	}
	ask, ok := BestAsk(b)
	if !ok || ask != 0.58 {
		t.Errorf("BestAsk = %v, want 0.58", ask)
	}
}

func TestFetchBookUsesFreshCache(t *testing.T) {
	fetcher := &fakeFetcher{book: sampleBook("tok")}
	v := New(fetcher)
	v.Update(sampleBook("tok"))

	if _, err := v.FetchBook(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	if fetcher.calls != 0 {
		t.Errorf("expected cache hit with no fetch, got %d fetches", fetcher.calls)
	}
}

func TestFetchBookFallsBackWhenStale(t *testing.T) {
	fetcher := &fakeFetcher{book: sampleBook("tok")}
	v := New(fetcher)
	v.mu.Lock()
	v.entries["tok"] = &entry{book: sampleBook("tok"), lastUpdate: time.Now().Add(-time.Minute)}
	v.mu.Unlock()

	if _, err := v.FetchBook(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	if fetcher.calls != 1 {
		t.Errorf("expected one synchronous fetch for stale entry, got %d", fetcher.calls)
	}
}

func TestCheckThresholdYesFirst(t *testing.T) {
	yes := gateway.Book{Asks: []gateway.BookLevel{{Price: 0.55, Size: 10}}}
	no := gateway.Book{Asks: []gateway.BookLevel{{Price: 0.55, Size: 10}}}
	res := CheckThreshold(yes, no, 0.50)
	if res == nil || res.Side != ThresholdSideYes {
		t.Fatalf("expected YES side triggered first, got %+v", res)
	}
}

func TestCheckThresholdNoneTrigger(t *testing.T) {
	yes := gateway.Book{Asks: []gateway.BookLevel{{Price: 0.40, Size: 10}}}
	no := gateway.Book{Asks: []gateway.BookLevel{{Price: 0.30, Size: 10}}}
	if res := CheckThreshold(yes, no, 0.50); res != nil {
		t.Fatalf("expected no trigger, got %+v", res)
	}
}
