package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// marketMessage is the generic shape of the two market-channel event
// types spec §6 names: a full "book" snapshot and a "price_change"
// delta (best-bid/best-ask only). Price/size fields arrive as strings
// on the wire.
type marketMessage struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Bids      []rawLevel `json:"bids"`
	Asks      []rawLevel `json:"asks"`
	BestBid   string     `json:"best_bid"`
	BestAsk   string     `json:"best_ask"`
	Timestamp string     `json:"timestamp"`
}

type rawLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// ParseMarketMessage decodes one market-channel frame into a Book. A
// full "book" snapshot yields every level; a "price_change" delta
// synthesizes a single-level book from best_bid/best_ask only — a
// conservative placeholder that stays in the Order-Book View until a
// later "book" snapshot replaces it, or until it is older than the
// freshness window and FetchBook fetches synchronously (spec §4.2).
func ParseMarketMessage(raw []byte) (*Book, error) {
	var m marketMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse market message: %w", err)
	}

	b := &Book{TokenID: m.AssetID, LastUpdateTime: time.Now()}

	switch m.EventType {
	case "book":
		for _, l := range m.Bids {
			if lvl, ok := parseLevel(l); ok {
				b.Bids = append(b.Bids, lvl)
			}
		}
		for _, l := range m.Asks {
			if lvl, ok := parseLevel(l); ok {
				b.Asks = append(b.Asks, lvl)
			}
		}
	case "price_change":
		if bid, err := strconv.ParseFloat(m.BestBid, 64); err == nil {
			b.Bids = append(b.Bids, BookLevel{Price: bid, Size: 1})
		}
		if ask, err := strconv.ParseFloat(m.BestAsk, 64); err == nil {
			b.Asks = append(b.Asks, BookLevel{Price: ask, Size: 1})
		}
	default:
		return nil, fmt.Errorf("parse market message: unrecognized event_type %q", m.EventType)
	}

	return b, nil
}

func parseLevel(l rawLevel) (BookLevel, bool) {
	price, err := strconv.ParseFloat(l.Price, 64)
	if err != nil {
		return BookLevel{}, false
	}
	size, err := strconv.ParseFloat(l.Size, 64)
	if err != nil {
		return BookLevel{}, false
	}
	return BookLevel{Price: price, Size: size}, true
}

// userMessage mirrors the user-channel's order/trade push shapes (spec
// §4.4(b)), accepting the same field-name synonyms get_order does
// (size_matched vs filled_amount).
type userMessage struct {
	EventType    string `json:"event_type"`
	OrderID      string `json:"order_id"`
	TakerOrderID string `json:"taker_order_id"`
	Status       string `json:"status"`
	SizeMatched  string `json:"size_matched"`
	FilledAmount string `json:"filled_amount"`
	Size         string `json:"size"`
}

// ParseUserMessage decodes one user-channel frame into a UserEvent.
func ParseUserMessage(raw []byte) (*UserEvent, error) {
	var m userMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse user message: %w", err)
	}

	ev := &UserEvent{Status: NormalizeStatus(m.Status)}

	switch m.EventType {
	case "order":
		ev.Kind = UserEventOrder
		ev.OrderID = m.OrderID
		ev.FillSize = firstNonZero(m.SizeMatched, m.FilledAmount)
	case "trade":
		ev.Kind = UserEventTrade
		ev.OrderID = m.TakerOrderID
		if ev.OrderID == "" {
			ev.OrderID = m.OrderID
		}
		ev.FillSize = firstNonZero(m.Size, m.SizeMatched, m.FilledAmount)
	default:
		return nil, fmt.Errorf("parse user message: unrecognized event_type %q", m.EventType)
	}

	return ev, nil
}

func firstNonZero(fields ...string) float64 {
	for _, f := range fields {
		if v, err := strconv.ParseFloat(f, 64); err == nil && v != 0 {
			return v
		}
	}
	return 0
}
