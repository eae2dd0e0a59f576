package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chainbook/domain/orderbook"
)

const EventVersion = 1

type EventType string

const (
	EventCreated   EventType = "created"
	EventFill      EventType = "fill"
	EventCancelled EventType = "cancelled"
	EventClaimed   EventType = "claimed"
)

// Event is a settlement notice published for off-book consumers. Seq is
// the journal step that produced it. ID is derived from market, step and
// position, so a re-sent event keeps its id.
type Event struct {
	V         int       `json:"v"`
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Market    string    `json:"market"`
	Seq       uint64    `json:"seq"`
	OrderID   uint64    `json:"order_id"`
	Owner     string    `json:"owner,omitempty"`
	Taker     string    `json:"taker,omitempty"`
	Side      string    `json:"side,omitempty"`
	Price     string    `json:"price,omitempty"`
	Quantity  string    `json:"quantity,omitempty"`
	Quote     string    `json:"quote,omitempty"`
	Proceeds  string    `json:"proceeds,omitempty"`
	Principal string    `json:"principal,omitempty"`
	Time      time.Time `json:"time"`
}

// eventSpace namespaces event ids.
var eventSpace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("chainbook.events"))

func eventID(market string, seq uint64, i int) string {
	return uuid.NewSHA1(eventSpace, []byte(fmt.Sprintf("%s/%d/%d", market, seq, i))).String()
}

// stamp fills the envelope fields of the events of one step.
func stamp(market string, seq uint64, at time.Time, events []Event) {
	for i := range events {
		events[i].V = EventVersion
		events[i].ID = eventID(market, seq, i)
		events[i].Market = market
		events[i].Seq = seq
		events[i].Time = at
	}
}

func createEvents(owner string, side orderbook.Side, limit string, p orderbook.Placement, rested *orderbook.OrderView) []Event {
	out := make([]Event, 0, len(p.Fills)+1)
	for _, f := range p.Fills {
		out = append(out, Event{
			Type:     EventFill,
			OrderID:  uint64(f.Maker),
			Owner:    f.MakerOwner,
			Taker:    owner,
			Side:     f.TakerSide.String(),
			Price:    f.Price.String(),
			Quantity: f.Quantity.String(),
			Quote:    f.Quote.String(),
		})
	}
	if rested != nil {
		out = append(out, Event{
			Type:     EventCreated,
			OrderID:  uint64(rested.ID),
			Owner:    owner,
			Side:     side.String(),
			Price:    limit,
			Quantity: rested.Amount.String(),
		})
	}
	return out
}

func cancelEvents(st orderbook.Settlement) []Event {
	return []Event{{
		Type:      EventCancelled,
		OrderID:   uint64(st.Order.ID),
		Owner:     st.Order.Owner,
		Side:      st.Order.Side.String(),
		Price:     st.Order.Price.String(),
		Proceeds:  st.Proceeds.String(),
		Principal: st.Principal.String(),
	}}
}

func claimEvents(st orderbook.Settlement) []Event {
	if st.Proceeds.IsEmpty() {
		return nil
	}
	return []Event{{
		Type:     EventClaimed,
		OrderID:  uint64(st.Order.ID),
		Owner:    st.Order.Owner,
		Side:     st.Order.Side.String(),
		Price:    st.Order.Price.String(),
		Proceeds: st.Proceeds.String(),
	}}
}

func encodeEvents(events []Event) ([][]byte, error) {
	out := make([][]byte, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// EventKey returns the market of an encoded event, used as the partition
// key so each market's events stay ordered.
func EventKey(payload []byte) []byte {
	var e struct {
		Market string `json:"market"`
	}
	if err := json.Unmarshal(payload, &e); err != nil || e.Market == "" {
		return nil
	}
	return []byte(e.Market)
}
