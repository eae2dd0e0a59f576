package grpcserver

import "time"

// Wire layout of the Engine messages. Field numbers are stable; add new
// fields with new numbers.

func (m *Bucket) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Asset)
	return appendString(b, 2, m.Amount)
}

func (m *Bucket) consumeWire(b []byte) error {
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.Asset = f.str()
		case 2:
			m.Amount = f.str()
		}
		return nil
	})
}

func (m *Fill) appendWire(b []byte) []byte {
	b = appendUint(b, 1, m.Maker)
	b = appendString(b, 2, m.Price)
	b = appendString(b, 3, m.Quantity)
	return appendString(b, 4, m.Quote)
}

func (m *Fill) consumeWire(b []byte) error {
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.Maker = f.v
		case 2:
			m.Price = f.str()
		case 3:
			m.Quantity = f.str()
		case 4:
			m.Quote = f.str()
		}
		return nil
	})
}

func (m *Order) appendWire(b []byte) []byte {
	b = appendUint(b, 1, m.ID)
	b = appendString(b, 2, m.Side)
	b = appendString(b, 3, m.Price)
	b = appendString(b, 4, m.Amount)
	b = appendString(b, 5, m.Filled)
	b = appendMessage(b, 6, &m.Proceeds)
	b = appendString(b, 7, m.Owner)
	if !m.Created.IsZero() {
		b = appendInt(b, 8, m.Created.UnixNano())
	}
	return b
}

func (m *Order) consumeWire(b []byte) error {
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.ID = f.v
		case 2:
			m.Side = f.str()
		case 3:
			m.Price = f.str()
		case 4:
			m.Amount = f.str()
		case 5:
			m.Filled = f.str()
		case 6:
			return m.Proceeds.consumeWire(f.s)
		case 7:
			m.Owner = f.str()
		case 8:
			m.Created = time.Unix(0, f.sint()).UTC()
		}
		return nil
	})
}

func (m *Level) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Price)
	b = appendString(b, 2, m.Amount)
	return appendInt(b, 3, int64(m.Count))
}

func (m *Level) consumeWire(b []byte) error {
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.Price = f.str()
		case 2:
			m.Amount = f.str()
		case 3:
			m.Count = int(f.sint())
		}
		return nil
	})
}

func (m *CreateOrderRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Market)
	b = appendString(b, 2, m.Owner)
	b = appendString(b, 3, m.Side)
	b = appendMessage(b, 4, &m.Funds)
	return appendString(b, 5, m.Limit)
}

func (m *CreateOrderRequest) consumeWire(b []byte) error {
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.Market = f.str()
		case 2:
			m.Owner = f.str()
		case 3:
			m.Side = f.str()
		case 4:
			return m.Funds.consumeWire(f.s)
		case 5:
			m.Limit = f.str()
		}
		return nil
	})
}

func (m *CreateOrderResponse) appendWire(b []byte) []byte {
	b = appendUint(b, 1, m.OrderID)
	b = appendMessage(b, 2, &m.Proceeds)
	b = appendMessage(b, 3, &m.Change)
	for i := range m.Fills {
		b = appendMessage(b, 4, &m.Fills[i])
	}
	return b
}

func (m *CreateOrderResponse) consumeWire(b []byte) error {
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.OrderID = f.v
		case 2:
			return m.Proceeds.consumeWire(f.s)
		case 3:
			return m.Change.consumeWire(f.s)
		case 4:
			var fill Fill
			if err := fill.consumeWire(f.s); err != nil {
				return err
			}
			m.Fills = append(m.Fills, fill)
		}
		return nil
	})
}

func (m *OrderRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Market)
	b = appendString(b, 2, m.Owner)
	return appendUint(b, 3, m.OrderID)
}

func (m *OrderRequest) consumeWire(b []byte) error {
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.Market = f.str()
		case 2:
			m.Owner = f.str()
		case 3:
			m.OrderID = f.v
		}
		return nil
	})
}

func (m *SettlementResponse) appendWire(b []byte) []byte {
	b = appendMessage(b, 1, &m.Proceeds)
	b = appendMessage(b, 2, &m.Principal)
	b = appendMessage(b, 3, &m.Order)
	return appendBool(b, 4, m.Burned)
}

func (m *SettlementResponse) consumeWire(b []byte) error {
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			return m.Proceeds.consumeWire(f.s)
		case 2:
			return m.Principal.consumeWire(f.s)
		case 3:
			return m.Order.consumeWire(f.s)
		case 4:
			m.Burned = f.flag()
		}
		return nil
	})
}

func (m *GetOrderResponse) appendWire(b []byte) []byte {
	return appendMessage(b, 1, &m.Order)
}

func (m *GetOrderResponse) consumeWire(b []byte) error {
	return consumeFields(b, func(f field) error {
		if f.num == 1 {
			return m.Order.consumeWire(f.s)
		}
		return nil
	})
}

func (m *GetDepthRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Market)
	return appendInt(b, 2, int64(m.Levels))
}

func (m *GetDepthRequest) consumeWire(b []byte) error {
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.Market = f.str()
		case 2:
			m.Levels = int(f.sint())
		}
		return nil
	})
}

func (m *GetDepthResponse) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Market)
	b = appendUint(b, 2, m.Seq)
	for i := range m.Bids {
		b = appendMessage(b, 3, &m.Bids[i])
	}
	for i := range m.Asks {
		b = appendMessage(b, 4, &m.Asks[i])
	}
	return b
}

func (m *GetDepthResponse) consumeWire(b []byte) error {
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.Market = f.str()
		case 2:
			m.Seq = f.v
		case 3, 4:
			var l Level
			if err := l.consumeWire(f.s); err != nil {
				return err
			}
			if f.num == 3 {
				m.Bids = append(m.Bids, l)
			} else {
				m.Asks = append(m.Asks, l)
			}
		}
		return nil
	})
}
