package service

import (
	"fmt"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"chainbook/domain/orderbook"
	"chainbook/infra/wal/entry"
)

// command is a journaled market call. Create uses owner, side, funds and
// limit; cancel and claim use owner and id.
type command struct {
	kind  entry.RecordType
	owner string
	side  orderbook.Side
	funds orderbook.Bucket
	limit decimal.Decimal
	id    orderbook.OrderID
}

// Journal payload field numbers. Decimals travel as their exact string
// form.
const (
	fieldOwner protowire.Number = 1
	fieldSide  protowire.Number = 2
	fieldAsset protowire.Number = 3
	fieldFunds protowire.Number = 4
	fieldLimit protowire.Number = 5
	fieldID    protowire.Number = 6
)

func (c *command) encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldOwner, protowire.BytesType)
	b = protowire.AppendString(b, c.owner)

	switch c.kind {
	case entry.RecordCreate:
		b = protowire.AppendTag(b, fieldSide, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(c.side))
		b = protowire.AppendTag(b, fieldAsset, protowire.BytesType)
		b = protowire.AppendString(b, c.funds.Asset)
		b = protowire.AppendTag(b, fieldFunds, protowire.BytesType)
		b = protowire.AppendString(b, c.funds.Amount.String())
		b = protowire.AppendTag(b, fieldLimit, protowire.BytesType)
		b = protowire.AppendString(b, c.limit.String())
	default:
		b = protowire.AppendTag(b, fieldID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(c.id))
	}
	return b
}

func decodeCommand(rec *entry.Record) (*command, error) {
	switch rec.Type {
	case entry.RecordCreate, entry.RecordCancel, entry.RecordClaim:
	default:
		return nil, fmt.Errorf("journal seq %d: unknown record type %s", rec.Seq, rec.Type)
	}

	c := &command{kind: rec.Type, funds: orderbook.Bucket{Amount: decimal.Zero}, limit: decimal.Zero}
	b := rec.Data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("journal seq %d: %w", rec.Seq, protowire.ParseError(n))
		}
		b = b[n:]

		var err error
		switch {
		case num == fieldSide && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			c.side = orderbook.Side(v)
		case num == fieldID && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			c.id = orderbook.OrderID(v)
		case typ == protowire.BytesType && num >= fieldOwner && num <= fieldLimit:
			var v string
			v, n = protowire.ConsumeString(b)
			if n >= 0 {
				err = c.setString(num, v)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("journal seq %d field %d: %w", rec.Seq, num, protowire.ParseError(n))
		}
		if err != nil {
			return nil, fmt.Errorf("journal seq %d field %d: %w", rec.Seq, num, err)
		}
		b = b[n:]
	}
	return c, nil
}

func (c *command) setString(num protowire.Number, v string) error {
	var err error
	switch num {
	case fieldOwner:
		c.owner = v
	case fieldAsset:
		c.funds.Asset = v
	case fieldFunds:
		c.funds.Amount, err = decimal.NewFromString(v)
	case fieldLimit:
		c.limit, err = decimal.NewFromString(v)
	}
	return err
}
