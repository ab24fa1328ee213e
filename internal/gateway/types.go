package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Offer is one of the seller's offers as listed by the marketplace.
type Offer struct {
	OfferID            string
	ProductID          string
	DisplayName        string
	CurrentPrice       decimal.Decimal
	Stock              int
	Active             bool
	Kind               string
	Visibility         string
	Regions            json.RawMessage
	RegionRestrictions json.RawMessage
}

// Passthrough returns the fields an update must send back unchanged.
func (o Offer) Passthrough() RegionPassthrough {
	return RegionPassthrough{
		Visibility:         o.Visibility,
		Regions:            o.Regions,
		RegionRestrictions: o.RegionRestrictions,
	}
}

// OfferList preserves the marketplace listing order.
type OfferList []Offer

// ByProduct indexes offers by product id. The first listed offer wins.
func (l OfferList) ByProduct() map[string]Offer {
	out := make(map[string]Offer, len(l))
	for _, o := range l {
		if _, ok := out[o.ProductID]; !ok {
			out[o.ProductID] = o
		}
	}
	return out
}

// Unique keeps the first listed offer of each product, in listing order.
func (l OfferList) Unique() OfferList {
	seen := make(map[string]struct{}, len(l))
	out := make(OfferList, 0, len(l))
	for _, o := range l {
		if _, ok := seen[o.ProductID]; ok {
			continue
		}
		seen[o.ProductID] = struct{}{}
		out = append(out, o)
	}
	return out
}

// RegionPassthrough carries opaque region data round-tripped on updates.
type RegionPassthrough struct {
	Visibility         string
	Regions            json.RawMessage
	RegionRestrictions json.RawMessage
}

// UpdateResult reports the outcome of a price update that reached the API.
type UpdateResult struct {
	Applied bool
	Status  int
	Message string
}

// OfferDetail is the single-offer view used by conflict recovery and inspection.
type OfferDetail struct {
	OfferID    string
	ProductID  string
	Kind       string
	Price      decimal.NullDecimal
	Stock      int
	Active     bool
	Visibility string
}

// JobStatus is the state of an asynchronous offer creation job.
type JobStatus struct {
	JobID      string
	Status     string
	ResourceID string
	Completed  bool
}

// CreateResult reports the outcome of CreateOfferOrRecover.
type CreateResult struct {
	OfferID       string
	JobID         string
	Pending       bool
	Recovered     bool
	PreviousStock int
	Stock         int
	WasActive     bool
}

// flexDecimal decodes prices the API renders as numbers, strings or {"retail": ...}.
type flexDecimal struct {
	decimal.NullDecimal
}

func (f *flexDecimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	f.NullDecimal = decimal.NullDecimal{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("parse price %q: %w", s, err)
		}
		f.NullDecimal = decimal.NewNullDecimal(d)
	case '{':
		var obj struct {
			Retail *flexDecimal `json:"retail"`
			Amount *flexDecimal `json:"amount"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		switch {
		case obj.Retail != nil:
			f.NullDecimal = obj.Retail.NullDecimal
		case obj.Amount != nil:
			f.NullDecimal = obj.Amount.NullDecimal
		}
	default:
		d, err := decimal.NewFromString(string(b))
		if err != nil {
			return fmt.Errorf("parse price %s: %w", b, err)
		}
		f.NullDecimal = decimal.NewNullDecimal(d)
	}
	return nil
}

// flexString accepts identifiers rendered either as strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// unwrapData returns the "data" member when the payload is enveloped.
func unwrapData(payload []byte) []byte {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err == nil && len(env.Data) > 0 && env.Data[0] == '{' {
		return env.Data
	}
	return payload
}
