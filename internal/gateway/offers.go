package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/malganis13/g2a-automation/internal/pricing"
)

const (
	offersPath   = "/v3/sales/offers"
	productsPath = "/v1/products"
	maxPages     = 1000
)

type offersPage struct {
	Data []offerItem `json:"data"`
	Meta struct {
		TotalResults int `json:"totalResults"`
		ItemsPerPage int `json:"itemsPerPage"`
		Page         int `json:"page"`
	} `json:"meta"`
}

type offerItem struct {
	ID        flexString  `json:"id"`
	Type      string      `json:"type"`
	Status    string      `json:"status"`
	Price     flexDecimal `json:"price"`
	Inventory struct {
		Size int `json:"size"`
	} `json:"inventory"`
	Product struct {
		ID   flexString `json:"id"`
		Name string     `json:"name"`
	} `json:"product"`
	Visibility         string          `json:"visibility"`
	Regions            json.RawMessage `json:"regions"`
	RegionRestrictions json.RawMessage `json:"regionRestrictions"`
}

// ListOffers returns every offer of the seller in listing order. Any
// non-200 page fails the whole listing.
func (c *Client) ListOffers(ctx context.Context) (OfferList, error) {
	offers := make(OfferList, 0)
	total, seen := -1, 0

	for page := 1; page <= maxPages; page++ {
		resp, err := c.call(ctx, request{
			op:     "list offers",
			method: http.MethodGet,
			path:   offersPath,
			query: url.Values{
				"itemsPerPage": {strconv.Itoa(c.opts.PageSize)},
				"page":         {strconv.Itoa(page)},
			},
			timeout: c.opts.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("list offers page %d: %w", page, err)
		}
		if resp.status != http.StatusOK {
			return nil, &APIError{Op: "list offers", Status: resp.status, Body: trimBody(resp.body)}
		}

		var body offersPage
		if err := json.Unmarshal(resp.body, &body); err != nil {
			return nil, fmt.Errorf("decode offers page %d: %w", page, err)
		}
		if total < 0 {
			total = body.Meta.TotalResults
		}

		seen += len(body.Data)
		for _, item := range body.Data {
			offer, ok := c.offerFromItem(item)
			if ok {
				offers = append(offers, offer)
			}
		}

		c.logger.Debug().Int("page", page).Int("items", len(body.Data)).Int("total", total).Msg("offers page fetched")

		if len(body.Data) == 0 {
			break
		}
		if total > 0 && seen >= total {
			break
		}
		if total <= 0 && len(body.Data) < c.opts.PageSize {
			break
		}
	}

	c.logger.Info().Int("offers", len(offers)).Msg("offers listed")
	return offers, nil
}

func (c *Client) offerFromItem(item offerItem) (Offer, bool) {
	offer := Offer{
		OfferID:            string(item.ID),
		ProductID:          string(item.Product.ID),
		DisplayName:        strings.TrimSpace(item.Product.Name),
		Stock:              item.Inventory.Size,
		Active:             strings.EqualFold(item.Status, "active"),
		Kind:               item.Type,
		Visibility:         item.Visibility,
		Regions:            item.Regions,
		RegionRestrictions: item.RegionRestrictions,
	}
	if item.Price.Valid {
		offer.CurrentPrice = item.Price.Decimal
	}
	if offer.Kind == "" {
		offer.Kind = defaultOfferKind
	}
	if offer.Stock < 0 {
		offer.Stock = 0
	}
	if offer.DisplayName == "" {
		offer.DisplayName = offer.ProductID
	}

	if offer.OfferID == "" || offer.ProductID == "" {
		c.logger.Warn().Str("offer_id", offer.OfferID).Str("product_id", offer.ProductID).Msg("skipping offer without identifiers")
		return Offer{}, false
	}
	if !item.Price.Valid || offer.CurrentPrice.IsNegative() {
		c.logger.Warn().Str("offer_id", offer.OfferID).Msg("skipping offer without a usable price")
		return Offer{}, false
	}
	return offer, true
}

type productDoc struct {
	ID                 flexString  `json:"id"`
	Name               string      `json:"name"`
	MinPrice           flexDecimal `json:"minPrice"`
	RetailMinBasePrice flexDecimal `json:"retailMinBasePrice"`
	Qty                int         `json:"qty"`
}

type productsResponse struct {
	Docs []productDoc `json:"docs"`
}

// GetCompetitorQuote returns the lowest listed retail price of a product.
// An unknown product, a response without a matching doc, or a listing
// without price yields an empty quote.
func (c *Client) GetCompetitorQuote(ctx context.Context, productID string) (pricing.Quote, error) {
	resp, err := c.call(ctx, request{
		op:     "competitor quote",
		method: http.MethodGet,
		path:   productsPath,
		query: url.Values{
			"id":                {productID},
			"includeOutOfStock": {"true"},
		},
		timeout: c.opts.LookupTimeout,
	})
	if err != nil {
		return pricing.Quote{}, err
	}
	if resp.status == http.StatusNotFound {
		return pricing.Quote{}, nil
	}
	if resp.status != http.StatusOK {
		return pricing.Quote{}, &APIError{Op: "competitor quote", Status: resp.status, Body: trimBody(resp.body)}
	}

	var body productsResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return pricing.Quote{}, fmt.Errorf("decode product %s: %w", productID, err)
	}
	idx := slices.IndexFunc(body.Docs, func(doc productDoc) bool {
		return string(doc.ID) == productID
	})
	if idx < 0 {
		return pricing.Quote{}, nil
	}

	doc := body.Docs[idx]
	price := doc.RetailMinBasePrice.NullDecimal
	if !price.Valid {
		price = doc.MinPrice.NullDecimal
	}
	if !price.Valid || !price.Decimal.IsPositive() {
		return pricing.Quote{Competitors: max(doc.Qty, 0)}, nil
	}
	return pricing.Quote{MinPrice: price, Competitors: max(doc.Qty, 0)}, nil
}

type priceBody struct {
	Retail   string `json:"retail"`
	Business string `json:"business"`
}

type updateVariant struct {
	Price              *priceBody      `json:"price,omitempty"`
	Inventory          *inventoryBody  `json:"inventory,omitempty"`
	Active             bool            `json:"active"`
	Visibility         string          `json:"visibility,omitempty"`
	Regions            json.RawMessage `json:"regions,omitempty"`
	RegionRestrictions json.RawMessage `json:"regionRestrictions,omitempty"`
}

type inventoryBody struct {
	Size int `json:"size"`
}

type updateRequest struct {
	OfferType string        `json:"offerType"`
	Variant   updateVariant `json:"variant"`
}

// UpdateOfferPrice sets retail and business price of an offer, sending the
// region data back untouched. HTTP failures other than auth and transient
// ones come back as a non-applied result.
func (c *Client) UpdateOfferPrice(ctx context.Context, offerID string, price decimal.Decimal, kind string, regions RegionPassthrough) (UpdateResult, error) {
	if kind == "" {
		kind = defaultOfferKind
	}
	amount := pricing.RoundPrice(price).StringFixed(2)

	resp, err := c.call(ctx, request{
		op:     "update offer",
		method: http.MethodPatch,
		path:   offersPath + "/" + url.PathEscape(offerID),
		body: updateRequest{
			OfferType: kind,
			Variant: updateVariant{
				Price:              &priceBody{Retail: amount, Business: amount},
				Active:             true,
				Visibility:         regions.Visibility,
				Regions:            regions.Regions,
				RegionRestrictions: regions.RegionRestrictions,
			},
		},
		timeout: c.opts.Timeout,
	})
	if err != nil {
		return UpdateResult{}, err
	}

	result := UpdateResult{Applied: resp.ok(), Status: resp.status}
	if !result.Applied {
		result.Message = trimBody(resp.body)
		c.logger.Warn().Str("offer_id", offerID).Int("status", resp.status).Str("body", result.Message).Msg("price update rejected")
	}
	return result, nil
}
