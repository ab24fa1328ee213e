package app

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// CreateOffer lists a product for sale, or tops up the stock of an existing
// offer for it by one.
func (a *App) CreateOffer(ctx context.Context, productID string, price decimal.Decimal, quantity int) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("product id is required")
	}
	if !price.IsPositive() {
		return errors.New("price must be greater than zero")
	}

	res, err := a.newGateway().CreateOfferOrRecover(ctx, productID, price, quantity)
	if err != nil {
		return err
	}

	switch {
	case res.Recovered:
		a.printf("offer %s already existed: stock %d -> %d (was active: %t)\n", res.OfferID, res.PreviousStock, res.Stock, res.WasActive)
	case res.Pending:
		a.printf("offer creation pending (job %s)\n", res.JobID)
	default:
		a.printf("offer %s created at %s with stock %d\n", res.OfferID, price.StringFixed(2), res.Stock)
	}
	return nil
}
