package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/malganis13/g2a-automation/internal/pricing"
)

const (
	defaultOfferKind = "dropshipping"
	jobsPath         = "/v3/jobs"
)

type createVariant struct {
	ProductID  string        `json:"productId"`
	Price      priceBody     `json:"price"`
	Inventory  inventoryBody `json:"inventory"`
	Active     bool          `json:"active"`
	Visibility string        `json:"visibility"`
	Regions    []string      `json:"regions"`
}

type createRequest struct {
	OfferType string          `json:"offerType"`
	Variants  []createVariant `json:"variants"`
}

type createResponse struct {
	JobID flexString `json:"jobId"`
	Data  struct {
		JobID flexString `json:"jobId"`
	} `json:"data"`
}

type conflictResponse struct {
	OfferID flexString `json:"offerId"`
	Data    struct {
		OfferID flexString `json:"offerId"`
	} `json:"data"`
}

// CreateOffer submits a new dropshipping offer and returns the creation job id.
// An existing offer for the product is reported as *ConflictError. A lost or
// failed reply is not retried: the offer may already exist, and a retry would
// turn it into a conflict.
func (c *Client) CreateOffer(ctx context.Context, productID string, price decimal.Decimal, quantity int) (string, error) {
	if quantity <= 0 {
		quantity = 1
	}
	amount := pricing.RoundPrice(price).StringFixed(2)

	resp, err := c.call(ctx, request{
		op:     "create offer",
		method: http.MethodPost,
		path:   offersPath,
		body: createRequest{
			OfferType: defaultOfferKind,
			Variants: []createVariant{{
				ProductID:  productID,
				Price:      priceBody{Retail: amount, Business: amount},
				Inventory:  inventoryBody{Size: quantity},
				Active:     true,
				Visibility: "all",
				Regions:    []string{"GLOBAL"},
			}},
		},
		timeout: c.opts.Timeout,
		once:    true,
	})
	if err != nil {
		return "", err
	}

	switch {
	case resp.status == http.StatusConflict:
		var body conflictResponse
		_ = json.Unmarshal(resp.body, &body)
		offerID := string(body.Data.OfferID)
		if offerID == "" {
			offerID = string(body.OfferID)
		}
		return "", &ConflictError{ProductID: productID, OfferID: offerID, Body: trimBody(resp.body)}
	case !resp.ok():
		return "", &APIError{Op: "create offer", Status: resp.status, Body: trimBody(resp.body)}
	}

	var body createResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return "", fmt.Errorf("decode create offer response: %w", err)
	}
	jobID := string(body.Data.JobID)
	if jobID == "" {
		jobID = string(body.JobID)
	}
	return jobID, nil
}

type jobResponse struct {
	Data struct {
		Status   string `json:"status"`
		Elements []struct {
			Status     string     `json:"status"`
			ResourceID flexString `json:"resourceId"`
		} `json:"elements"`
	} `json:"data"`
}

// GetJobStatus reads the state of an asynchronous creation job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	resp, err := c.call(ctx, request{
		op:      "job status",
		method:  http.MethodGet,
		path:    jobsPath + "/" + url.PathEscape(jobID),
		timeout: c.opts.LookupTimeout,
	})
	if err != nil {
		return JobStatus{}, err
	}
	if resp.status != http.StatusOK {
		return JobStatus{}, &APIError{Op: "job status", Status: resp.status, Body: trimBody(resp.body)}
	}

	var body jobResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return JobStatus{}, fmt.Errorf("decode job %s: %w", jobID, err)
	}

	status := JobStatus{JobID: jobID, Status: body.Data.Status}
	if strings.EqualFold(body.Data.Status, "complete") && len(body.Data.Elements) > 0 {
		el := body.Data.Elements[0]
		if strings.EqualFold(el.Status, "completed") && el.ResourceID != "" {
			status.Completed = true
			status.ResourceID = string(el.ResourceID)
		}
	}
	return status, nil
}

type offerDetailBody struct {
	ID       flexString `json:"id"`
	Type     string     `json:"type"`
	Status   string     `json:"status"`
	Product  struct {
		ID flexString `json:"id"`
	} `json:"product"`
	Variants []struct {
		Active     *bool       `json:"active"`
		Visibility string      `json:"visibility"`
		Price      flexDecimal `json:"price"`
		Inventory  struct {
			Size int `json:"size"`
		} `json:"inventory"`
		ProductID flexString `json:"productId"`
	} `json:"variants"`
}

// GetOffer fetches a single offer.
func (c *Client) GetOffer(ctx context.Context, offerID string) (OfferDetail, error) {
	resp, err := c.call(ctx, request{
		op:      "get offer",
		method:  http.MethodGet,
		path:    offersPath + "/" + url.PathEscape(offerID),
		timeout: c.opts.Timeout,
	})
	if err != nil {
		return OfferDetail{}, err
	}
	if resp.status != http.StatusOK {
		return OfferDetail{}, &APIError{Op: "get offer", Status: resp.status, Body: trimBody(resp.body)}
	}

	var body offerDetailBody
	if err := json.Unmarshal(unwrapData(resp.body), &body); err != nil {
		return OfferDetail{}, fmt.Errorf("decode offer %s: %w", offerID, err)
	}

	detail := OfferDetail{
		OfferID:   offerID,
		ProductID: string(body.Product.ID),
		Kind:      body.Type,
		Active:    strings.EqualFold(body.Status, "active"),
	}
	if detail.Kind == "" {
		detail.Kind = defaultOfferKind
	}
	if len(body.Variants) > 0 {
		v := body.Variants[0]
		detail.Stock = max(v.Inventory.Size, 0)
		detail.Price = v.Price.NullDecimal
		detail.Visibility = v.Visibility
		if v.Active != nil {
			detail.Active = *v.Active
		}
		if detail.ProductID == "" {
			detail.ProductID = string(v.ProductID)
		}
	}
	return detail, nil
}

// UpdateOfferStock sets the inventory size of an offer and activates it.
func (c *Client) UpdateOfferStock(ctx context.Context, offerID, kind string, stock int) (UpdateResult, error) {
	if kind == "" {
		kind = defaultOfferKind
	}
	resp, err := c.call(ctx, request{
		op:     "update stock",
		method: http.MethodPatch,
		path:   offersPath + "/" + url.PathEscape(offerID),
		body: updateRequest{
			OfferType: kind,
			Variant: updateVariant{
				Inventory: &inventoryBody{Size: stock},
				Active:    true,
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
	}
	return result, nil
}

// CreateOfferOrRecover creates an offer for the product. When one already
// exists, its stock is raised by exactly one and it is (re)activated instead.
func (c *Client) CreateOfferOrRecover(ctx context.Context, productID string, price decimal.Decimal, quantity int) (CreateResult, error) {
	log := c.logger.With().Str("product_id", productID).Logger()

	jobID, err := c.CreateOffer(ctx, productID, price, quantity)
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		return c.recoverExisting(ctx, conflict)
	case err != nil:
		return CreateResult{}, err
	}

	result := CreateResult{JobID: jobID, Pending: true, Stock: max(quantity, 1), WasActive: false}
	if jobID == "" {
		log.Warn().Msg("offer created without job reference")
		return result, nil
	}

	if err := sleep(ctx, c.opts.JobPollDelay); err != nil {
		return result, err
	}
	status, err := c.GetJobStatus(ctx, jobID)
	if err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("job status unavailable")
		return result, nil
	}
	if status.Completed {
		result.OfferID = status.ResourceID
		result.Pending = false
		log.Info().Str("offer_id", result.OfferID).Str("price", price.StringFixed(2)).Msg("offer created")
		return result, nil
	}

	log.Info().Str("job_id", jobID).Str("status", status.Status).Msg("offer creation still pending")
	return result, nil
}

func (c *Client) recoverExisting(ctx context.Context, conflict *ConflictError) (CreateResult, error) {
	if conflict.OfferID == "" {
		return CreateResult{}, conflict
	}
	log := c.logger.With().Str("product_id", conflict.ProductID).Str("offer_id", conflict.OfferID).Logger()

	detail, err := c.GetOffer(ctx, conflict.OfferID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("recover offer %s: %w", conflict.OfferID, err)
	}

	stock := detail.Stock + 1
	res, err := c.UpdateOfferStock(ctx, conflict.OfferID, detail.Kind, stock)
	if err != nil {
		return CreateResult{}, fmt.Errorf("recover offer %s: %w", conflict.OfferID, err)
	}
	if !res.Applied {
		return CreateResult{}, &APIError{Op: "update stock", Status: res.Status, Body: res.Message}
	}

	log.Info().Int("previous_stock", detail.Stock).Int("stock", stock).Bool("was_active", detail.Active).
		Msg("existing offer recovered")
	return CreateResult{
		OfferID:       conflict.OfferID,
		Recovered:     true,
		PreviousStock: detail.Stock,
		Stock:         stock,
		WasActive:     detail.Active,
	}, nil
}
