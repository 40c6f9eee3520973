package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront-payments/internal/order"
)

const (
	DefaultBaseURL  = "https://api.mercadopago.com"
	DefaultCurrency = "MXN"

	shippingItemTitle    = "Envío"
	shippingItemCategory = "shipping"
	defaultItemCategory  = "others"
	maxErrorBody         = 4 << 10
)

type Config struct {
	BaseURL             string
	AccessToken         string
	Currency            string
	StatementDescriptor string
	// FrontendURL hosts the payment result pages, BackendURL the webhook.
	FrontendURL string
	BackendURL  string
	Timeout     time.Duration
}

type MercadoPagoClient struct {
	client *http.Client
	cfg    Config
}

func NewMercadoPagoClient(cfg Config) *MercadoPagoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")

	return &MercadoPagoClient{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

type preferenceItem struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	PictureURL  string  `json:"picture_url,omitempty"`
	CategoryID  string  `json:"category_id,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	CurrencyID  string  `json:"currency_id"`
}

type preferencePhone struct {
	Number string `json:"number,omitempty"`
}

type preferenceAddress struct {
	StreetName  string `json:"street_name,omitempty"`
	City        string `json:"city,omitempty"`
	FederalUnit string `json:"federal_unit,omitempty"`
	ZipCode     string `json:"zip_code,omitempty"`
}

type preferencePayer struct {
	Name    string            `json:"name,omitempty"`
	Email   string            `json:"email"`
	Phone   preferencePhone   `json:"phone"`
	Address preferenceAddress `json:"address"`
}

type backURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type preferenceRequest struct {
	Items               []preferenceItem  `json:"items"`
	Payer               preferencePayer   `json:"payer"`
	BackURLs            backURLs          `json:"back_urls"`
	AutoReturn          string            `json:"auto_return"`
	NotificationURL     string            `json:"notification_url"`
	ExternalReference   string            `json:"external_reference"`
	StatementDescriptor string            `json:"statement_descriptor,omitempty"`
	Metadata            map[string]string `json:"metadata"`
}

type preferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

type paymentResponse struct {
	ID                int64  `json:"id"`
	Status            string `json:"status"`
	StatusDetail      string `json:"status_detail"`
	ExternalReference string `json:"external_reference"`
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *MercadoPagoClient) CreatePreference(ctx context.Context, o *order.Order) (*Preference, error) {
	const op = "create preference"

	body, err := json.Marshal(c.buildPreference(o))
	if err != nil {
		return nil, &GatewayError{Op: op, Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, &GatewayError{Op: op, Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", o.ID.String())

	var pr preferenceResponse
	if err := c.do(req, op, &pr); err != nil {
		return nil, err
	}

	log.Info().Stringer("order_id", o.ID).Str("preference_id", pr.ID).Msg("Mercado Pago preference created")
	return &Preference{
		ID:               pr.ID,
		InitPoint:        pr.InitPoint,
		SandboxInitPoint: pr.SandboxInitPoint,
	}, nil
}

func (c *MercadoPagoClient) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	const op = "get payment"

	if strings.TrimSpace(paymentID) == "" {
		return nil, &GatewayError{Op: op, Message: "payment id is required"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/payments/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return nil, &GatewayError{Op: op, Message: "create request", Err: err}
	}

	var pr paymentResponse
	if err := c.do(req, op, &pr); err != nil {
		return nil, err
	}

	return &Payment{
		ID:                strconv.FormatInt(pr.ID, 10),
		Status:            pr.Status,
		StatusDetail:      pr.StatusDetail,
		ExternalReference: pr.ExternalReference,
	}, nil
}

func (c *MercadoPagoClient) do(req *http.Request, op string, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Message: "do request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		gErr := &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil {
			switch {
			case ae.Message != "":
				gErr.Message = ae.Message
			case ae.Error != "":
				gErr.Message = ae.Error
			}
		}
		return gErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "decode body", Err: err}
	}
	return nil
}

func (c *MercadoPagoClient) buildPreference(o *order.Order) preferenceRequest {
	items := make([]preferenceItem, 0, len(o.Items)+1)
	for _, it := range o.Items {
		category := it.Category
		if category == "" {
			category = defaultItemCategory
		}
		description := it.Category
		if description == "" {
			description = "Producto"
		}
		items = append(items, preferenceItem{
			ID:          it.ProductID,
			Title:       it.ProductName,
			Description: description,
			PictureURL:  it.ProductImage,
			CategoryID:  category,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price.InexactFloat64(),
			CurrencyID:  c.cfg.Currency,
		})
	}
	if o.ShippingCost.IsPositive() {
		items = append(items, preferenceItem{
			Title:       shippingItemTitle,
			Description: fmt.Sprintf("Envío por %s", o.ShippingMethod),
			CategoryID:  shippingItemCategory,
			Quantity:    1,
			UnitPrice:   o.ShippingCost.InexactFloat64(),
			CurrencyID:  c.cfg.Currency,
		})
	}

	id := o.ID.String()
	resultPage := func(outcome string) string {
		return c.cfg.FrontendURL + "/payment/" + outcome + "?order_id=" + url.QueryEscape(id)
	}

	return preferenceRequest{
		Items: items,
		Payer: preferencePayer{
			Name:  o.ShippingAddress.FullName,
			Email: o.UserEmail,
			Phone: preferencePhone{Number: o.ShippingAddress.Phone},
			Address: preferenceAddress{
				StreetName:  o.ShippingAddress.Street,
				City:        o.ShippingAddress.City,
				FederalUnit: o.ShippingAddress.State,
				ZipCode:     o.ShippingAddress.ZipCode,
			},
		},
		BackURLs: backURLs{
			Success: resultPage("success"),
			Failure: resultPage("failure"),
			Pending: resultPage("pending"),
		},
		AutoReturn:          "approved",
		NotificationURL:     c.cfg.BackendURL + "/api/payment/webhook",
		ExternalReference:   id,
		StatementDescriptor: c.cfg.StatementDescriptor,
		Metadata: map[string]string{
			"order_id":     id,
			"order_number": o.OrderNumber,
		},
	}
}
