package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/printworks/photoflow/internal/models"
)

// Client talks to the commerce backend: one-shot order submission and
// order status polling
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates new Client instance
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// OrderRequest is the commerce API order payload
type OrderRequest struct {
	Products        []OrderRequestProduct   `json:"jobs"`
	DeliveryDetails *models.DeliveryDetails `json:"shipping_address"`
	PaymentMethod   string                  `json:"payment_method"`
	PaymentToken    string                  `json:"payment_charge_token"`
	PromoCode       string                  `json:"promo_code,omitempty"`
	ShippingMethod  string                  `json:"shipping_method,omitempty"`
}

// OrderRequestProduct is one print job within the order payload
type OrderRequestProduct struct {
	Template  string `json:"template_id"`
	ItemCount int    `json:"multiples"`
	PDFURL    string `json:"pdf_url"`
}

// BuildOrderRequest serializes order into the commerce API payload. It fails
// with ErrParsing when required checkout fields are missing.
func BuildOrderRequest(order *models.Order) (*OrderRequest, error) {
	if order.DeliveryDetails == nil {
		return nil, fmt.Errorf("%w: order has no delivery details", models.ErrParsing)
	}
	if order.PaymentToken == "" || order.PaymentMethod == "" {
		return nil, fmt.Errorf("%w: order has no payment authorization", models.ErrParsing)
	}
	if len(order.Products) == 0 {
		return nil, fmt.Errorf("%w: order has no products", models.ErrParsing)
	}

	req := OrderRequest{
		DeliveryDetails: order.DeliveryDetails,
		PaymentMethod:   order.PaymentMethod,
		PaymentToken:    order.PaymentToken,
		PromoCode:       order.PromoCode,
		ShippingMethod:  order.ShippingMethod,
	}
	for _, product := range order.Products {
		if product.Template == "" {
			return nil, fmt.Errorf("%w: product has no template", models.ErrParsing)
		}
		if product.PDFURL == "" {
			return nil, fmt.Errorf("%w: product %s has no artifact", models.ErrParsing, product.Template)
		}
		req.Products = append(req.Products, OrderRequestProduct{
			Template:  product.Template,
			ItemCount: product.ItemCount,
			PDFURL:    product.PDFURL,
		})
	}

	return &req, nil
}

type submitResponse struct {
	OrderID string `json:"order_id"`
}

// SubmitOrder submits the order once and returns the backend-assigned order id.
// Validation failures map to ErrParsing and are terminal; server and
// connection failures map to TransportError and may be retried by the caller.
func (c *Client) SubmitOrder(ctx context.Context, req *OrderRequest) (string, error) {
	// POST /api/orders
	submitURL, err := url.JoinPath(c.baseURL, "api", "orders")
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", models.ErrParsing, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return "", models.NewTransportError(0, err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		subResp := submitResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&subResp); err != nil {
			return "", fmt.Errorf("%w: %s", models.ErrParsing, err)
		}
		if subResp.OrderID == "" {
			return "", fmt.Errorf("%w: submission response has no order id", models.ErrParsing)
		}
		return subResp.OrderID, nil
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		// request was rejected, resubmitting the same order cannot succeed
		return "", fmt.Errorf("%w: %s", models.ErrParsing, readErrorMessage(resp.Body))
	default:
		return "", models.NewTransportError(resp.StatusCode, readErrorMessage(resp.Body))
	}
}

// StatusResult is the backend's view of a submitted order
type StatusResult struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

// OrderStatus returns the current processing status of a submitted order
func (c *Client) OrderStatus(ctx context.Context, orderID string) (*StatusResult, error) {
	// GET /api/orders/{id}/status
	statusURL, err := url.JoinPath(c.baseURL, "api", "orders", orderID, "status")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, models.NewTransportError(0, err.Error())
	}

	switch resp.StatusCode {
	case http.StatusOK:
		stResp := StatusResult{}
		if err := json.NewDecoder(resp.Body).Decode(&stResp); err != nil {
			return nil, fmt.Errorf("%w: %s", models.ErrParsing, err)
		}
		if stResp.Status == "" {
			return nil, fmt.Errorf("%w: status response has no status", models.ErrParsing)
		}
		return &stResp, nil
	case http.StatusNotFound:
		return nil, models.ErrDataNotFound
	default:
		return nil, models.NewTransportError(resp.StatusCode, readErrorMessage(resp.Body))
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	}
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil {
		return ""
	}

	errResp := struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}{}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return string(data)
}
