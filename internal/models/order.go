package models

import "time"

// order status as reported by the commerce backend:
// received — the backend has the order, payment not yet confirmed;
// accepted — the order is being processed, payment not yet confirmed;
// paid — payment confirmed, order handed to print;
// paymentError — payment was rejected;
// cancelled — the order was cancelled;
// refused — the backend refused to process the order.
const (
	OrderStatusReceived     = "received"
	OrderStatusAccepted     = "accepted"
	OrderStatusPaid         = "paid"
	OrderStatusPaymentError = "paymentError"
	OrderStatusCancelled    = "cancelled"
	OrderStatusRefused      = "refused"
)

// StatusInProgress reports whether the backend is still working on the order.
func StatusInProgress(status string) bool {
	return status == OrderStatusReceived || status == OrderStatusAccepted
}

// Asset is a reference to a single photo plus its upload state.
// Two products may reference assets sharing the same identifier.
// UploadURL is set exactly once, when the image store confirms receipt;
// its presence is the sole truth of "this asset has been uploaded".
type Asset struct {
	Identifier     string `json:"identifier"`
	FileIdentifier string `json:"file_identifier"`
	FilePath       string `json:"file_path"`
	UploadURL      string `json:"upload_url,omitempty"`
}

// Product is a single photobook within the order
type Product struct {
	Template  string   `json:"template"`
	ItemCount int      `json:"item_count"`
	Assets    []*Asset `json:"assets"`
	PDFURL    string   `json:"pdf_url,omitempty"`
}

// DeliveryDetails is the shipping address for the order
type DeliveryDetails struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Line1     string `json:"line1"`
	Line2     string `json:"line2,omitempty"`
	City      string `json:"city"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// Cost is a cached pricing snapshot. It is dropped on any mutation of
// products, promo code or shipping selection.
type Cost struct {
	Total         float64 `json:"total"`
	Shipping      float64 `json:"shipping"`
	PromoDiscount float64 `json:"promo_discount"`
	Currency      string  `json:"currency"`
}

// Order is the aggregate root moving through the processing pipeline
type Order struct {
	Products        []*Product       `json:"products"`
	DeliveryDetails *DeliveryDetails `json:"delivery_details,omitempty"`
	PaymentMethod   string           `json:"payment_method,omitempty"`
	PromoCode       string           `json:"promo_code,omitempty"`
	PaymentToken    string           `json:"payment_token,omitempty"`
	ShippingMethod  string           `json:"shipping_method,omitempty"`
	OrderID         string           `json:"order_id,omitempty"`
	Cost            *Cost            `json:"cost,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// NewOrder creates new empty basket order
func NewOrder() *Order {
	return &Order{CreatedAt: time.Now()}
}

// Assets returns every asset referenced by the order, in product order.
// Duplicated photos appear once per referencing product.
func (o *Order) Assets() []*Asset {
	var assets []*Asset
	for _, product := range o.Products {
		assets = append(assets, product.Assets...)
	}
	return assets
}

// RemainingAssetsToUpload returns the assets still missing an upload URL
func (o *Order) RemainingAssetsToUpload() []*Asset {
	var remaining []*Asset
	for _, asset := range o.Assets() {
		if asset.UploadURL == "" {
			remaining = append(remaining, asset)
		}
	}
	return remaining
}

// SetUploadURL stores url on every asset sharing identifier and returns
// the number of assets updated
func (o *Order) SetUploadURL(identifier, url string) int {
	n := 0
	for _, asset := range o.Assets() {
		if asset.Identifier == identifier {
			asset.UploadURL = url
			n++
		}
	}
	return n
}

// AddProduct appends product to the order and drops the cached cost
func (o *Order) AddProduct(product *Product) {
	o.Products = append(o.Products, product)
	o.Cost = nil
}

// SetPromoCode replaces the promo code and drops the cached cost
func (o *Order) SetPromoCode(code string) {
	o.PromoCode = code
	o.Cost = nil
}

// SetShippingMethod replaces the shipping selection and drops the cached cost
func (o *Order) SetShippingMethod(method string) {
	o.ShippingMethod = method
	o.Cost = nil
}

// Copy returns a deep copy of the order. The processing order is a copy of
// the basket so later basket edits cannot touch an in-flight submission.
func (o *Order) Copy() *Order {
	cp := *o
	cp.Products = make([]*Product, 0, len(o.Products))
	for _, product := range o.Products {
		pcp := *product
		pcp.Assets = make([]*Asset, 0, len(product.Assets))
		for _, asset := range product.Assets {
			acp := *asset
			pcp.Assets = append(pcp.Assets, &acp)
		}
		cp.Products = append(cp.Products, &pcp)
	}
	if o.DeliveryDetails != nil {
		dcp := *o.DeliveryDetails
		cp.DeliveryDetails = &dcp
	}
	if o.Cost != nil {
		ccp := *o.Cost
		cp.Cost = &ccp
	}
	return &cp
}
