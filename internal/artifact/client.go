package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/printworks/photoflow/internal/models"
)

// Client asks the artifact builder to render the print-ready PDF for one
// product. Generation is required for every product before submission.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient creates new Client instance
func NewClient(baseURL string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
		baseURL: baseURL,
	}
}

type generateRequest struct {
	Template  string   `json:"template_id"`
	ItemCount int      `json:"multiples"`
	Assets    []string `json:"assets"`
}

type generateResponse struct {
	PDFURL string `json:"pdf_url"`
}

// Generate renders the final artifact for product and returns its URL.
// Every asset of the product must already carry its upload URL.
func (c *Client) Generate(ctx context.Context, product *models.Product) (string, error) {
	genReq := generateRequest{
		Template:  product.Template,
		ItemCount: product.ItemCount,
	}
	for _, asset := range product.Assets {
		if asset.UploadURL == "" {
			return "", fmt.Errorf("%w: asset %s not uploaded", models.ErrArtifactGeneration, asset.Identifier)
		}
		genReq.Assets = append(genReq.Assets, asset.UploadURL)
	}

	// POST /api/pdf
	genURL, err := url.JoinPath(c.baseURL, "api", "pdf")
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(genReq)
	if err != nil {
		return "", fmt.Errorf("%w: %s", models.ErrArtifactGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, genURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s", models.ErrArtifactGeneration, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: builder returned %d", models.ErrArtifactGeneration, resp.StatusCode)
	}

	genResp := generateResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil || genResp.PDFURL == "" {
		return "", fmt.Errorf("%w: bad builder response", models.ErrArtifactGeneration)
	}

	return genResp.PDFURL, nil
}
