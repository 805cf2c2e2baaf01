package profileclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medilink/internal/servicetoken"
	"medilink/pkg/domain"
)

// Client calls the profile service over HTTP with an internal service
// token. It satisfies the triage app's HistoryFetcher.
type Client struct {
	baseURL    string
	signer     *servicetoken.Signer
	audience   string
	httpClient *http.Client
}

// APIError represents a profile service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a profile service client.
func NewClient(baseURL, audience string, signer *servicetoken.Signer) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     signer,
		audience:   audience,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// GetMedicalHistory fetches the patient's medical-history snapshot.
func (c *Client) GetMedicalHistory(ctx context.Context, patientID string) (*domain.MedicalHistory, error) {
	endpoint := c.baseURL + "/profiles/" + url.PathEscape(patientID) + "/history"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.signer != nil {
		token, err := c.signer.Sign(c.audience)
		if err != nil {
			return nil, err
		}
		req.Header.Set(servicetoken.HeaderName, token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	var history domain.MedicalHistory
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, err
	}
	return &history, nil
}
