package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a typed HTTP client for the payment processor API. The processor
// is the system of record for custody, balances and on-chain transfers; this
// client only shapes requests and responses.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// APIError is a non-2xx response from the processor.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("processor error %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a new processor client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	return data, nil
}

// --- Users ---

// CreateUser registers an account with the processor and returns the
// processor-assigned IDs.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*CreatedUser, error) {
	data, err := c.doRequest(ctx, "POST", "/users", req)
	if err != nil {
		return nil, err
	}

	var resp CreateUserResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if resp.User == nil {
		return nil, fmt.Errorf("create user: response carries no user object")
	}

	return resp.User, nil
}

// EnableGas activates gas sponsorship for a user's account.
func (c *Client) EnableGas(ctx context.Context, userID string) error {
	_, err := c.doRequest(ctx, "POST", "/activate-pay/"+userID, struct{}{})
	return err
}

// --- Funds ---

// TransferFunds moves funds from the sender's account to a payment
// identifier. Callers must check Committed() on the response; an HTTP
// success alone does not prove the funds moved.
func (c *Client) TransferFunds(ctx context.Context, senderID string, req TransferRequest) (*TransferResponse, error) {
	data, err := c.doRequest(ctx, "POST", "/transfer/"+senderID, req)
	if err != nil {
		return nil, err
	}

	var resp TransferResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return &resp, nil
}

// MintFunds mints new funds directly to a payment identifier.
func (c *Client) MintFunds(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	data, err := c.doRequest(ctx, "POST", "/mint", req)
	if err != nil {
		return nil, err
	}

	var resp TransferResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return &resp, nil
}

// GetBalance returns the token balances for an account.
func (c *Client) GetBalance(ctx context.Context, userID string) (*BalanceResponse, error) {
	data, err := c.doRequest(ctx, "GET", "/"+userID+"/balance", nil)
	if err != nil {
		return nil, err
	}

	var resp BalanceResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return &resp, nil
}

// GetBusinessFloat returns the business float balance.
func (c *Client) GetBusinessFloat(ctx context.Context) (*FloatResponse, error) {
	data, err := c.doRequest(ctx, "GET", "/float", nil)
	if err != nil {
		return nil, err
	}

	var resp FloatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return &resp, nil
}

// GetTransactions returns an account's transaction history, newest first.
func (c *Client) GetTransactions(ctx context.Context, userID string) ([]Transaction, error) {
	data, err := c.doRequest(ctx, "GET", "/"+userID+"/transactions", nil)
	if err != nil {
		return nil, err
	}

	var resp TransactionsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return resp.Transactions, nil
}

// --- Charges ---

// CreateCharge creates a charge against a merchant account.
func (c *Client) CreateCharge(ctx context.Context, merchantID string, req CreateChargeRequest) (*Charge, error) {
	data, err := c.doRequest(ctx, "POST", "/charge/"+merchantID+"/create", req)
	if err != nil {
		return nil, err
	}

	var resp ChargeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if resp.Charge == nil || resp.Charge.ID == "" {
		return nil, fmt.Errorf("create charge: response carries no charge ID")
	}

	return resp.Charge, nil
}

// GetCharge retrieves a charge by ID.
func (c *Client) GetCharge(ctx context.Context, chargeID string) (*Charge, error) {
	data, err := c.doRequest(ctx, "GET", "/retrieve-charge/"+chargeID, nil)
	if err != nil {
		return nil, err
	}

	var resp ChargeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if resp.Charge == nil {
		return nil, fmt.Errorf("get charge: response carries no charge object")
	}

	return resp.Charge, nil
}

// UpdateCharge mutates a charge's status at the processor.
func (c *Client) UpdateCharge(ctx context.Context, merchantID, chargeID string, req UpdateChargeRequest) error {
	path := fmt.Sprintf("/charge/%s/%s/update", merchantID, chargeID)
	_, err := c.doRequest(ctx, "PUT", path, req)
	return err
}

// --- Coupons ---

// CreateCoupon creates a coupon owned by a merchant.
func (c *Client) CreateCoupon(ctx context.Context, merchantID string, req CreateCouponRequest) (*Coupon, error) {
	data, err := c.doRequest(ctx, "POST", "/coupons/"+merchantID, req)
	if err != nil {
		return nil, err
	}

	var coupon Coupon
	if err := json.Unmarshal(data, &coupon); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return &coupon, nil
}

// GetAllCoupons lists every available coupon.
func (c *Client) GetAllCoupons(ctx context.Context) ([]Coupon, error) {
	data, err := c.doRequest(ctx, "GET", "/coupons", nil)
	if err != nil {
		return nil, err
	}

	var coupons []Coupon
	if err := json.Unmarshal(data, &coupons); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return coupons, nil
}
