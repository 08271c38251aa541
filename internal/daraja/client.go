// Package daraja talks to Safaricom's Daraja API for STK push payments.
package daraja

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Jleagle/unmarshal-go"
	"golang.org/x/oauth2"
)

const (
	DefaultTimeout = 30 * time.Second

	transactionTypePayBill = "CustomerPayBillOnline"
	timestampLayout        = "20060102150405"
)

// Daraja timestamps are East Africa Time, which has no daylight saving.
var eat = time.FixedZone("EAT", 3*60*60)

var ErrNotConfigured = errors.New("daraja credentials not configured")

// APIError is a non-2xx response from Daraja.
type APIError struct {
	StatusCode int
	RequestID  string `json:"requestId"`
	Code       string `json:"errorCode"`
	Message    string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("daraja: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("daraja: status %d", e.StatusCode)
}

type Config struct {
	BaseURL        string
	ShortCode      string
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string

	// HTTPClient is the base client for token and API calls. Its transport is
	// reused; the timeout is always DefaultTimeout.
	HTTPClient *http.Client
}

type Client struct {
	baseURL   string
	shortCode string
	passkey   string
	http      *http.Client
	now       func() time.Time
}

func New(cfg Config) (*Client, error) {
	if cfg.ShortCode == "" || cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" || cfg.Passkey == "" {
		return nil, ErrNotConfigured
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	base = &http.Client{Transport: base.Transport, Timeout: DefaultTimeout}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	ts := &tokenSource{
		url:    baseURL + "/oauth/v1/generate?grant_type=client_credentials",
		key:    cfg.ConsumerKey,
		secret: cfg.ConsumerSecret,
		client: base,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	authed := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(nil, ts))
	authed.Timeout = DefaultTimeout

	return &Client{
		baseURL:   baseURL,
		shortCode: cfg.ShortCode,
		passkey:   cfg.Passkey,
		http:      authed,
		now:       time.Now,
	}, nil
}

// password returns the STK password and the timestamp it was built from.
func (c *Client) password() (string, string) {
	ts := c.now().In(eat).Format(timestampLayout)
	return base64.StdEncoding.EncodeToString([]byte(c.shortCode + c.passkey + ts)), ts
}

func (c *Client) postToApi(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err = io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(b, apiErr)
		return apiErr
	}
	return json.Unmarshal(b, out)
}

type STKPushRequest struct {
	PhoneNumber      string
	Amount           int64
	AccountReference string
	TransactionDesc  string
	CallbackURL      string
}

type STKPushResponse struct {
	MerchantRequestID   string           `json:"MerchantRequestID"`
	CheckoutRequestID   string           `json:"CheckoutRequestID"`
	ResponseCode        unmarshal.String `json:"ResponseCode"`
	ResponseDescription string           `json:"ResponseDescription"`
	CustomerMessage     string           `json:"CustomerMessage"`
}

// STKPush prompts the customer's phone to pay into the shortcode.
func (c *Client) STKPush(ctx context.Context, r STKPushRequest) (*STKPushResponse, error) {
	password, ts := c.password()
	body := map[string]any{
		"BusinessShortCode": c.shortCode,
		"Password":          password,
		"Timestamp":         ts,
		"TransactionType":   transactionTypePayBill,
		"Amount":            r.Amount,
		"PartyA":            r.PhoneNumber,
		"PartyB":            c.shortCode,
		"PhoneNumber":       r.PhoneNumber,
		"CallBackURL":       r.CallbackURL,
		"AccountReference":  r.AccountReference,
		"TransactionDesc":   r.TransactionDesc,
	}

	var resp STKPushResponse
	if err := c.postToApi(ctx, "/mpesa/stkpush/v1/processrequest", body, &resp); err != nil {
		return nil, fmt.Errorf("stk push: %w", err)
	}
	return &resp, nil
}

type STKStatus struct {
	ResponseCode        unmarshal.String `json:"ResponseCode"`
	ResponseDescription string           `json:"ResponseDescription"`
	MerchantRequestID   string           `json:"MerchantRequestID"`
	CheckoutRequestID   string           `json:"CheckoutRequestID"`
	ResultCode          unmarshal.String `json:"ResultCode"`
	ResultDesc          string           `json:"ResultDesc"`
}

// Paid reports whether the customer completed the payment.
func (s *STKStatus) Paid() bool {
	return string(s.ResultCode) == "0"
}

// QuerySTKStatus looks up the outcome of an earlier STK push.
func (c *Client) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKStatus, error) {
	password, ts := c.password()
	body := map[string]any{
		"BusinessShortCode": c.shortCode,
		"Password":          password,
		"Timestamp":         ts,
		"CheckoutRequestID": checkoutRequestID,
	}

	var status STKStatus
	if err := c.postToApi(ctx, "/mpesa/stkpushquery/v1/query", body, &status); err != nil {
		return nil, fmt.Errorf("stk status query: %w", err)
	}
	return &status, nil
}
