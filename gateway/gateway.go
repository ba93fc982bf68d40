// Package gateway speaks the signed-redirect payment protocol: it builds
// outbound payment URLs, verifies inbound return and IPN callbacks, and
// calls the merchant API for refund settlement.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Version       = "2.1.0"
	CurrencyVND   = "VND"
	OrderTypeTag  = "other"
	DefaultLocale = "vn"

	// AmountScale converts the internal amount to the gateway unit.
	AmountScale = 100

	dateLayout = "20060102150405"
	txnRefSep  = "_"
	responseOK = "00"
)

var (
	ErrInvalidSignature  = errors.New("invalid gateway signature")
	ErrMalformedCallback = errors.New("malformed gateway callback")
)

// Config carries the merchant credentials. HashSecret never leaves this
// package. Timezone is the gateway's wall clock, Asia/Ho_Chi_Minh by default.
type Config struct {
	TmnCode     string
	HashSecret  string
	PayURL      string
	APIURL      string
	ReturnURL   string
	Timezone    string
	ExpireAfter time.Duration
}

type Client struct {
	cfg        Config
	loc        *time.Location
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = 15 * time.Minute
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Ho_Chi_Minh"
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.FixedZone("GMT+7", 7*60*60)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg, loc: loc, httpClient: httpClient, now: time.Now}
}

// WithClock replaces the clock used for create and expire timestamps.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

func (c *Client) formatDate(t time.Time) string {
	return t.In(c.loc).Format(dateLayout)
}

type PaymentRequest struct {
	OrderID     uuid.UUID
	Amount      int64
	Description string
	ClientIP    string
	BankCode    string
	Locale      string
}

type PaymentURL struct {
	URL       string
	TxnRef    string
	ExpiresAt time.Time
}

// NewTxnRef makes a unique reference that still yields the order id when
// split on the separator.
func NewTxnRef(orderID uuid.UUID, at time.Time) string {
	return orderID.String() + txnRefSep + strconv.FormatInt(at.UnixMilli(), 10)
}

func ParseTxnRef(ref string) (uuid.UUID, error) {
	head, _, _ := strings.Cut(ref, txnRefSep)
	id, err := uuid.Parse(head)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: txn ref %q", ErrMalformedCallback, ref)
	}
	return id, nil
}

// BuildPaymentURL signs a fresh redirect URL for the order.
func (c *Client) BuildPaymentURL(req PaymentRequest) (*PaymentURL, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", req.Amount)
	}
	if c.cfg.TmnCode == "" || c.cfg.HashSecret == "" || c.cfg.PayURL == "" {
		return nil, errors.New("gateway merchant config incomplete")
	}

	now := c.now()
	expires := now.Add(c.cfg.ExpireAfter)
	txnRef := NewTxnRef(req.OrderID, now)

	locale := req.Locale
	if locale == "" {
		locale = DefaultLocale
	}
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	info := SanitizeOrderInfo(req.Description)
	if info == "" {
		info = SanitizeOrderInfo("thanh toan don hang " + req.OrderID.String())
	}

	params := url.Values{}
	params.Set("vnp_Version", Version)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", c.cfg.TmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount*AmountScale, 10))
	params.Set("vnp_CurrCode", CurrencyVND)
	params.Set("vnp_TxnRef", txnRef)
	params.Set("vnp_OrderInfo", info)
	params.Set("vnp_OrderType", OrderTypeTag)
	params.Set("vnp_Locale", locale)
	params.Set("vnp_ReturnUrl", c.cfg.ReturnURL)
	params.Set("vnp_IpAddr", ip)
	params.Set("vnp_CreateDate", c.formatDate(now))
	params.Set("vnp_ExpireDate", c.formatDate(expires))
	if req.BankCode != "" {
		params.Set("vnp_BankCode", req.BankCode)
	}

	query := canonicalQuery(params)
	signature := hmacSHA512(c.cfg.HashSecret, query)

	return &PaymentURL{
		URL:       c.cfg.PayURL + "?" + query + "&" + paramSecureHash + "=" + signature,
		TxnRef:    txnRef,
		ExpiresAt: expires,
	}, nil
}

// Callback is a verified return or IPN payload.
type Callback struct {
	Params        url.Values
	OrderID       uuid.UUID
	TxnRef        string
	Amount        int64
	ResponseCode  string
	TransactionNo string
	PayDate       string
	BankCode      string
}

// Succeeded reports whether the gateway says the customer paid. A verified
// callback that did not succeed is a payment failure, not a protocol error.
func (cb *Callback) Succeeded() bool {
	if cb.ResponseCode != responseOK {
		return false
	}
	if st := cb.Params.Get("vnp_TransactionStatus"); st != "" && st != responseOK {
		return false
	}
	return true
}

// VerifyCallback checks the signature before reading anything else from
// params.
func (c *Client) VerifyCallback(params url.Values) (*Callback, error) {
	if !Verify(c.cfg.HashSecret, params) {
		return nil, ErrInvalidSignature
	}

	txnRef := params.Get("vnp_TxnRef")
	orderID, err := ParseTxnRef(txnRef)
	if err != nil {
		return nil, err
	}
	scaled, err := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)
	if err != nil || scaled < 0 || scaled%AmountScale != 0 {
		return nil, fmt.Errorf("%w: amount %q", ErrMalformedCallback, params.Get("vnp_Amount"))
	}

	return &Callback{
		Params:        params,
		OrderID:       orderID,
		TxnRef:        txnRef,
		Amount:        scaled / AmountScale,
		ResponseCode:  params.Get("vnp_ResponseCode"),
		TransactionNo: params.Get("vnp_TransactionNo"),
		PayDate:       params.Get("vnp_PayDate"),
		BankCode:      params.Get("vnp_BankCode"),
	}, nil
}

// OrderIDFromParams recovers the order id from an unverified callback so a
// browser can still be routed to the right page.
func OrderIDFromParams(params url.Values) (uuid.UUID, bool) {
	id, err := ParseTxnRef(params.Get("vnp_TxnRef"))
	return id, err == nil
}
