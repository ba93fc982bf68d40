package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	refundCommand  = "refund"
	refundFullType = "02"
)

// SettlementError is a verified, non-success answer from the merchant API.
// It is not retried.
type SettlementError struct {
	Code    string
	Message string
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("gateway refund rejected: code=%s message=%s", e.Code, e.Message)
}

// RefundRequest describes a full refund. TransactionDate is the original
// payment time in gateway format.
type RefundRequest struct {
	TxnRef          string
	TransactionNo   string
	Amount          int64
	TransactionDate string
	CreatedBy       string
	ClientIP        string
	OrderInfo       string
}

type RefundResult struct {
	ResponseCode  string
	Message       string
	TransactionNo string
	Raw           map[string]string
}

type refundResponse struct {
	ResponseID        string `json:"vnp_ResponseId"`
	Command           string `json:"vnp_Command"`
	ResponseCode      string `json:"vnp_ResponseCode"`
	Message           string `json:"vnp_Message"`
	TmnCode           string `json:"vnp_TmnCode"`
	TxnRef            string `json:"vnp_TxnRef"`
	Amount            string `json:"vnp_Amount"`
	BankCode          string `json:"vnp_BankCode"`
	PayDate           string `json:"vnp_PayDate"`
	TransactionNo     string `json:"vnp_TransactionNo"`
	TransactionType   string `json:"vnp_TransactionType"`
	TransactionStatus string `json:"vnp_TransactionStatus"`
	OrderInfo         string `json:"vnp_OrderInfo"`
	SecureHash        string `json:"vnp_SecureHash"`
}

func (r *refundResponse) checksumData() string {
	return strings.Join([]string{
		r.ResponseID, r.Command, r.ResponseCode, r.Message, r.TmnCode, r.TxnRef,
		r.Amount, r.BankCode, r.PayDate, r.TransactionNo, r.TransactionType,
		r.TransactionStatus, r.OrderInfo,
	}, "|")
}

// Refund asks the merchant API to return the full amount of a settled
// payment. Network failures and 5xx answers come back as *TransientError;
// a verified non-success code comes back as *SettlementError.
func (c *Client) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if c.cfg.APIURL == "" {
		return nil, errors.New("gateway merchant api url not configured")
	}

	createBy := req.CreatedBy
	if createBy == "" {
		createBy = "system"
	}
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	info := SanitizeOrderInfo(req.OrderInfo)
	if info == "" {
		info = SanitizeOrderInfo("hoan tien " + req.TxnRef)
	}

	body := map[string]string{
		"vnp_RequestId":       strings.ReplaceAll(uuid.NewString(), "-", ""),
		"vnp_Version":         Version,
		"vnp_Command":         refundCommand,
		"vnp_TmnCode":         c.cfg.TmnCode,
		"vnp_TransactionType": refundFullType,
		"vnp_TxnRef":          req.TxnRef,
		"vnp_Amount":          strconv.FormatInt(req.Amount*AmountScale, 10),
		"vnp_TransactionNo":   req.TransactionNo,
		"vnp_TransactionDate": req.TransactionDate,
		"vnp_CreateBy":        createBy,
		"vnp_CreateDate":      c.formatDate(c.now()),
		"vnp_IpAddr":          ip,
		"vnp_OrderInfo":       info,
	}
	body["vnp_SecureHash"] = hmacSHA512(c.cfg.HashSecret, strings.Join([]string{
		body["vnp_RequestId"], body["vnp_Version"], body["vnp_Command"], body["vnp_TmnCode"],
		body["vnp_TransactionType"], body["vnp_TxnRef"], body["vnp_Amount"], body["vnp_TransactionNo"],
		body["vnp_TransactionDate"], body["vnp_CreateBy"], body["vnp_CreateDate"], body["vnp_IpAddr"],
		body["vnp_OrderInfo"],
	}, "|"))

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	if resp.StatusCode >= 500 {
		return nil, &TransientError{Err: fmt.Errorf("merchant api returned %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("merchant api returned %d", resp.StatusCode)
	}

	var out refundResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode refund response: %w", err)
	}
	if out.SecureHash != "" {
		expected := hmacSHA512(c.cfg.HashSecret, out.checksumData())
		if !strings.EqualFold(expected, out.SecureHash) {
			return nil, ErrInvalidSignature
		}
	}

	fields := map[string]string{}
	_ = json.Unmarshal(raw, &fields)

	if out.ResponseCode != responseOK {
		return nil, &SettlementError{Code: out.ResponseCode, Message: out.Message}
	}
	return &RefundResult{
		ResponseCode:  out.ResponseCode,
		Message:       out.Message,
		TransactionNo: out.TransactionNo,
		Raw:           fields,
	}, nil
}
