package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-fuego/fuego"
	"github.com/wantamink/pledgeservice/internal/config"
	"github.com/wantamink/pledgeservice/internal/daraja"
	"github.com/wantamink/pledgeservice/internal/pledge"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

const (
	resultAccepted = 0
	resultRejected = 1
)

// Ack is the acknowledgement MPESA expects from C2B and STK callbacks.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func ack(w http.ResponseWriter, status, code int, desc string) (Ack, error) {
	writeStatus(w, status)
	return Ack{ResultCode: code, ResultDesc: desc}, nil
}

// readNotification authenticates and verifies a C2B notification. On failure
// it returns the HTTP status and a client safe description.
func (r *routes) readNotification(c *fuego.ContextNoBody, log *zap.Logger) (pledge.Verified, int, string) {
	body, err := io.ReadAll(io.LimitReader(c.Req.Body, maxWebhookBody+1))
	if err != nil || len(body) > maxWebhookBody {
		return pledge.Verified{}, http.StatusBadRequest, "Unreadable payload"
	}

	err = r.WebhookAuth.Check(c.Req.Header.Get("Authorization"), c.Req.Header.Get("X-Webhook-Signature"), body)
	if err != nil {
		log.Warn("webhook rejected, bad credentials", zap.Bool("security", true))
		return pledge.Verified{}, http.StatusUnauthorized, "Unauthorized"
	}

	var n pledge.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		log.Info("webhook rejected, invalid json", zap.Error(err))
		return pledge.Verified{}, http.StatusBadRequest, "Malformed payload"
	}

	v, err := r.Verifier.Verify(n)
	switch {
	case err == nil:
		return v, 0, ""
	case errors.Is(err, pledge.ErrUnauthorizedShortcode):
		log.Warn("webhook rejected", zap.Error(err), zap.Bool("security", true))
		return v, http.StatusUnauthorized, "Unauthorized shortcode"
	default:
		log.Info("webhook rejected", zap.Error(err))
		return v, http.StatusBadRequest, err.Error()
	}
}

// MpesaConfirmation records a pledge for every valid C2B confirmation.
// Redeliveries of a known transaction are acknowledged as accepted.
func (r *routes) MpesaConfirmation(c *fuego.ContextNoBody) (Ack, error) {
	log := r.Logger.With(zap.String("request_id", requestID(c.Context())))

	v, status, desc := r.readNotification(c, log)
	if status != 0 {
		if status == http.StatusUnauthorized {
			r.Metrics.PledgeWebhook("unauthorized")
		} else {
			r.Metrics.PledgeWebhook("invalid")
		}
		return ack(c.Response(), status, resultRejected, desc)
	}

	outcome, err := r.Recorder.Record(c.Context(), v)
	if err != nil {
		r.Metrics.PledgeWebhook("error")
		log.Error("failed to record pledge", zap.Object("notification", v), zap.Error(err))
		return ack(c.Response(), http.StatusInternalServerError, resultRejected, "Processing failed")
	}
	r.Metrics.PledgeWebhook(outcome.String())

	desc = "Accepted"
	if outcome == pledge.OutcomeDuplicateTransaction {
		desc = "Already processed"
	}
	return ack(c.Response(), http.StatusOK, resultAccepted, desc)
}

// MpesaValidation answers the C2B validation request so that payments which
// could never become pledges are declined before money moves.
func (r *routes) MpesaValidation(c *fuego.ContextNoBody) (Ack, error) {
	log := r.Logger.With(zap.String("request_id", requestID(c.Context())))

	_, status, desc := r.readNotification(c, log)
	switch status {
	case 0:
		return ack(c.Response(), http.StatusOK, resultAccepted, "Accepted")
	case http.StatusUnauthorized:
		return ack(c.Response(), status, resultRejected, desc)
	}
	// the payment rail reads the result code, not the status
	return ack(c.Response(), http.StatusOK, resultRejected, desc)
}

type STKPushRequest struct {
	Phone  string `json:"phone"`
	County string `json:"county"`
}

type STKPushResponse struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
	CustomerMessage   string `json:"customerMessage"`
}

// STKPush prompts the payer's phone for the one shilling pledge payment.
func (r *routes) STKPush(c *fuego.ContextWithBody[STKPushRequest]) (any, error) {
	if r.Daraja == nil {
		return errorResponse(c.Response(), http.StatusServiceUnavailable, "mpesa payments are not configured")
	}
	client := clientKey(c.Req)
	if r.Limiter.IsLimited(c.Context(), client, config.EndpointSTKPush) {
		return errorResponse(c.Response(), http.StatusTooManyRequests, "too many payment requests, try again later")
	}

	body, err := c.Body()
	if err != nil {
		return errorResponse(c.Response(), http.StatusBadRequest, "invalid request body")
	}
	county, ok := pledge.CanonicalCounty(body.County)
	if !ok {
		return errorResponse(c.Response(), http.StatusBadRequest, "unknown county")
	}
	phone := pledge.NormalizePhone(body.Phone)
	if len(phone) != 12 || !strings.HasPrefix(phone, "254") {
		return errorResponse(c.Response(), http.StatusBadRequest, "invalid phone number")
	}

	callbackURL := r.CallbackURL
	if callbackURL == "" {
		callbackURL = calcCallbackUrl(c.Req, stkCallbackUrl)
	}
	resp, err := r.Daraja.STKPush(c.Context(), daraja.STKPushRequest{
		PhoneNumber:      phone,
		Amount:           int64(pledge.PledgeAmount),
		AccountReference: county,
		TransactionDesc:  "Pledge",
		CallbackURL:      callbackURL,
	})
	if err != nil {
		r.Logger.Error("stk push failed",
			zap.String("phone", pledge.RedactPhone(phone)),
			zap.Error(err))
		return errorResponse(c.Response(), http.StatusBadGateway, "payment request failed")
	}
	r.Limiter.Record(c.Context(), client, config.EndpointSTKPush)

	r.Logger.Info("stk push sent",
		zap.String("checkout_request_id", resp.CheckoutRequestID),
		zap.String("county", county),
		zap.String("phone", pledge.RedactPhone(phone)))
	writeStatus(c.Response(), http.StatusOK)
	return STKPushResponse{
		CheckoutRequestID: resp.CheckoutRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

type STKStatusResponse struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
	ResultCode        string `json:"resultCode"`
	ResultDesc        string `json:"resultDesc"`
	Paid              bool   `json:"paid"`
}

func (r *routes) STKStatus(c *fuego.ContextNoBody) (any, error) {
	if r.Daraja == nil {
		return errorResponse(c.Response(), http.StatusServiceUnavailable, "mpesa payments are not configured")
	}
	checkoutID := c.PathParam("checkoutID")
	status, err := r.Daraja.QuerySTKStatus(c.Context(), checkoutID)
	if err != nil {
		var apiErr *daraja.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return errorResponse(c.Response(), http.StatusNotFound, "unknown checkout request")
		}
		r.Logger.Error("stk status query failed", zap.String("checkout_request_id", checkoutID), zap.Error(err))
		return errorResponse(c.Response(), http.StatusBadGateway, "status query failed")
	}
	writeStatus(c.Response(), http.StatusOK)
	return STKStatusResponse{
		CheckoutRequestID: checkoutID,
		ResultCode:        string(status.ResultCode),
		ResultDesc:        status.ResultDesc,
		Paid:              status.Paid(),
	}, nil
}

type stkCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback logs the outcome of an STK push. Nothing is stored from it, so
// it is not authenticated; completed payments also reach the C2B
// confirmation url, which is where pledges are recorded.
func (r *routes) STKCallback(c *fuego.ContextNoBody) (Ack, error) {
	body, err := io.ReadAll(io.LimitReader(c.Req.Body, maxWebhookBody))
	if err != nil {
		return ack(c.Response(), http.StatusBadRequest, resultRejected, "Unreadable payload")
	}
	var cb stkCallback
	if err := json.Unmarshal(body, &cb); err != nil || cb.Body.StkCallback.CheckoutRequestID == "" {
		return ack(c.Response(), http.StatusBadRequest, resultRejected, "Malformed payload")
	}

	result := cb.Body.StkCallback
	r.Logger.Info("stk push completed",
		zap.String("checkout_request_id", result.CheckoutRequestID),
		zap.Int("result_code", result.ResultCode),
		zap.String("result_desc", result.ResultDesc))
	return ack(c.Response(), http.StatusOK, resultAccepted, "Accepted")
}
