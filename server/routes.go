package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-fuego/fuego"
	"github.com/gorilla/securecookie"
	"github.com/wantamink/pledgeservice/internal/contest"
	"github.com/wantamink/pledgeservice/internal/daraja"
	"github.com/wantamink/pledgeservice/internal/models"
	"github.com/wantamink/pledgeservice/internal/pledge"
	"github.com/wantamink/pledgeservice/internal/ratelimit"
	"github.com/wantamink/pledgeservice/internal/store"
	"github.com/wantamink/pledgeservice/internal/telemetry"
	"github.com/wantamink/pledgeservice/internal/tip"
	"go.uber.org/zap"
)

const (
	profileUrl          = "/profile"
	stkCallbackUrl      = "/api/mpesa/stkpush/callback"
	sessionCookieName   = "uid"
	countiesCacheMaxAge = 30
)

type routes struct {
	Logger  *zap.Logger
	Metrics *telemetry.Metrics

	Store        *store.Store
	Hasher       *pledge.PhoneHasher
	Verifier     *pledge.Verifier
	WebhookAuth  *pledge.WebhookAuth
	Recorder     *pledge.Recorder
	Tally        *pledge.Tally
	Limiter      *ratelimit.Limiter
	Coordinator  *contest.Coordinator
	Submissions  *contest.Submissions
	SecureCookie *securecookie.SecureCookie
	Tips         *tip.Builder

	// Daraja is nil when MPESA API credentials are not configured.
	Daraja      *daraja.Client
	CallbackURL string
}

func (r *routes) RegisterRoutes(s *fuego.Server) {
	fuego.Get(s, "/", r.Home)
	fuego.Get(s, "/api", r.Status)

	fuego.Post(s, "/api/mpesa/callback", r.MpesaConfirmation)
	fuego.Post(s, "/api/mpesa/validation", r.MpesaValidation)
	fuego.Post(s, "/api/mpesa/stkpush", r.STKPush)
	fuego.Post(s, stkCallbackUrl, r.STKCallback)
	fuego.Get(s, "/api/mpesa/stkpush/{checkoutID}", r.STKStatus)

	fuego.Get(s, "/api/pledges/counties", r.Counties)

	fuego.Post(s, "/api/session", r.Login)
	fuego.Get(s, "/logout", r.Logout)
	fuego.Get(s, profileUrl, r.Profile)

	fuego.Get(s, "/api/memes", r.ListMemes)
	fuego.Post(s, "/api/memes", r.SubmitMeme)
	fuego.Post(s, "/api/memes/vote", r.Vote)

	fuego.Post(s, "/api/solana/tip", r.SolanaTip)

	fuego.GetStd(s, "/metrics", r.Metrics.Handler().ServeHTTP)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// writeStatus sets the status before fuego serializes the answer, so the
// content type has to be set here as well.
func writeStatus(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
}

func errorResponse(w http.ResponseWriter, code int, msg string) (*ErrorResponse, error) {
	writeStatus(w, code)
	return &ErrorResponse{Error: msg}, nil
}

type StatusResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (r *routes) Status(c *fuego.ContextNoBody) (StatusResponse, error) {
	return StatusResponse{
		Message: "Pledge and meme contest API",
		Status:  "online",
	}, nil
}

func (r *routes) Home(c *fuego.ContextNoBody) (fuego.Gomponent, error) {
	counts, err := r.Tally.Counts(c.Context())
	if err != nil {
		r.Logger.Warn("home page without county counts", zap.Error(err))
	}
	return renderHome(counts), nil
}

func (r *routes) Counties(c *fuego.ContextNoBody) (*View[[]models.CountyCount], error) {
	counts, err := r.Tally.Counts(c.Context())
	if err != nil {
		r.Logger.Error("failed to load county counts", zap.Error(err))
		return nil, err
	}
	c.Response().Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", countiesCacheMaxAge))
	return newView(counts, renderCounties), nil
}

func (r *routes) setLoginUidCookie(w http.ResponseWriter, uid string) error {
	cookie, err := r.SecureCookie.Encode(sessionCookieName, uid)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    cookie,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

var errNoSession = errors.New("no session")

func (r *routes) getLoginUidCookie(req *http.Request) (string, error) {
	uidCookie, err := req.Cookie(sessionCookieName)
	if err != nil {
		return "", errNoSession
	}
	var uid string
	err = r.SecureCookie.Decode(sessionCookieName, uidCookie.Value, &uid)
	if err != nil {
		return "", fmt.Errorf("invalid uid cookie")
	}
	return uid, nil
}

type LoginRequest struct {
	Phone         string `json:"phone"`
	TransactionID string `json:"transactionId"`
}

type LoginResponse struct {
	UserID     string    `json:"userId"`
	County     string    `json:"county"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

// Login starts a session for a verified payer. The MPESA receipt code of the
// last pledge payment proves the caller owns the phone number.
func (r *routes) Login(c *fuego.ContextWithBody[LoginRequest]) (any, error) {
	body, err := c.Body()
	if err != nil {
		return errorResponse(c.Response(), http.StatusBadRequest, "invalid request body")
	}
	phone := strings.TrimSpace(body.Phone)
	txID := strings.TrimSpace(body.TransactionID)
	if phone == "" || txID == "" {
		return errorResponse(c.Response(), http.StatusBadRequest, "phone and transactionId are required")
	}

	uid := r.Hasher.Digest(phone)
	user, err := r.Store.FindVerifiedUser(c.Context(), uid)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errorResponse(c.Response(), http.StatusForbidden, "phone number has not pledged")
	case err != nil:
		r.Logger.Error("failed to look up verified user", zap.Error(err))
		return errorResponse(c.Response(), http.StatusInternalServerError, "internal error")
	}
	if !strings.EqualFold(user.LastTransactionID, txID) {
		r.Logger.Warn("session rejected, receipt mismatch",
			zap.String("user_id", uid),
			zap.Bool("security", true))
		return errorResponse(c.Response(), http.StatusForbidden, "transaction does not match")
	}

	if err := r.setLoginUidCookie(c.Response(), uid); err != nil {
		r.Logger.Error("failed to encode session cookie", zap.Error(err))
		return errorResponse(c.Response(), http.StatusInternalServerError, "internal error")
	}
	writeStatus(c.Response(), http.StatusOK)
	return LoginResponse{
		UserID:     uid,
		County:     user.County,
		VerifiedAt: user.VerifiedAt,
	}, nil
}

func (r *routes) Logout(c *fuego.ContextNoBody) (any, error) {
	// expire uid cookie
	c.SetCookie(http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(-time.Hour),
	})
	return c.Redirect(http.StatusTemporaryRedirect, "/")
}

type ProfileResponse struct {
	ID       string               `json:"id"`
	Verified *models.VerifiedUser `json:"verified,omitempty"`
}

func (r *routes) Profile(c *fuego.ContextNoBody) (any, error) {
	uid, err := r.getLoginUidCookie(c.Req)
	if err != nil {
		return c.Redirect(http.StatusTemporaryRedirect, "/")
	}
	resp := ProfileResponse{ID: uid}
	user, err := r.Store.FindVerifiedUser(c.Context(), uid)
	switch {
	case err == nil:
		resp.Verified = user
	case !errors.Is(err, store.ErrNotFound):
		r.Logger.Error("failed to load profile", zap.Error(err))
		return nil, err
	}
	return newView(resp, renderProfile), nil
}

// calcCallbackUrl builds an absolute url on the host the request came in on.
func calcCallbackUrl(req *http.Request, uri string) string {
	host := req.Host
	scheme := "https://"
	if strings.Contains(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") {
		scheme = "http://"
	}
	return scheme + host + uri
}

// clientKey identifies the caller for rate limiting. proxyHeaders has
// already replaced RemoteAddr when proxy headers are trusted.
func clientKey(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
