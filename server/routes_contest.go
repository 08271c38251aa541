package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-fuego/fuego"
	"github.com/wantamink/pledgeservice/internal/config"
	"github.com/wantamink/pledgeservice/internal/contest"
	"github.com/wantamink/pledgeservice/internal/models"
	"go.uber.org/zap"
)

type MemesResponse struct {
	Year  int                `json:"year"`
	Week  int                `json:"week"`
	Memes []models.MemeEntry `json:"memes"`
}

func (r *routes) ListMemes(c *fuego.ContextNoBody) (*View[MemesResponse], error) {
	week, memes, err := r.Submissions.List(c.Context())
	if err != nil {
		r.Logger.Error("failed to list memes", zap.Error(err))
		return nil, err
	}
	return newView(MemesResponse{Year: week.Year, Week: week.Number, Memes: memes}, renderMemes), nil
}

type SubmitMemeRequest struct {
	URL string `json:"url"`
}

// SubmitMeme enters the session user's meme into this week's contest.
func (r *routes) SubmitMeme(c *fuego.ContextWithBody[SubmitMemeRequest]) (any, error) {
	uid, err := r.getLoginUidCookie(c.Req)
	if err != nil {
		return errorResponse(c.Response(), http.StatusUnauthorized, "sign in to submit a meme")
	}
	client := clientKey(c.Req)
	if r.Limiter.IsLimited(c.Context(), client, config.EndpointMemeSubmit) {
		return errorResponse(c.Response(), http.StatusTooManyRequests, "too many submissions, try again later")
	}

	body, err := c.Body()
	if err != nil {
		return errorResponse(c.Response(), http.StatusBadRequest, "invalid request body")
	}

	meme, err := r.Submissions.Submit(c.Context(), uid, body.URL)
	switch {
	case err == nil:
	case errors.Is(err, contest.ErrInvalidURL):
		return errorResponse(c.Response(), http.StatusBadRequest, err.Error())
	case errors.Is(err, contest.ErrNotVerified):
		return errorResponse(c.Response(), http.StatusForbidden, err.Error())
	case errors.Is(err, contest.ErrAlreadySubmitted):
		return errorResponse(c.Response(), http.StatusConflict, err.Error())
	default:
		return errorResponse(c.Response(), http.StatusInternalServerError, "internal error")
	}

	r.Limiter.Record(c.Context(), client, config.EndpointMemeSubmit)
	writeStatus(c.Response(), http.StatusCreated)
	return meme, nil
}

type VoteRequest struct {
	MemeID  string `json:"memeId"`
	VoterID string `json:"voterId"`
}

type VoteResponse struct {
	Success bool   `json:"success"`
	MemeID  string `json:"memeId"`
	Week    int    `json:"week"`
}

// Vote casts the session user's single vote of the week. A voterId in the
// body is only accepted when it names the session user.
func (r *routes) Vote(c *fuego.ContextWithBody[VoteRequest]) (any, error) {
	client := clientKey(c.Req)
	if r.Limiter.IsLimited(c.Context(), client, config.EndpointMemeVote) {
		return errorResponse(c.Response(), http.StatusTooManyRequests, "too many votes, try again later")
	}

	body, err := c.Body()
	if err != nil {
		return errorResponse(c.Response(), http.StatusBadRequest, "invalid request body")
	}
	memeID := strings.TrimSpace(body.MemeID)
	voterID := strings.TrimSpace(body.VoterID)

	uid, err := r.getLoginUidCookie(c.Req)
	if err != nil {
		return errorResponse(c.Response(), http.StatusUnauthorized, "sign in to vote")
	}
	if voterID != "" && voterID != uid {
		r.Logger.Warn("vote rejected, voter does not match session",
			zap.String("session_user_id", uid),
			zap.Bool("security", true))
		return errorResponse(c.Response(), http.StatusForbidden, "voter does not match session")
	}
	voterID = uid
	if memeID == "" {
		return errorResponse(c.Response(), http.StatusBadRequest, "memeId is required")
	}

	vote, err := r.Coordinator.CastVote(c.Context(), voterID, memeID)
	switch {
	case err == nil:
	case errors.Is(err, contest.ErrAlreadyVoted):
		return errorResponse(c.Response(), http.StatusConflict, err.Error())
	case errors.Is(err, contest.ErrMemeNotFound):
		return errorResponse(c.Response(), http.StatusNotFound, err.Error())
	case errors.Is(err, contest.ErrNotVerified),
		errors.Is(err, contest.ErrSelfVote),
		errors.Is(err, contest.ErrStaleMeme):
		return errorResponse(c.Response(), http.StatusForbidden, err.Error())
	default:
		return errorResponse(c.Response(), http.StatusInternalServerError, "internal error")
	}

	r.Limiter.Record(c.Context(), client, config.EndpointMemeVote)
	writeStatus(c.Response(), http.StatusOK)
	return VoteResponse{Success: true, MemeID: vote.MemeID, Week: vote.Week}, nil
}
