package handler

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/captchaocr/internal/api/response"
	"github.com/kiranshivaraju/captchaocr/internal/imaging"
	"github.com/kiranshivaraju/captchaocr/internal/jobs"
	"github.com/kiranshivaraju/captchaocr/internal/store"
	"github.com/kiranshivaraju/captchaocr/pkg/models"
)

// JobService defines the interface the captcha handlers depend on.
type JobService interface {
	Submit(ctx context.Context, img image.Image, apiKey string) (string, error)
	Result(ctx context.Context, id string) (models.JobRecord, error)
}

type uploadResponse struct {
	CaptchaID string `json:"captcha_id"`
}

// NewUploadHandler returns an http.HandlerFunc for POST /upload.
func NewUploadHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				response.Error(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			response.Error(w, http.StatusBadRequest, "No data provided")
			return
		}
		if len(body) == 0 {
			response.Error(w, http.StatusBadRequest, "No data provided")
			return
		}

		apiKey := stringField(body, "api_key")
		if apiKey == "" {
			response.Error(w, http.StatusUnauthorized, "Missing API key")
			return
		}

		payload := stringField(body, "image")
		if payload == "" {
			response.Error(w, http.StatusBadRequest, "No image data provided")
			return
		}

		img, _, err := imaging.DecodeBase64(payload)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid base64 image: "+err.Error())
			return
		}

		id, err := svc.Submit(r.Context(), img, apiKey)
		if err != nil {
			if errors.Is(err, jobs.ErrShuttingDown) {
				response.Error(w, http.StatusServiceUnavailable, "Service is shutting down")
				return
			}
			response.Error(w, http.StatusInternalServerError, "Unexpected error: "+err.Error())
			return
		}

		response.OK(w, uploadResponse{CaptchaID: id})
	}
}

// NewResultHandler returns an http.HandlerFunc for GET /result/{captcha_id}.
func NewResultHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "captcha_id")

		rec, err := svc.Result(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "invalid captcha id")
			case errors.Is(err, store.ErrCorruptStore):
				response.Error(w, http.StatusInternalServerError, store.ErrCorruptStore.Error())
			default:
				response.Error(w, http.StatusInternalServerError, "Unexpected error: "+err.Error())
			}
			return
		}

		response.OK(w, rec)
	}
}

// stringField returns body[key] when it is a string; any other type counts as missing.
func stringField(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}
