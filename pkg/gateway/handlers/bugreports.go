package handlers

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

type BugReportStore interface {
	CreateBugReport(ctx context.Context, userID, description, screenshotURL string) (store.BugReport, error)
}

// BugReportsHandler files user bug reports, optionally with a screenshot that
// lands in blob storage.
type BugReportsHandler struct {
	Store  BugReportStore
	Blob   BlobUploader
	Config config.Config
	Logger *slog.Logger
}

func (h *BugReportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Description   string `json:"description"`
		ScreenshotB64 string `json:"screenshot_b64"`
	}
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Description == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("description is required", "description"))
		return
	}

	screenshotURL := ""
	if req.ScreenshotB64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.ScreenshotB64)
		if err != nil {
			writeError(w, r, core.NewInvalidRequestErrorWithParam("screenshot_b64 is not valid base64", "screenshot_b64"))
			return
		}
		if h.Blob == nil {
			writeError(w, r, core.NewInvalidRequestError("screenshot uploads are not enabled"))
			return
		}
		screenshotURL, err = h.Blob.Upload(r.Context(), "bugreports", ".png", "image/png", data)
		if err != nil {
			h.Logger.Warn("screenshot upload failed", "error", err)
			screenshotURL = ""
		}
	}

	report, err := h.Store.CreateBugReport(r.Context(), p.ID(), req.Description, screenshotURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBugReportPayload(report))
}
