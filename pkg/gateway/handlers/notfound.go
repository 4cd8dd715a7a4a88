package handlers

import (
	"net/http"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/gateway/apierror"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, apierror.Envelope{Error: &core.Error{
		Type:      core.ErrNotFound,
		Message:   "unknown route: " + r.Method + " " + r.URL.Path,
		RequestID: requestID(r),
	}})
}
