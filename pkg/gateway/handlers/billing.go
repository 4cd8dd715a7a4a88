package handlers

import (
	"io"
	"net/http"

	"github.com/hypley-ia/hypley-live/pkg/billing"
	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
)

// BillingHandler serves the pack catalog, starts Stripe checkouts, and
// settles webhooks. The webhook is mounted on the public mux because Stripe
// authenticates with its signature header, not a bearer token.
type BillingHandler struct {
	Billing *billing.Service
	Config  config.Config
}

type packPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Tokens     int64  `json:"tokens"`
	PriceCents int64  `json:"price_cents"`
}

func (h *BillingHandler) ListPacks(w http.ResponseWriter, r *http.Request) {
	out := make([]packPayload, 0, len(billing.Packs))
	for _, p := range billing.Packs {
		out = append(out, packPayload{ID: p.ID, Name: p.Name, Tokens: p.Tokens, PriceCents: p.PriceCents})
	}
	writeJSON(w, http.StatusOK, map[string]any{"packs": out})
}

func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		PackID string `json:"pack_id"`
	}
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	url, err := h.Billing.CreateCheckout(r.Context(), p.ID(), req.PackID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
}

func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, r, core.NewInvalidRequestError("webhook body unreadable"))
		return
	}
	if err := h.Billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
