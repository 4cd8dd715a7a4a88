// Package billing sells token packs through Stripe Checkout. The webhook is
// the only writer of purchased tokens, and it always increments.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	stripe "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

// Pack is one purchasable token bundle.
type Pack struct {
	ID     string
	Name   string
	Tokens int64
	// PriceCents in BRL.
	PriceCents int64
}

// Packs is the catalog. Small, medium, large.
var Packs = []Pack{
	{ID: "starter", Name: "Pacote Inicial", Tokens: 500_000, PriceCents: 1990},
	{ID: "plus", Name: "Pacote Plus", Tokens: 2_000_000, PriceCents: 5990},
	{ID: "pro", Name: "Pacote Pro", Tokens: 6_000_000, PriceCents: 14990},
}

// PackByID looks up a catalog entry.
func PackByID(id string) (Pack, bool) {
	for _, p := range Packs {
		if p.ID == id {
			return p, true
		}
	}
	return Pack{}, false
}

// Granter applies purchased tokens to an account.
type Granter interface {
	GrantTokens(ctx context.Context, userID string, tokens int64) error
}

// Config carries the Stripe keys and redirect URLs.
type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// Service creates checkout sessions and settles webhooks.
type Service struct {
	cfg     Config
	granter Granter
	logger  *slog.Logger
}

// New wires the Stripe client key once. logger may be nil.
func New(cfg Config, granter Granter, logger *slog.Logger) *Service {
	stripe.Key = cfg.SecretKey
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, granter: granter, logger: logger}
}

// CreateCheckout opens a Checkout Session for one pack and returns its URL.
// The user and pack ride in metadata so the webhook can settle without extra
// lookups.
func (s *Service) CreateCheckout(ctx context.Context, userID, packID string) (string, error) {
	pack, ok := PackByID(packID)
	if !ok {
		return "", core.NewInvalidRequestErrorWithParam("unknown pack "+packID, "pack_id")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.cfg.SuccessURL),
		CancelURL:  stripe.String(s.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("brl"),
				UnitAmount: stripe.Int64(pack.PriceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(pack.Name),
				},
			},
		}},
		Metadata: map[string]string{
			"user_id": userID,
			"pack_id": pack.ID,
			"tokens":  strconv.FormatInt(pack.Tokens, 10),
		},
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return "", core.NewTransportError("stripe checkout failed", err)
	}
	return sess.URL, nil
}

// HandleWebhook verifies a webhook payload and applies completed checkouts.
// Unknown event types are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.cfg.WebhookSecret)
	if err != nil {
		return core.NewAuthenticationError("invalid webhook signature")
	}
	if event.Type != "checkout.session.completed" {
		return nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return core.NewInvalidRequestError("malformed checkout session payload")
	}
	userID := sess.Metadata["user_id"]
	tokens, perr := strconv.ParseInt(sess.Metadata["tokens"], 10, 64)
	if userID == "" || perr != nil || tokens <= 0 {
		return core.NewInvalidRequestError("checkout session missing grant metadata")
	}

	if err := s.granter.GrantTokens(ctx, userID, tokens); err != nil {
		return fmt.Errorf("billing: grant after checkout: %w", err)
	}
	s.logger.Info("token pack settled", "user_id", userID, "pack_id", sess.Metadata["pack_id"], "tokens", tokens)
	return nil
}
