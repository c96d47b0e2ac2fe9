// Package api exposes the vault over HTTP: read-only token queries, the
// relayer-facing inbound bridge delivery route, and JWT-guarded admin
// operations.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/relicvault/pkg/app/errors"
	"github.com/chainsafe/relicvault/pkg/auth"
	"github.com/chainsafe/relicvault/pkg/bridge"
	"github.com/chainsafe/relicvault/pkg/config"
	"github.com/chainsafe/relicvault/pkg/custody"
	"github.com/chainsafe/relicvault/pkg/policy"
	"github.com/chainsafe/relicvault/pkg/registry"
	"github.com/chainsafe/relicvault/pkg/vault"

	assetset "github.com/chainsafe/relicvault/pkg/assets"
)

// Handlers serves the vault API.
type Handlers struct {
	vault    *vault.Vault
	endpoint *bridge.Endpoint
	admin    common.Address
	decimals int32
	logger   *zap.Logger
}

func NewHandlers(v *vault.Vault, e *bridge.Endpoint, admin common.Address, decimals int32, logger *zap.Logger) *Handlers {
	return &Handlers{vault: v, endpoint: e, admin: admin, decimals: decimals, logger: logger}
}

// RegisterRoutes mounts the API. Admin routes are guarded by the validator.
func (h *Handlers) RegisterRoutes(r chi.Router, validator *auth.Validator) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/tokens/{id}", h.getToken)
		r.Get("/assets", h.listAssets)
		r.Get("/fees/{asset}", h.getFees)
		r.Get("/supply", h.getSupply)
		r.Post("/bridge/inbound", h.bridgeInbound)

		r.Route("/admin", func(r chi.Router) {
			r.Use(validator.Middleware)
			r.Post("/soulbound", h.mintSoulbound)
			r.Post("/fees/sweep", h.sweepFees)
			r.Post("/assets", h.addAsset)
			r.Delete("/assets/{asset}", h.removeAsset)
		})
	})
}

type custodyBalanceResponse struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type tokenResponse struct {
	ID             uint64                   `json:"id"`
	Classification string                   `json:"classification"`
	Owner          string                   `json:"owner"`
	Restricted     bool                     `json:"restricted"`
	URI            string                   `json:"uri"`
	Custody        []custodyBalanceResponse `json:"custody"`
	FusionLink     []uint64                 `json:"fusion_link,omitempty"`
}

func (h *Handlers) getToken(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, apperrors.New(apperrors.CategoryMalformedInput, err, "invalid token id"))
		return
	}
	rec, ok := h.vault.Token(id)
	if !ok {
		writeError(w, apperrors.New(apperrors.CategoryStateMismatch, registry.ErrTokenNotMinted, "token not found"))
		return
	}

	resp := tokenResponse{
		ID:             rec.ID,
		Classification: rec.Classification.String(),
		Owner:          rec.Owner.Hex(),
		Restricted:     rec.Restricted,
		URI:            rec.URI,
	}
	for _, bal := range h.vault.CustodyBalances(id) {
		resp.Custody = append(resp.Custody, custodyBalanceResponse{
			Asset:  bal.Asset.Hex(),
			Amount: bal.Amount.Dec(),
		})
	}
	if link, ok := h.vault.FusionLink(id); ok {
		resp.FusionLink = link[:]
	}
	writeJSON(w, http.StatusOK, resp)
}

type assetResponse struct {
	Asset string `json:"asset"`
	Price string `json:"price"`
	URI   string `json:"uri"`
}

func (h *Handlers) listAssets(w http.ResponseWriter, _ *http.Request) {
	entries := h.vault.Assets()
	out := make([]assetResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, assetResponse{Asset: e.Asset.Hex(), Price: e.Price.Dec(), URI: e.URI})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getFees(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "asset")
	if !common.IsHexAddress(raw) {
		writeError(w, apperrors.New(apperrors.CategoryMalformedInput, nil, "invalid asset address"))
		return
	}
	asset := common.HexToAddress(raw)
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":   asset.Hex(),
		"accrued": h.vault.Fees(asset).Dec(),
	})
}

func (h *Handlers) getSupply(w http.ResponseWriter, _ *http.Request) {
	baseAllocated, baseCap, giftAllocated, giftCap, premiumAllocated := h.vault.Supply()
	writeJSON(w, http.StatusOK, map[string]uint64{
		"base_allocated":    baseAllocated,
		"base_cap":          baseCap,
		"gift_allocated":    giftAllocated,
		"gift_cap":          giftCap,
		"premium_allocated": premiumAllocated,
	})
}

type inboundRequest struct {
	Origin  uint32 `json:"origin"`
	Nonce   uint64 `json:"nonce"`
	Payload string `json:"payload"`
	Relayer string `json:"relayer"`
}

func (h *Handlers) bridgeInbound(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CategoryMalformedInput, err, "invalid JSON"))
		return
	}
	wire, err := hexutil.Decode(req.Payload)
	if err != nil {
		writeError(w, apperrors.New(apperrors.CategoryMalformedInput, err, "invalid payload hex"))
		return
	}
	var relayer common.Address
	if req.Relayer != "" {
		if !common.IsHexAddress(req.Relayer) {
			writeError(w, apperrors.New(apperrors.CategoryMalformedInput, nil, "invalid relayer address"))
			return
		}
		relayer = common.HexToAddress(req.Relayer)
	}

	if err := h.endpoint.Receive(r.Context(), req.Origin, req.Nonce, wire, relayer); err != nil {
		writeError(w, categorize(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"applied": true})
}

type soulboundRequest struct {
	Recipient string `json:"recipient"`
	URI       string `json:"uri"`
}

func (h *Handlers) mintSoulbound(w http.ResponseWriter, r *http.Request) {
	var req soulboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CategoryMalformedInput, err, "invalid JSON"))
		return
	}
	if !common.IsHexAddress(req.Recipient) {
		writeError(w, apperrors.New(apperrors.CategoryMalformedInput, nil, "invalid recipient address"))
		return
	}

	id, err := h.vault.MintSoulbound(h.admin, common.HexToAddress(req.Recipient), req.URI)
	if err != nil {
		writeError(w, categorize(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"token_id": id})
}

type sweepRequest struct {
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
}

func (h *Handlers) sweepFees(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CategoryMalformedInput, err, "invalid JSON"))
		return
	}
	if !common.IsHexAddress(req.Asset) || !common.IsHexAddress(req.Recipient) {
		writeError(w, apperrors.New(apperrors.CategoryMalformedInput, nil, "invalid address"))
		return
	}

	amount, err := h.vault.SweepFees(h.admin, common.HexToAddress(req.Asset), common.HexToAddress(req.Recipient))
	if err != nil {
		writeError(w, categorize(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"swept": amount.Dec()})
}

type addAssetRequest struct {
	Asset string `json:"asset"`
	Price string `json:"price"`
	URI   string `json:"uri"`
}

func (h *Handlers) addAsset(w http.ResponseWriter, r *http.Request) {
	var req addAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CategoryMalformedInput, err, "invalid JSON"))
		return
	}
	if !common.IsHexAddress(req.Asset) {
		writeError(w, apperrors.New(apperrors.CategoryMalformedInput, nil, "invalid asset address"))
		return
	}
	price, err := config.ParseAmount(req.Price, h.decimals)
	if err != nil {
		writeError(w, apperrors.New(apperrors.CategoryMalformedInput, err, "invalid price"))
		return
	}

	err = h.vault.AddAsset(h.admin, assetset.Entry{
		Asset: common.HexToAddress(req.Asset),
		Price: price,
		URI:   req.URI,
	})
	if err != nil {
		writeError(w, categorize(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"added": true})
}

func (h *Handlers) removeAsset(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "asset")
	if !common.IsHexAddress(raw) {
		writeError(w, apperrors.New(apperrors.CategoryMalformedInput, nil, "invalid asset address"))
		return
	}
	if err := h.vault.RemoveAsset(h.admin, common.HexToAddress(raw)); err != nil {
		writeError(w, categorize(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// categorize maps domain errors onto the failure taxonomy.
func categorize(err error) error {
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		return err
	}

	var existsErr *vault.TokenAlreadyExistsError
	var soulboundDst *bridge.SoulboundDestinationError
	switch {
	case errors.As(err, &existsErr),
		errors.Is(err, vault.ErrSameTokenUnderlyingAssets),
		errors.Is(err, registry.ErrTokenAlreadyMinted):
		return apperrors.New(apperrors.CategoryIdentityConflict, err, "")
	case errors.As(err, &soulboundDst),
		errors.Is(err, policy.ErrCannotTransferSoulboundToken),
		errors.Is(err, policy.ErrPaused):
		return apperrors.New(apperrors.CategoryPolicy, err, "")
	case errors.Is(err, vault.ErrUnauthorizedAdmin),
		errors.Is(err, vault.ErrOnlyTokenOwnerCanFuseTokens),
		errors.Is(err, vault.ErrOnlyTokenOwnerCanUnfuseTokens),
		errors.Is(err, vault.ErrOnlyTokenOwnerCanBurnTokens),
		errors.Is(err, registry.ErrInsufficientApproval):
		return apperrors.New(apperrors.CategoryAuthorization, err, "")
	case errors.Is(err, vault.ErrCanOnlyFuseBaseTokens),
		errors.Is(err, vault.ErrCanOnlyUnfuseFusedTokens),
		errors.Is(err, vault.ErrUnfuseTokenBeforeBurning),
		errors.Is(err, registry.ErrTokenNotMinted),
		errors.Is(err, bridge.ErrUnknownToken):
		return apperrors.New(apperrors.CategoryStateMismatch, err, "")
	case errors.Is(err, vault.ErrMintingClosed),
		errors.Is(err, vault.ErrBaseSupplyExhausted),
		errors.Is(err, vault.ErrGiftSupplyExhausted):
		return apperrors.New(apperrors.CategoryCapacity, err, "")
	case errors.Is(err, custody.ErrInsufficientAllowance),
		errors.Is(err, custody.ErrInsufficientBalance),
		errors.Is(err, custody.ErrTransferFailed):
		return apperrors.New(apperrors.CategoryAccounting, err, "")
	case errors.Is(err, bridge.ErrMissingComposedMessage),
		errors.Is(err, bridge.ErrMalformedMessage),
		errors.Is(err, bridge.ErrMalformedEnvelope),
		errors.Is(err, bridge.ErrMalformedPayload),
		errors.Is(err, vault.ErrInvalidTokenID):
		return apperrors.New(apperrors.CategoryMalformedInput, err, "")
	default:
		return apperrors.General(err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	var svcErr *apperrors.ServiceError
	if !errors.As(err, &svcErr) {
		svcErr = &apperrors.ServiceError{Category: apperrors.CategoryGeneral, Message: "Internal Server Error"}
	}
	writeJSON(w, svcErr.StatusCode(), map[string]any{
		"error":    svcErr.Message,
		"category": svcErr.Category.String(),
	})
}
