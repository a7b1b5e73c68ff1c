package wallethandler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/custodial-wallet-backend/api"
	"github.com/ruteri/custodial-wallet-backend/auth"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/shopspring/decimal"
)

// hbarExponent converts tinybars to hbars.
const hbarExponent = -8

// Handler serves wallet onboarding and wallet management for the
// authenticated user.
type Handler struct {
	wallets interfaces.WalletProvisioner
	log     *slog.Logger
}

// NewHandler creates the onboarding handler.
func NewHandler(wallets interfaces.WalletProvisioner, log *slog.Logger) *Handler {
	return &Handler{
		wallets: wallets,
		log:     log,
	}
}

// RegisterRoutes configures r with the onboarding endpoints:
//   - GET /onboarding/status
//   - POST /onboarding/start
//   - POST /wallet/create
//   - GET /wallet/get
//   - GET /wallet/balance
//   - DELETE /wallet/delete
//
// r must authenticate requests with auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/onboarding/status", h.HandleStatus)
	r.Post("/onboarding/start", h.HandleStart)
	r.Post("/wallet/create", h.HandleCreate)
	r.Get("/wallet/get", h.HandleGet)
	r.Get("/wallet/balance", h.HandleBalance)
	r.Delete("/wallet/delete", h.HandleDelete)
}

// HandleStatus reports whether the user has an active wallet.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	subject, ok := auth.RequireSubject(w, r, h.log)
	if !ok {
		return
	}

	rec, err := h.wallets.Status(r.Context(), subject.UserID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, api.OnboardingStatusResponse{
		Success:   true,
		HasWallet: rec != nil && rec.Status == interfaces.WalletActive,
		Wallet:    api.NewWallet(rec),
	})
}

// HandleStart provisions the user's wallet, or returns the existing one.
//
// Status codes:
//   - 200 OK: wallet active
//   - 402 Payment Required: operator cannot fund the account
//   - 409 Conflict: provisioning still in progress, retry later
//   - 503 Service Unavailable: ledger or operator unavailable
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	subject, ok := auth.RequireSubject(w, r, h.log)
	if !ok {
		return
	}

	rec, err := h.wallets.Provision(r.Context(), subject)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, api.OnboardingStartResponse{
		Success:         true,
		HasWallet:       true,
		HederaAccountID: rec.LedgerAccountID,
		PublicKey:       rec.PublicKey,
		EVMAddress:      rec.EVMAddress,
		Network:         rec.Network,
		InitialBalance:  rec.FundedBalance,
		NeedsFunding:    rec.FundedBalance == 0,
	})
}

// HandleCreate provisions the user's wallet and returns the full record.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	subject, ok := auth.RequireSubject(w, r, h.log)
	if !ok {
		return
	}

	rec, err := h.wallets.Provision(r.Context(), subject)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.WalletResponse{Success: true, Wallet: api.NewWallet(rec)})
}

// HandleGet returns the user's wallet record in whatever state it is in.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	subject, ok := auth.RequireSubject(w, r, h.log)
	if !ok {
		return
	}

	rec, err := h.wallets.Status(r.Context(), subject.UserID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	if rec == nil {
		api.WriteError(w, h.log, interfaces.NewError(interfaces.KindNotFound, "no wallet found", nil))
		return
	}
	api.WriteJSON(w, http.StatusOK, api.WalletResponse{Success: true, Wallet: api.NewWallet(rec)})
}

// HandleBalance queries the ledger balance of the user's wallet.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	subject, ok := auth.RequireSubject(w, r, h.log)
	if !ok {
		return
	}

	balance, err := h.wallets.Balance(r.Context(), subject.UserID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	tokens := balance.Tokens
	if tokens == nil {
		tokens = map[string]uint64{}
	}
	api.WriteJSON(w, http.StatusOK, api.BalanceResponse{
		Success:   true,
		AccountID: balance.AccountID,
		Hbars:     decimal.New(balance.Tinybars, hbarExponent).String(),
		Tinybars:  balance.Tinybars,
		Tokens:    tokens,
	})
}

// HandleDelete closes the user's ledger account and removes the wallet.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	subject, ok := auth.RequireSubject(w, r, h.log)
	if !ok {
		return
	}

	txID, err := h.wallets.Delete(r.Context(), subject)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	h.log.Info("Wallet deleted", "userId", subject.UserID, "txId", txID)
	api.WriteJSON(w, http.StatusOK, api.DeleteWalletResponse{Success: true, TransactionID: txID})
}
