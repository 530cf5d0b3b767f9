package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/auth"
	"github.com/velomail/velo/backend/internal/crypto"
	"github.com/velomail/velo/backend/internal/db"
	"github.com/velomail/velo/backend/internal/imap"
	"github.com/velomail/velo/backend/internal/models"
)

// AccountSavedFunc is called after an account's connection settings changed.
type AccountSavedFunc func(accountID string)

// AccountHandler reads and writes the IMAP settings of the authenticated account.
type AccountHandler struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
	onSaved   AccountSavedFunc
}

// NewAccountHandler creates an AccountHandler. onSaved may be nil.
func NewAccountHandler(pool *pgxpool.Pool, encryptor *crypto.Encryptor, onSaved AccountSavedFunc) *AccountHandler {
	return &AccountHandler{pool: pool, encryptor: encryptor, onSaved: onSaved}
}

// ServeHTTP dispatches GET and POST.
func (h *AccountHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.GetAccount(w, r)
	case http.MethodPost:
		h.PostAccount(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GetAccount returns the account settings without the password.
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	email, ok := auth.GetAccountEmailFromContext(ctx)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	account, err := db.GetAccountByEmail(ctx, h.pool, email)
	if errors.Is(err, db.ErrAccountNotFound) {
		http.Error(w, "Account not configured", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("AccountHandler: failed to get account")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, accountResponse(account))
}

// PostAccount saves the IMAP settings. The password may be omitted to keep the stored one.
func (h *AccountHandler) PostAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	email, ok := auth.GetAccountEmailFromContext(ctx)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.IMAPHost = strings.TrimSpace(req.IMAPHost)
	if req.IMAPHost == "" {
		http.Error(w, "imap_host is required", http.StatusBadRequest)
		return
	}
	if req.IMAPPort < 0 || req.IMAPPort > 65535 {
		http.Error(w, "imap_port is out of range", http.StatusBadRequest)
		return
	}

	account := &models.Account{
		Email:        email,
		IMAPHost:     req.IMAPHost,
		IMAPPort:     req.IMAPPort,
		IMAPSecurity: imap.NormalizeSecurity(req.IMAPSecurity),
		IMAPUsername: strings.TrimSpace(req.IMAPUsername),
	}

	if req.IMAPPassword != "" {
		sealed, err := h.encryptor.EncryptPassword(email, req.IMAPPassword)
		if err != nil {
			log.Error().Err(err).Msg("AccountHandler: failed to encrypt password")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		account.EncryptedIMAPPassword = sealed
	} else {
		existing, err := db.GetAccountByEmail(ctx, h.pool, email)
		if err != nil && !errors.Is(err, db.ErrAccountNotFound) {
			log.Error().Err(err).Msg("AccountHandler: failed to get account")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if existing == nil || len(existing.EncryptedIMAPPassword) == 0 {
			http.Error(w, "imap_password is required", http.StatusBadRequest)
			return
		}
	}

	if err := db.SaveAccount(ctx, h.pool, account); err != nil {
		log.Error().Err(err).Msg("AccountHandler: failed to save account")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	saved, err := db.GetAccount(ctx, h.pool, account.ID)
	if err != nil {
		log.Error().Err(err).Msg("AccountHandler: failed to reload account")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if h.onSaved != nil {
		h.onSaved(saved.ID)
	}

	WriteJSONResponse(w, accountResponse(saved))
}

func accountResponse(a *models.Account) models.AccountResponse {
	return models.AccountResponse{
		ID:              a.ID,
		Email:           a.Email,
		IMAPHost:        a.IMAPHost,
		IMAPPort:        a.IMAPPort,
		IMAPSecurity:    a.IMAPSecurity,
		IMAPUsername:    a.IMAPUsername,
		IMAPPasswordSet: len(a.EncryptedIMAPPassword) > 0,
		SyncToken:       a.SyncToken,
	}
}
