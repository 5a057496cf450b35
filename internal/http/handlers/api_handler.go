package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookdrop/backend/internal/core"
	"github.com/bookdrop/backend/internal/dropbox"
	"github.com/bookdrop/backend/internal/repo"
	"github.com/bookdrop/backend/internal/session"
	"github.com/bookdrop/backend/internal/webhook"
)

const oauthStateCookie = "bookdrop_oauth_state"

// APIHandler handles HTTP API requests
type APIHandler struct {
	accountService  *core.AccountService
	dispatchService *core.DispatchService
	verifier        *webhook.Verifier
	sessions        *session.Manager
	dropboxClient   dropbox.AuthClient
	logger          *zap.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(accountService *core.AccountService, dispatchService *core.DispatchService, verifier *webhook.Verifier, sessions *session.Manager, dropboxClient dropbox.AuthClient, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		accountService:  accountService,
		dispatchService: dispatchService,
		verifier:        verifier,
		sessions:        sessions,
		dropboxClient:   dropboxClient,
		logger:          logger.Named("api_handler"),
	}
}

// Routes returns the HTTP routes
func (h *APIHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(h.sessions.Middleware())

	r.Get("/health", h.GetHealth)
	r.Get("/", h.GetHome)

	// Provider link lifecycle
	r.Get("/login", h.Login)
	r.Get("/logout", h.Logout)
	r.Get("/dropbox-auth-finish", h.DropboxAuthFinish)
	r.Get("/dropbox-unlink", h.DropboxUnlink)

	// Forwarding controls
	r.Post("/activate", h.Activate)
	r.Post("/deactivate", h.Deactivate)
	r.Post("/added-bookmarklet", h.AddedBookmarklet)

	// Provider webhook: GET is the registration handshake, POST carries
	// signed change notifications.
	r.Get("/dropbox-webhook", h.WebhookChallenge)
	r.Post("/dropbox-webhook", h.WebhookNotify)

	return r
}

// GetHealth handles health check requests
func (h *APIHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, http.StatusOK, response)
}

// GetHome returns the home payload the frontend renders. Works logged out:
// the response then carries logged_in=false and blank account fields.
func (h *APIHandler) GetHome(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"logged_in":         false,
		"name":              "",
		"active":            false,
		"added_bookmarklet": false,
		"emailer":           "",
	}

	dropboxID, err := session.AccountID(r.Context())
	if err == nil {
		account, err := h.accountService.GetAccount(r.Context(), dropboxID)
		if err == nil {
			response["logged_in"] = true
			if account.DisplayName.Valid {
				response["name"] = account.DisplayName.String
			}
			response["active"] = account.Active
			response["added_bookmarklet"] = account.AddedBookmarklet
			response["emailer"] = account.Emailer
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// Login starts the provider OAuth flow
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.dropboxClient.AuthURL(state), http.StatusFound)
}

// Logout clears the session and redirects home
func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// DropboxAuthFinish completes the OAuth flow: exchanges the code, creates or
// refreshes the account, and starts the session.
func (h *APIHandler) DropboxAuthFinish(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || state != stateCookie.Value {
		h.writeError(w, http.StatusForbidden, "OAuth state mismatch", nil)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.writeError(w, http.StatusBadRequest, "Missing code parameter", nil)
		return
	}

	info, err := h.dropboxClient.Exchange(r.Context(), code)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Auth code exchange failed", err)
		return
	}

	account, err := h.accountService.LinkAccount(r.Context(), info.AccountID, info.DisplayName, info.AccessToken)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to link account", err)
		return
	}

	if err := h.sessions.Issue(w, account.DropboxID); err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to start session", err)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// DropboxUnlink severs the provider link and ends the session
func (h *APIHandler) DropboxUnlink(w http.ResponseWriter, r *http.Request) {
	dropboxID, err := session.AccountID(r.Context())
	if err != nil {
		h.writeError(w, http.StatusForbidden, "Not logged in", nil)
		return
	}

	if err := h.accountService.Unlink(r.Context(), dropboxID); err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			h.writeError(w, http.StatusForbidden, "Not logged in", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to unlink", err)
		return
	}

	h.sessions.Clear(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Activate handles the delivery-address submission. The body is a form with
// a kindle_names field holding a JSON-encoded list of strings; anything else
// about the list shape is a 400 with no state change.
func (h *APIHandler) Activate(w http.ResponseWriter, r *http.Request) {
	dropboxID, err := session.AccountID(r.Context())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Not logged in", nil)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid form body", err)
		return
	}
	if !r.PostForm.Has("kindle_names") {
		h.writeError(w, http.StatusBadRequest, "Missing kindle_names field", nil)
		return
	}

	var rawAddresses []string
	if err := json.Unmarshal([]byte(r.PostForm.Get("kindle_names")), &rawAddresses); err != nil {
		h.writeError(w, http.StatusBadRequest, "kindle_names must be a JSON list of strings", err)
		return
	}

	if err := h.accountService.Activate(r.Context(), dropboxID, rawAddresses); err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidAddressList):
			h.writeError(w, http.StatusBadRequest, "No valid delivery addresses", err)
		case errors.Is(err, repo.ErrAccountNotFound):
			h.writeError(w, http.StatusBadRequest, "Not logged in", nil)
		default:
			h.writeError(w, http.StatusInternalServerError, "Failed to activate", err)
		}
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// Deactivate turns forwarding off for the current account
func (h *APIHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	dropboxID, err := session.AccountID(r.Context())
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Not logged in", nil)
		return
	}

	if err := h.accountService.Deactivate(r.Context(), dropboxID); err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			h.writeError(w, http.StatusUnauthorized, "Not logged in", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to deactivate", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// AddedBookmarklet records that the user installed the bookmarklet
func (h *APIHandler) AddedBookmarklet(w http.ResponseWriter, r *http.Request) {
	dropboxID, err := session.AccountID(r.Context())
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Not logged in", nil)
		return
	}

	if err := h.accountService.MarkBookmarkletAdded(r.Context(), dropboxID); err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			h.writeError(w, http.StatusUnauthorized, "Not logged in", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to update account", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// WebhookChallenge answers the provider's registration handshake by echoing
// the challenge token. No auth, no side effects.
func (h *APIHandler) WebhookChallenge(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(r.URL.Query().Get("challenge")))
}

// WebhookNotify authenticates a change notification and fans it out into
// per-account sync jobs. A bad signature is a 403 with no processing.
func (h *APIHandler) WebhookNotify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	if !h.verifier.Verify(body, r.Header.Get(webhook.SignatureHeader)) {
		h.writeError(w, http.StatusForbidden, "Invalid signature", nil)
		return
	}

	enqueued, err := h.dispatchService.Dispatch(r.Context(), body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Malformed notification", err)
		return
	}

	h.logger.Debug("Webhook processed", zap.Int("jobs_enqueued", enqueued))
	w.WriteHeader(http.StatusOK)
}

// Helper methods

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, message string, err error) {
	h.logger.Warn("API error",
		zap.String("message", message),
		zap.Error(err),
		zap.Int("status", status))

	response := map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, status, response)
}
