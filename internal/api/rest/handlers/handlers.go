// Package handlers provides endpoint handling functionality.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	handlersErrors "github.com/capitalengine/capitalengine/internal/api/rest/errors"
	"github.com/capitalengine/capitalengine/internal/api/rest/middleware"
	"github.com/capitalengine/capitalengine/internal/config"
	"github.com/capitalengine/capitalengine/internal/models/modeldto"
	"github.com/capitalengine/capitalengine/internal/service/broadcast"
	"github.com/capitalengine/capitalengine/internal/service/processor"
	serviceErrors "github.com/capitalengine/capitalengine/internal/service/processor/errors"
	storageErrors "github.com/capitalengine/capitalengine/internal/storage/errors"
	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
)

const handlerTimeout = 500 * time.Millisecond

// Handler defines attributes of a struct available to its methods.
type Handler struct {
	service      processor.Processor
	broadcaster  *broadcast.Broadcaster
	serverConfig *config.ServerConfig
	log          *zerolog.Logger
}

type sessionResponse struct {
	Token string         `json:"token"`
	User  *modeldto.User `json:"user"`
}

type adminSessionResponse struct {
	Token string `json:"token"`
}

// InitHandlers initializes endpoint handlers.
func InitHandlers(mainService processor.Processor, broadcaster *broadcast.Broadcaster, serverConfig *config.ServerConfig, log *zerolog.Logger) (*Handler, error) {
	if mainService == nil {
		return nil, &handlersErrors.HandlersFoundNilArgument{Msg: "nil processor was passed to handlers initializer"}
	}
	if broadcaster == nil {
		return nil, &handlersErrors.HandlersFoundNilArgument{Msg: "nil broadcaster was passed to handlers initializer"}
	}
	return &Handler{service: mainService, broadcaster: broadcaster, serverConfig: serverConfig, log: log}, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("response marshalling failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	b, err := ioutil.ReadAll(r.Body)
	if err != nil {
		h.log.Error().Err(err).Msg("request body reading failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return false
	}
	err = json.Unmarshal(b, target)
	if err != nil {
		h.log.Error().Err(err).Msg("request body unmarshalling failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) userIDFromContext(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "token authorization required", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

// HandleRegister processes user registration requests.
func (h *Handler) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		var credentials modeldto.Credentials
		if !h.readJSON(w, r, &credentials) {
			return
		}
		h.log.Info().Msg(fmt.Sprintf("new user register request detected for %s", credentials.Email))
		accessToken, user, err := h.service.AddNewUser(ctx, credentials)
		if err != nil {
			h.log.Error().Err(err).Msg("handle register failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var alreadyExistsError *storageErrors.AlreadyExistsError
			var invalidEmailError *serviceErrors.ServiceInvalidEmail
			var weakPasswordError *serviceErrors.ServiceWeakPassword
			var missingFieldError *serviceErrors.ServiceMissingField
			switch {
			case errors.As(err, &contextTimeoutExceededError):
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			case errors.As(err, &alreadyExistsError):
				http.Error(w, err.Error(), http.StatusConflict)
			case errors.As(err, &invalidEmailError), errors.As(err, &weakPasswordError), errors.As(err, &missingFieldError):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.writeJSON(w, http.StatusOK, sessionResponse{Token: accessToken, User: user})
	}
}

// HandleLogin processes user login requests.
func (h *Handler) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		var credentials modeldto.Credentials
		if !h.readJSON(w, r, &credentials) {
			return
		}
		h.log.Info().Msg(fmt.Sprintf("new login request detected for %s", credentials.Email))
		accessToken, user, err := h.service.LoginUser(ctx, credentials)
		if err != nil {
			h.log.Error().Err(err).Msg("handle login failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var notFoundError *storageErrors.NotFoundError
			var wrongPasswordError *storageErrors.WrongPasswordError
			switch {
			case errors.As(err, &contextTimeoutExceededError):
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			case errors.As(err, &notFoundError), errors.As(err, &wrongPasswordError):
				http.Error(w, err.Error(), http.StatusUnauthorized)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.writeJSON(w, http.StatusOK, sessionResponse{Token: accessToken, User: user})
	}
}

// HandleLogout acknowledges session termination. Tokens are stateless, so the
// client discards its copy and the grant simply expires.
func (h *Handler) HandleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := middleware.UserIDFromContext(r.Context()); ok {
			h.log.Info().Msg(fmt.Sprintf("logout request detected for user %s", userID))
		}
		w.WriteHeader(http.StatusOK)
	}
}

// HandlePasswordReset processes password reset requests.
func (h *Handler) HandlePasswordReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		var reset modeldto.PasswordReset
		if !h.readJSON(w, r, &reset) {
			return
		}
		err := h.service.ResetPassword(ctx, reset.Email)
		if err != nil {
			h.log.Error().Err(err).Msg("handle password reset failed")
			http.Error(w, err.Error(), http.StatusGatewayTimeout)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// HandleMe processes current session user queries.
func (h *Handler) HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, ok := h.userIDFromContext(w, r)
		if !ok {
			return
		}
		user, err := h.service.GetUser(ctx, userID)
		if err != nil {
			h.log.Error().Err(err).Msg("handle me failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var notFoundError *storageErrors.NotFoundError
			switch {
			case errors.As(err, &contextTimeoutExceededError):
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			case errors.As(err, &notFoundError):
				http.Error(w, err.Error(), http.StatusUnauthorized)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.writeJSON(w, http.StatusOK, user)
	}
}

// HandlePlans processes investment plan queries.
func (h *Handler) HandlePlans() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		plans, err := h.service.GetPlans(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("handle plans failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, http.StatusOK, plans)
	}
}

// HandleBalance processes user balance queries.
func (h *Handler) HandleBalance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, ok := h.userIDFromContext(w, r)
		if !ok {
			return
		}
		balance, err := h.service.GetBalance(ctx, userID)
		if err != nil {
			h.log.Error().Err(err).Msg("handle balance failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, http.StatusOK, balance)
	}
}

// HandleTransactions processes user transaction history queries.
func (h *Handler) HandleTransactions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, ok := h.userIDFromContext(w, r)
		if !ok {
			return
		}
		transactions, err := h.service.GetUserTransactions(ctx, userID)
		if err != nil {
			h.log.Error().Err(err).Msg("handle transactions failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(transactions) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeJSON(w, http.StatusOK, transactions)
	}
}

// HandleProfits processes user profit history queries.
func (h *Handler) HandleProfits() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, ok := h.userIDFromContext(w, r)
		if !ok {
			return
		}
		profits, err := h.service.GetUserProfits(ctx, userID)
		if err != nil {
			h.log.Error().Err(err).Msg("handle profits failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(profits) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeJSON(w, http.StatusOK, profits)
	}
}

// HandleDeposit processes new deposit requests.
func (h *Handler) HandleDeposit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, ok := h.userIDFromContext(w, r)
		if !ok {
			return
		}
		var deposit modeldto.NewDeposit
		if !h.readJSON(w, r, &deposit) {
			return
		}
		h.log.Info().Msg(fmt.Sprintf("new deposit request detected for user %s", userID))
		transaction, err := h.service.AddNewDeposit(ctx, userID, deposit)
		if err != nil {
			h.log.Error().Err(err).Msg("handle deposit failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var invalidAmountError *serviceErrors.ServiceInvalidAmount
			var unknownPlanError *serviceErrors.ServiceUnknownPlan
			var belowPlanMinimumError *serviceErrors.ServiceBelowPlanMinimum
			switch {
			case errors.As(err, &contextTimeoutExceededError):
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			case errors.As(err, &invalidAmountError):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.As(err, &unknownPlanError), errors.As(err, &belowPlanMinimumError):
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.writeJSON(w, http.StatusAccepted, transaction)
	}
}

// HandleWithdraw processes new withdrawal requests.
func (h *Handler) HandleWithdraw() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, ok := h.userIDFromContext(w, r)
		if !ok {
			return
		}
		var withdrawal modeldto.NewWithdrawal
		if !h.readJSON(w, r, &withdrawal) {
			return
		}
		h.log.Info().Msg(fmt.Sprintf("new withdrawal request detected for user %s", userID))
		transaction, err := h.service.AddNewWithdrawal(ctx, userID, withdrawal)
		if err != nil {
			h.log.Error().Err(err).Msg("handle withdraw failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var invalidAmountError *serviceErrors.ServiceInvalidAmount
			var missingFieldError *serviceErrors.ServiceMissingField
			var notEnoughFundsError *serviceErrors.ServiceNotEnoughFunds
			switch {
			case errors.As(err, &contextTimeoutExceededError):
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			case errors.As(err, &invalidAmountError), errors.As(err, &missingFieldError):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.As(err, &notEnoughFundsError):
				http.Error(w, err.Error(), http.StatusPaymentRequired)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.writeJSON(w, http.StatusAccepted, transaction)
	}
}

// HandleAdminLogin processes admin panel login requests.
func (h *Handler) HandleAdminLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		var login modeldto.AdminLogin
		if !h.readJSON(w, r, &login) {
			return
		}
		accessToken, err := h.service.LoginAdmin(ctx, login.Password)
		if err != nil {
			h.log.Error().Err(err).Msg("handle admin login failed")
			var accessDeniedError *serviceErrors.ServiceAccessDenied
			if errors.As(err, &accessDeniedError) {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, http.StatusOK, adminSessionResponse{Token: accessToken})
	}
}

// HandleAdminUsers processes full user collection queries.
func (h *Handler) HandleAdminUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		users, err := h.service.GetAllUsers(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("handle admin users failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, http.StatusOK, users)
	}
}

// HandleAdminTransactions processes full transaction collection queries.
func (h *Handler) HandleAdminTransactions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		transactions, err := h.service.GetAllTransactions(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("handle admin transactions failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, http.StatusOK, transactions)
	}
}

// HandleAdminSetBalance processes administrative balance overrides.
func (h *Handler) HandleAdminSetBalance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		var override modeldto.BalanceOverride
		if !h.readJSON(w, r, &override) {
			return
		}
		h.log.Info().Msg(fmt.Sprintf("admin balance override detected for user %s", override.UserID))
		user, err := h.service.SetUserBalance(ctx, override.UserID, override.NewBalance)
		if err != nil {
			h.log.Error().Err(err).Msg("handle admin set balance failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var notFoundError *storageErrors.NotFoundError
			var invalidAmountError *serviceErrors.ServiceInvalidAmount
			switch {
			case errors.As(err, &contextTimeoutExceededError):
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			case errors.As(err, &notFoundError):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.As(err, &invalidAmountError):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.writeJSON(w, http.StatusOK, user)
	}
}

// HandleAdminUpdateStatus processes administrative transaction status
// transitions.
func (h *Handler) HandleAdminUpdateStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		transactionID := chi.URLParam(r, "transactionID")
		var update modeldto.StatusUpdate
		if !h.readJSON(w, r, &update) {
			return
		}
		h.log.Info().Msg(fmt.Sprintf("admin status update detected for transaction %s", transactionID))
		transaction, err := h.service.UpdateTransactionStatus(ctx, transactionID, update.Status)
		if err != nil {
			h.log.Error().Err(err).Msg("handle admin update status failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var notFoundError *storageErrors.NotFoundError
			var notPendingError *storageErrors.NotPendingError
			var notEnoughFundsError *storageErrors.NotEnoughFundsError
			var illegalStatusError *serviceErrors.ServiceIllegalStatus
			switch {
			case errors.As(err, &contextTimeoutExceededError):
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			case errors.As(err, &notFoundError):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.As(err, &notPendingError):
				http.Error(w, err.Error(), http.StatusConflict)
			case errors.As(err, &notEnoughFundsError):
				http.Error(w, err.Error(), http.StatusPaymentRequired)
			case errors.As(err, &illegalStatusError):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.writeJSON(w, http.StatusOK, transaction)
	}
}

// HandleAdminWipe processes complete data wipe requests. The confirmation
// header guards against accidental calls.
func (h *Handler) HandleAdminWipe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		if r.Header.Get("X-Confirm-Wipe") != "yes" {
			http.Error(w, "wipe confirmation header is missing", http.StatusBadRequest)
			return
		}
		h.log.Info().Msg("admin data wipe request detected")
		err := h.service.WipeAllData(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("handle admin wipe failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// HandleAdminEvents streams data change notifications over SSE. The stream
// stays open until the client disconnects or the server shuts down.
func (h *Handler) HandleAdminEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming is not supported", http.StatusInternalServerError)
			return
		}
		events, cancel := h.broadcaster.Subscribe(16)
		defer cancel()
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for {
			select {
			case <-r.Context().Done():
				return
			case event, open := <-events:
				if !open {
					return
				}
				body, err := json.Marshal(event)
				if err != nil {
					h.log.Error().Err(err).Msg("event marshalling failed")
					continue
				}
				_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, body)
				flusher.Flush()
			}
		}
	}
}
