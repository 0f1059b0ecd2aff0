package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/susu3304/minishop/internal/host"
	"github.com/susu3304/minishop/internal/intake"
	"github.com/susu3304/minishop/internal/order"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleProducts serves the catalog document uncached.
func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(a.config.CatalogPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "catalog not found")
			return
		}
		a.logger.Error("failed to read catalog", zap.String("path", a.config.CatalogPath), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read catalog")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleRelayOrder receives the relay copy of an order.
func (a *API) handleRelayOrder(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(order.AuthHeader)
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.config.RelayToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var p order.Payload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid order")
		return
	}
	a.accept(w, r, intake.SourceRelay, p, http.StatusOK)
}

// handleWebAppData receives the string the mini app handed to sendData.
func (a *API) handleWebAppData(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	p, err := order.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order")
		return
	}

	// The verified session identity replaces whatever the client claimed.
	if claims != nil && claims.UserID != 0 {
		user := host.User{ID: claims.UserID, Username: claims.Username}
		if p.TgUser != nil && p.TgUser.ID == claims.UserID {
			user = *p.TgUser
		}
		p.TgUser = &user
	}
	a.accept(w, r, intake.SourceBridge, p, http.StatusAccepted)
}

func (a *API) accept(w http.ResponseWriter, r *http.Request, source string, p order.Payload, okStatus int) {
	inserted, err := a.orders.Accept(r.Context(), source, p)
	if err != nil {
		if errors.Is(err, intake.ErrInvalidOrder) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error("failed to accept order",
			zap.String("order_id", p.OrderID),
			zap.String("source", source),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to store order")
		return
	}
	writeJSON(w, okStatus, map[string]interface{}{"ok": true, "duplicate": !inserted})
}
