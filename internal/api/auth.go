package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/susu3304/minishop/internal/host"
)

const sessionTTL = 24 * time.Hour

type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	QueryID  string `json:"query_id"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

type sessionRequest struct {
	InitData string `json:"init_data"`
}

type sessionResponse struct {
	Token   string     `json:"token"`
	User    *host.User `json:"user"`
	QueryID string     `json:"query_id"`
}

// handleSession exchanges signed init data for a session token.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.InitData) == "" {
		writeError(w, http.StatusUnauthorized, "init data required")
		return
	}

	data, err := host.VerifyInitData(req.InitData, a.config.BotToken, a.config.InitDataMaxAge, a.now())
	if err != nil {
		a.logger.Info("init data rejected", zap.Error(err))
		msg := "invalid init data"
		if errors.Is(err, host.ErrInitDataExpired) {
			msg = "init data expired"
		}
		writeError(w, http.StatusUnauthorized, msg)
		return
	}

	token, err := a.issueToken(data)
	if err != nil {
		a.logger.Error("failed to create session token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: data.User, QueryID: data.QueryID})
}

func (a *API) issueToken(data host.InitDataUnsafe) (string, error) {
	now := a.now()
	claims := &Claims{
		QueryID: data.QueryID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        generateRandomString(16),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if data.User != nil {
		claims.UserID = data.User.ID
		claims.Username = data.User.Username
	}

	jwtToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := jwtToken.SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	return tokenString, nil
}

// Middleware
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			writeError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return a.jwtSecret, nil
		}, jwt.WithTimeFunc(a.now))

		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
