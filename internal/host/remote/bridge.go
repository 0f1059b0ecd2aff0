// Package remote implements the host bridge over the shop server's web-app
// endpoints, for storefronts running outside the chat client.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/susu3304/minishop/internal/host"
)

const defaultTimeout = 10 * time.Second

var errUnauthorized = errors.New("remote: session rejected")

// Presenter shows host affordances to the user.
type Presenter interface {
	Popup(title, message string)
	Alert(message string)
	Haptic(kind string)
	Close()
}

type Config struct {
	// Context bounds every request the bridge makes; cancelling it aborts
	// sends in progress. Defaults to context.Background().
	Context    context.Context
	BaseURL    string
	InitData   string
	HTTPClient *http.Client
	Presenter  Presenter
	Logger     *zap.Logger
}

// Bridge forwards SendData to the server, authenticated by a session token
// exchanged for the init data.
type Bridge struct {
	ctx       context.Context
	base      string
	initData  string
	unsafe    host.InitDataUnsafe
	http      *http.Client
	presenter Presenter
	logger    *zap.Logger

	mu    sync.Mutex
	token string
}

var (
	_ host.Bridge  = (*Bridge)(nil)
	_ host.Haptics = (*Bridge)(nil)
)

func New(cfg Config) *Bridge {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	unsafe, err := host.ParseInitData(cfg.InitData)
	if err != nil && !errors.Is(err, host.ErrInitDataEmpty) {
		logger.Warn("init data unreadable", zap.Error(err))
	}
	return &Bridge{
		ctx:       ctx,
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		initData:  cfg.InitData,
		unsafe:    unsafe,
		http:      client,
		presenter: cfg.Presenter,
		logger:    logger,
	}
}

// Detector reports b as present once the server answers its health check.
func Detector(ctx context.Context, b *Bridge) host.Detector {
	return func() host.Bridge {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+"/healthz", nil)
		if err != nil {
			return nil
		}
		resp, err := b.http.Do(req)
		if err != nil {
			b.logger.Debug("host probe failed", zap.Error(err))
			return nil
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil
		}
		return b
	}
}

func (b *Bridge) Ready()  {}
func (b *Bridge) Expand() {}

func (b *Bridge) InitData() string { return b.initData }

func (b *Bridge) InitDataUnsafe() host.InitDataUnsafe { return b.unsafe }

// SendData posts data to the server. A rejected session token is exchanged
// again once.
func (b *Bridge) SendData(data string) error {
	timeout := b.http.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(b.ctx, timeout+time.Second)
	defer cancel()

	err := b.send(ctx, data)
	if errors.Is(err, errUnauthorized) {
		b.mu.Lock()
		b.token = ""
		b.mu.Unlock()
		err = b.send(ctx, data)
	}
	return err
}

func (b *Bridge) send(ctx context.Context, data string) error {
	token, err := b.session(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+"/api/webapp/data", strings.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: send data: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errUnauthorized
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote: send data: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

type sessionResponse struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

func (b *Bridge) session(ctx context.Context) (string, error) {
	b.mu.Lock()
	token := b.token
	b.mu.Unlock()
	if token != "" {
		return token, nil
	}

	body, _ := json.Marshal(map[string]string{"init_data": b.initData})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+"/api/webapp/session", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("remote: session: %w", err)
	}
	defer resp.Body.Close()

	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("remote: session: decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK || out.Token == "" {
		return "", fmt.Errorf("remote: session: status %d: %s", resp.StatusCode, out.Error)
	}

	b.mu.Lock()
	b.token = out.Token
	b.mu.Unlock()
	return out.Token, nil
}

func (b *Bridge) ShowPopup(title, message string) {
	if b.presenter != nil {
		b.presenter.Popup(title, message)
	}
}

func (b *Bridge) ShowAlert(message string) {
	if b.presenter != nil {
		b.presenter.Alert(message)
	}
}

func (b *Bridge) Close() {
	if b.presenter != nil {
		b.presenter.Close()
	}
}

func (b *Bridge) ImpactOccurred(style string) {
	if b.presenter != nil {
		b.presenter.Haptic("impact:" + style)
	}
}

func (b *Bridge) NotificationOccurred(kind string) {
	if b.presenter != nil {
		b.presenter.Haptic(kind)
	}
}
