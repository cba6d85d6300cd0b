// Package broker provides broker integration implementations.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"breakout-trader/internal/errors"
	"breakout-trader/internal/models"
)

// fillPollInterval and fillPollTimeout bound how long PlaceMarketOrder waits
// for a market order to reach a terminal state.
const (
	fillPollInterval = 500 * time.Millisecond
	fillPollTimeout  = 30 * time.Second
)

// ZerodhaBroker implements the Broker interface for Zerodha Kite Connect.
type ZerodhaBroker struct {
	client        *kiteconnect.Client
	apiKey        string
	apiSecret     string
	userID        string
	accessToken   string
	tokenPath     string
	exchange      models.Exchange
	product       models.ProductType
	authenticated bool
	mu            sync.RWMutex
}

// ZerodhaConfig holds configuration for Zerodha broker.
type ZerodhaConfig struct {
	APIKey    string
	APISecret string
	UserID    string
	TokenPath string
	Exchange  models.Exchange
	Product   models.ProductType
}

// NewZerodhaBroker creates a new Zerodha broker instance.
// It automatically loads any saved session from disk.
func NewZerodhaBroker(cfg ZerodhaConfig) *ZerodhaBroker {
	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "breakout-trader", "session.json")
	}

	exchange := cfg.Exchange
	if exchange == "" {
		exchange = models.NFO
	}
	product := cfg.Product
	if product == "" {
		product = models.ProductNRML
	}

	zb := &ZerodhaBroker{
		client:    kiteconnect.New(cfg.APIKey),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		userID:    cfg.UserID,
		tokenPath: tokenPath,
		exchange:  exchange,
		product:   product,
	}

	// Automatically load saved session if available
	_ = zb.loadSession()

	return zb
}

func newCookieJar() http.CookieJar {
	jar, _ := cookiejar.New(nil)
	return jar
}

// sessionData represents persisted session data.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login authenticates with Zerodha. A persisted session is tried first; if
// none is valid the caller must complete the OAuth flow or use AutoLogin.
func (z *ZerodhaBroker) Login(ctx context.Context) error {
	if err := z.loadSession(); err == nil && z.IsAuthenticated() {
		if _, err := z.client.GetUserProfile(); err == nil {
			return nil
		}
	}

	loginURL := z.client.GetLoginURL()
	return fmt.Errorf("authentication required: please visit %s and complete login, then call CompleteLogin with the request token", loginURL)
}

// CompleteLogin completes the OAuth flow with the request token.
func (z *ZerodhaBroker) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := z.client.GenerateSession(requestToken, z.apiSecret)
	if err != nil {
		return fmt.Errorf("failed to generate session: %w", err)
	}

	z.setToken(session.AccessToken)

	if err := z.saveSession(session.AccessToken); err != nil {
		// Session is valid even if persistence failed
		return fmt.Errorf("session active but not persisted: %w", err)
	}

	return nil
}

// AutoLogin performs the Kite web login flow with the stored password and a
// TOTP second factor, then exchanges the resulting request token for an API
// session. No browser interaction is required.
func (z *ZerodhaBroker) AutoLogin(ctx context.Context, password, totpSecret string) error {
	jar := newCookieJar()
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Jar:     jar,
	}

	// Step 1: user id + password
	loginResp, err := httpClient.PostForm("https://kite.zerodha.com/api/login", url.Values{
		"user_id":  {z.userID},
		"password": {password},
	})
	if err != nil {
		return errors.NewBrokerError("LOGIN", "password login failed", err)
	}
	defer loginResp.Body.Close()

	var loginBody struct {
		Status string `json:"status"`
		Data   struct {
			RequestID string `json:"request_id"`
		} `json:"data"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(loginResp.Body).Decode(&loginBody); err != nil {
		return errors.NewBrokerError("LOGIN", "unexpected login response", err)
	}
	if loginBody.Status != "success" {
		return errors.NewBrokerError("LOGIN", loginBody.Message, nil)
	}

	// Step 2: TOTP second factor
	code, err := totp.GenerateCode(totpSecret, time.Now())
	if err != nil {
		return errors.NewBrokerError("TOTP", "generating TOTP code", err)
	}

	twofaResp, err := httpClient.PostForm("https://kite.zerodha.com/api/twofa", url.Values{
		"user_id":     {z.userID},
		"request_id":  {loginBody.Data.RequestID},
		"twofa_value": {code},
		"twofa_type":  {"totp"},
	})
	if err != nil {
		return errors.NewBrokerError("TOTP", "2FA submission failed", err)
	}
	defer twofaResp.Body.Close()

	var twofaBody struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(twofaResp.Body).Decode(&twofaBody); err != nil {
		return errors.NewBrokerError("TOTP", "unexpected 2FA response", err)
	}
	if twofaBody.Status != "success" {
		return errors.NewBrokerError("TOTP", twofaBody.Message, nil)
	}

	// Step 3: hit the Connect login URL; the redirect carries request_token
	requestToken, err := z.captureRequestToken(httpClient)
	if err != nil {
		return err
	}

	return z.CompleteLogin(ctx, requestToken)
}

func (z *ZerodhaBroker) captureRequestToken(httpClient *http.Client) (string, error) {
	var requestToken string
	httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if token := req.URL.Query().Get("request_token"); token != "" {
			requestToken = token
			return http.ErrUseLastResponse
		}
		return nil
	}

	connectURL := fmt.Sprintf("https://kite.zerodha.com/connect/login?v=3&api_key=%s", z.apiKey)
	resp, err := httpClient.Get(connectURL)
	if err != nil && requestToken == "" {
		return "", errors.NewBrokerError("LOGIN", "connect redirect failed", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	if requestToken == "" {
		return "", errors.NewBrokerError("LOGIN", "request token not found in redirect", nil)
	}
	return requestToken, nil
}

// Logout invalidates the session and clears stored credentials.
func (z *ZerodhaBroker) Logout(ctx context.Context) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.authenticated {
		_, _ = z.client.InvalidateAccessToken()
	}

	z.accessToken = ""
	z.authenticated = false

	if err := os.Remove(z.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}

	return nil
}

// IsAuthenticated returns whether the broker is authenticated.
func (z *ZerodhaBroker) IsAuthenticated() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.authenticated
}

// AccessToken returns the current access token (for the ticker).
func (z *ZerodhaBroker) AccessToken() string {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.accessToken
}

// AvailableCapital returns the available equity margin.
func (z *ZerodhaBroker) AvailableCapital(ctx context.Context) (float64, error) {
	if !z.IsAuthenticated() {
		return 0, errors.ErrNotAuthenticated
	}

	margins, err := z.client.GetUserMargins()
	if err != nil {
		return 0, errors.NewBrokerError("MARGINS", "fetching margins", err)
	}

	return margins.Equity.Net, nil
}

// ActiveFuturesContract resolves the nearest non-expired futures contract for
// the underlying from the NFO instrument dump.
func (z *ZerodhaBroker) ActiveFuturesContract(ctx context.Context, underlying string) (*models.Instrument, error) {
	if !z.IsAuthenticated() {
		return nil, errors.ErrNotAuthenticated
	}

	instruments, err := z.client.GetInstrumentsByExchange(string(models.NFO))
	if err != nil {
		return nil, errors.NewBrokerError("INSTRUMENTS", "fetching NFO instruments", err)
	}

	var futures []kiteconnect.Instrument
	now := time.Now()
	for _, inst := range instruments {
		if inst.InstrumentType != "FUT" || inst.Name != underlying {
			continue
		}
		if inst.Expiry.Time.Before(now) {
			continue
		}
		futures = append(futures, inst)
	}

	if len(futures) == 0 {
		return nil, errors.ErrContractNotFound
	}

	sort.Slice(futures, func(i, j int) bool {
		return futures[i].Expiry.Time.Before(futures[j].Expiry.Time)
	})

	near := futures[0]
	return &models.Instrument{
		Token:     uint32(near.InstrumentToken),
		Symbol:    near.Tradingsymbol,
		Name:      near.Name,
		Exchange:  models.NFO,
		Segment:   near.Segment,
		LotSize:   int(near.LotSize),
		TickSize:  near.TickSize,
		Expiry:    near.Expiry.Time,
		InstrType: near.InstrumentType,
	}, nil
}

// PlaceMarketOrder places a market order and waits for a terminal state,
// returning the average fill price. An order that does not reach COMPLETE
// within the poll timeout is reported as a failure.
func (z *ZerodhaBroker) PlaceMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity int) (*Fill, error) {
	if !z.IsAuthenticated() {
		return nil, errors.ErrNotAuthenticated
	}

	resp, err := z.client.PlaceOrder(kiteconnect.VarietyRegular, kiteconnect.OrderParams{
		Exchange:        string(z.exchange),
		Tradingsymbol:   symbol,
		Product:         string(z.product),
		OrderType:       string(models.OrderTypeMarket),
		TransactionType: string(side),
		Quantity:        quantity,
		Validity:        "DAY",
		Tag:             "breakout",
	})
	if err != nil {
		return nil, errors.NewOrderError(symbol, string(side), "order placement failed", err)
	}

	return z.waitForFill(ctx, resp.OrderID, symbol, side)
}

func (z *ZerodhaBroker) waitForFill(ctx context.Context, orderID, symbol string, side models.OrderSide) (*Fill, error) {
	deadline := time.Now().Add(fillPollTimeout)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(fillPollInterval):
		}

		history, err := z.client.GetOrderHistory(orderID)
		if err != nil {
			if time.Now().After(deadline) {
				return nil, errors.NewOrderError(symbol, string(side), "fill status unknown after timeout", err)
			}
			continue
		}

		if len(history) == 0 {
			continue
		}

		last := history[len(history)-1]
		switch last.Status {
		case "COMPLETE":
			return &Fill{
				OrderID:  orderID,
				Price:    last.AveragePrice,
				Quantity: int(last.FilledQuantity),
				FilledAt: time.Now(),
			}, nil
		case "REJECTED", "CANCELLED":
			return nil, errors.NewOrderError(symbol, string(side),
				fmt.Sprintf("order %s: %s", strings.ToLower(last.Status), last.StatusMessage), errors.ErrOrderRejected)
		}

		if time.Now().After(deadline) {
			return nil, errors.NewOrderError(symbol, string(side), "order did not fill within timeout", nil)
		}
	}
}

// LastPrice returns the last traded price for a symbol.
func (z *ZerodhaBroker) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if !z.IsAuthenticated() {
		return 0, errors.ErrNotAuthenticated
	}

	quotes, err := z.client.GetLTP(symbol)
	if err != nil {
		return 0, errors.NewBrokerError("QUOTE", "fetching LTP", err)
	}

	q, ok := quotes[symbol]
	if !ok {
		return 0, fmt.Errorf("quote not found for symbol: %s", symbol)
	}
	return q.LastPrice, nil
}

// CreateTicker creates a WebSocket ticker bound to this session.
func (z *ZerodhaBroker) CreateTicker() (*ZerodhaTicker, error) {
	if !z.IsAuthenticated() {
		return nil, errors.ErrNotAuthenticated
	}
	return NewZerodhaTicker(ZerodhaTickerConfig{
		APIKey:      z.apiKey,
		AccessToken: z.AccessToken(),
	}), nil
}

func (z *ZerodhaBroker) setToken(accessToken string) {
	z.mu.Lock()
	z.accessToken = accessToken
	z.authenticated = true
	z.client.SetAccessToken(accessToken)
	z.mu.Unlock()
}

func (z *ZerodhaBroker) loadSession() error {
	data, err := os.ReadFile(z.tokenPath)
	if err != nil {
		return err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}

	// Zerodha tokens expire at 6 AM IST the next day
	if time.Now().After(session.ExpiresAt) {
		return errors.ErrSessionExpired
	}

	z.setToken(session.AccessToken)
	return nil
}

func (z *ZerodhaBroker) saveSession(accessToken string) error {
	dir := filepath.Dir(z.tokenPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	loc, _ := time.LoadLocation("Asia/Kolkata")
	now := time.Now().In(loc)
	expiresAt := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, loc)

	session := sessionData{
		AccessToken: accessToken,
		UserID:      z.userID,
		ExpiresAt:   expiresAt,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	// Write with restricted permissions
	return os.WriteFile(z.tokenPath, data, 0600)
}
