package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/trigger-engine/internal/auth"
	"github.com/ksred/trigger-engine/internal/bridge"
	"github.com/ksred/trigger-engine/internal/clock"
	"github.com/ksred/trigger-engine/internal/config"
	"github.com/ksred/trigger-engine/internal/database"
	"github.com/ksred/trigger-engine/internal/engine"
	"github.com/ksred/trigger-engine/internal/feed"
	"github.com/ksred/trigger-engine/internal/history"
	"github.com/ksred/trigger-engine/internal/notify"
	"github.com/ksred/trigger-engine/internal/orders"
	"github.com/ksred/trigger-engine/internal/pricing"
	"github.com/ksred/trigger-engine/internal/settlement"
	"github.com/ksred/trigger-engine/internal/trades"
	"github.com/ksred/trigger-engine/internal/txlog"
	"github.com/ksred/trigger-engine/internal/types"
	"github.com/ksred/trigger-engine/internal/wallets"
	"github.com/ksred/trigger-engine/pkg/middleware"
)

const (
	minOrders     = 20
	maxOrders     = 120
	numWorkers    = 5
	tickRounds    = 200
	serverAddress = "http://localhost:8080"
	basePrice     = 10.0
)

var (
	networks = []string{"eth", "sol", "bsc"}
	assets   = []string{
		"0xAAA1111111111111111111111111111111111111",
		"0xBBB2222222222222222222222222222222222222",
		"0xCCC3333333333333333333333333333333333333",
	}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the trigger engine API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":   {name: "Authentication"},
			"create": {name: "Create Order"},
			"get":    {name: "Get Order"},
			"ticks":  {name: "Ingest Ticks"},
		},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Token, nil
}

// createOrder submits a new conditional order to the API
// Returns the order ID on success
func (sc *simulationClient) createOrder(order *orders.CreateOrderRequest) (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["create"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(order)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/orders", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())

	resp, err := sc.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Create order response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats["create"].failures++
		return "", fmt.Errorf("create order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			OrderID string `json:"order_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	if result.Data.OrderID == "" {
		return "", fmt.Errorf("no order ID in response: %s", string(respBody))
	}

	return result.Data.OrderID, nil
}

// getOrder retrieves the current state of an order
func (sc *simulationClient) getOrder(orderID string) (*types.Order, error) {
	start := time.Now()
	defer func() {
		sc.stats["get"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/orders/%s", sc.baseURL, orderID),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		sc.stats["get"].failures++
		return nil, fmt.Errorf("get order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool        `json:"success"`
		Data    types.Order `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return &result.Data, nil
}

// postTicks submits a batch of trade ticks to the ingestion endpoint
func (sc *simulationClient) postTicks(ticks []types.TradeTick) error {
	start := time.Now()
	defer func() {
		sc.stats["ticks"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(ticks)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/internal/ticks", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		sc.stats["ticks"].failures++
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tick ingestion failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the trigger engine simulation
// It starts a local API server, places a batch of conditional orders, then
// drives a random-walk tick feed through them and reports how many fired
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	ordersChan := make(chan string, targetOrders)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			createOrdersHTTP(workerID, targetOrders/numWorkers, simClient, ordersChan)
		}(i)
	}

	wg.Wait()
	close(ordersChan)

	var orderIDs []string
	for orderID := range ordersChan {
		orderIDs = append(orderIDs, orderID)
	}

	log.Info().Int("orders_created", len(orderIDs)).Msg("All orders created")

	stats := struct {
		TotalOrders int
		TicksSent   int
		FailedTicks int
		StartTime   time.Time
		Statuses    map[string]int
		Networks    map[string]int
	}{
		TotalOrders: len(orderIDs),
		StartTime:   time.Now(),
		Statuses:    make(map[string]int),
		Networks:    make(map[string]int),
	}

	// Drive a random walk per trigger key. Each round sends one tick per
	// (network, asset) pair so every key's price moves independently.
	walk := make(map[string]float64, len(networks)*len(assets))
	for _, network := range networks {
		for _, asset := range assets {
			walk[network+":"+asset] = basePrice
		}
	}

	for round := 0; round < tickRounds; round++ {
		batch := make([]types.TradeTick, 0, len(walk))
		for _, network := range networks {
			for _, asset := range assets {
				key := network + ":" + asset
				// Drift the price by up to +-3% per round
				walk[key] *= 1 + (rand.Float64()-0.5)*0.06
				assetAmount := decimal.NewFromFloat(float64(rand.Intn(900)+100) / 10)
				price := decimal.NewFromFloat(walk[key])
				batch = append(batch, types.TradeTick{
					Network:          network,
					AssetAddress:     asset,
					AssetAmount:      assetAmount,
					CounterAmountUSD: assetAmount.Mul(price),
					ObservedAt:       time.Now(),
				})
			}
		}

		if err := simClient.postTicks(batch); err != nil {
			log.Error().Err(err).Int("round", round).Msg("Failed to ingest ticks")
			stats.FailedTicks++
			continue
		}
		stats.TicksSent += len(batch)

		time.Sleep(time.Duration(rand.Intn(40)+10) * time.Millisecond)
	}

	// Let in-flight executions drain before the final status sweep
	time.Sleep(3 * time.Second)

	for _, orderID := range orderIDs {
		order, err := simClient.getOrder(orderID)
		if err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("Failed to fetch order")
			continue
		}
		stats.Statuses[string(order.Status)]++
		stats.Networks[order.Network]++
	}

	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("TRIGGER ENGINE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Order Statistics
----------------
Total Orders:  %d
Ticks Sent:    %d
Failed Ticks:  %d
Duration:      %v

Status Distribution
-------------------
`, stats.TotalOrders, stats.TicksSent, stats.FailedTicks, duration.Round(time.Millisecond))

	maxStatusCount := 0
	for _, count := range stats.Statuses {
		if count > maxStatusCount {
			maxStatusCount = count
		}
	}
	for status, count := range stats.Statuses {
		barLength := int(float64(count) / float64(maxStatusCount) * 20)
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-10s: %s (%d)\n", status, bar, count)
	}

	fmt.Println("\nNetwork Distribution")
	fmt.Println("--------------------")
	for network, count := range stats.Networks {
		barLength := int(float64(count) / float64(stats.TotalOrders) * 20)
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-4s: %s (%d)\n", network, bar, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	fired := stats.Statuses[string(types.StatusSuccess)] +
		stats.Statuses[string(types.StatusFailed)] +
		stats.Statuses[string(types.StatusTriggered)]
	log.Info().
		Int("total_orders", stats.TotalOrders).
		Int("fired", fired).
		Int("still_waiting", stats.Statuses[string(types.StatusWaiting)]).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// createOrdersHTTP generates and submits random conditional orders to the API
// Runs as a worker goroutine, sending created order IDs to ordersChan
func createOrdersHTTP(workerID, numOrders int, simClient *simulationClient, ordersChan chan<- string) {
	kinds := []string{string(types.KindLimit), string(types.KindStop)}
	actions := []string{string(types.ActionBuy), string(types.ActionSell)}

	for i := 0; i < numOrders; i++ {
		network := networks[rand.Intn(len(networks))]
		action := actions[rand.Intn(len(actions))]

		// Scatter triggers around the walk's starting price so a fair
		// share of them are reachable within the run
		trigger := basePrice * (0.7 + rand.Float64()*0.6)

		order := &orders.CreateOrderRequest{
			Network:       network,
			WalletAddress: walletAddress(workerID, network),
			AssetAddress:  assets[rand.Intn(len(assets))],
			AmountIn:      fmt.Sprintf("%d", rand.Intn(900)+100),
			Action:        action,
			OrderKind:     kinds[rand.Intn(len(kinds))],
			TriggerPrice:  fmt.Sprintf("%.4f", trigger),
		}

		// A slice of buys carry take-profit/stop-loss settings
		if order.Action == string(types.ActionBuy) && rand.Intn(4) == 0 {
			order.TPSLSettings = []orders.TPSLSettingRequest{
				{TriggerValue: "50", SellPercentage: "50"},
				{TriggerValue: "-20", SellPercentage: "100"},
			}
		}

		orderID, err := simClient.createOrder(order)
		if err != nil {
			log.Error().Err(err).
				Int("worker_id", workerID).
				Str("network", network).
				Msg("Failed to create order")
			continue
		}

		ordersChan <- orderID
		log.Info().
			Int("worker_id", workerID).
			Str("order_id", orderID).
			Str("network", network).
			Str("action", order.Action).
			Str("kind", order.OrderKind).
			Str("trigger_price", order.TriggerPrice).
			Msg("Order created")

		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}
}

// walletAddress returns the deterministic simulation wallet for a worker
// on a network. seedWallets creates the matching records at startup.
func walletAddress(workerID int, network string) string {
	return fmt.Sprintf("0xSIM%02d%s", workerID, strings.ToUpper(network))
}

// seedWallets registers a signing wallet per worker per network so the
// engine can resolve signing material when orders trigger
func seedWallets(store *wallets.Store) error {
	for workerID := 0; workerID < numWorkers; workerID++ {
		for _, network := range networks {
			wallet := &wallets.Wallet{
				Address:    walletAddress(workerID, network),
				Network:    network,
				UserID:     fmt.Sprintf("sim-user-%d", workerID),
				SigningKey: uuid.New().String(),
			}
			if err := store.Save(wallet); err != nil {
				return err
			}
		}
	}
	return nil
}

// startServer initializes and starts the trigger engine API server
// Sets up all required services, handlers and routes against an
// in-memory database with simulated bridge and settlement adapters
func startServer() error {
	cfg := config.Default()
	cfg.Database.Path = "file::memory:?cache=shared"

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	clk := clock.System()

	orderStore := orders.NewDatabase(db)
	walletStore := wallets.NewStore(db)
	txStore := txlog.NewStore(db)
	attemptStore := history.NewStore(db)
	prices := pricing.NewCache(cfg.Engine.PriceCacheTTL(), nil, clk)

	if err := seedWallets(walletStore); err != nil {
		return fmt.Errorf("failed to seed wallets: %w", err)
	}

	bridgeAdapter := bridge.NewSimulated()
	registry := settlement.NewRegistry(
		settlement.NewSimulated("eth", prices, txStore),
		settlement.NewSimulated("sol", prices, txStore),
		settlement.NewSimulated("bsc", prices, txStore),
	)

	orch := engine.NewOrchestrator(bridgeAdapter, registry, attemptStore, cfg.Engine.BridgeMarginPercent)
	index := engine.NewTriggerIndex(orderStore)
	queue := notify.NewQueue(cfg.Notify.QueueSize)
	tpsl := engine.NewTPSLWorkflow(
		orderStore, txStore, index, clk,
		cfg.Engine.ConfirmPollInterval(), cfg.Engine.ConfirmTimeout(), cfg.Engine.PendingTPSLTTL(),
	)
	eng := engine.New(index, orderStore, walletStore, orch, prices, tpsl, queue, cfg.Engine.DefaultSlippage)

	if err := eng.Bootstrap(); err != nil {
		return fmt.Errorf("failed to bootstrap trigger index: %w", err)
	}

	authService := auth.NewService(cfg.Auth.JWTSecret)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)
	orderService := orders.NewService(db, eng)
	tradeService := trades.NewService(walletStore, orch, tpsl, attemptStore, cfg.Engine.DefaultSlippage)

	sweeper := engine.NewSweeper(
		index, orderStore, tpsl, prices, queue, clk,
		cfg.Engine.SweepInterval(), cfg.Engine.OrderTTL(),
	)
	go sweeper.Start(context.Background())
	go notify.NewHub().Run(context.Background(), queue.Events())

	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	orderHandlers := orders.NewGinHandlers(orderService)
	tradeHandlers := trades.NewGinHandlers(tradeService)
	feedHandlers := feed.NewGinHandlers(eng)

	setupRoutes(router, cfg.Auth.JWTSecret, authHandlers, orderHandlers, tradeHandlers, feedHandlers)

	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality; the simulation skips rate limiting
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	orderHandlers *orders.GinHandlers,
	tradeHandlers *trades.GinHandlers,
	feedHandlers *feed.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		orderGroup := v1.Group("/orders")
		orderGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			orderGroup.POST("", orderHandlers.CreateOrderHandler())
			orderGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
		}

		internal := v1.Group("/internal")
		{
			internal.POST("/trades", tradeHandlers.ExecuteTradeHandler())
			internal.POST("/ticks", feedHandlers.IngestHandler())
			internal.GET("/attempts/:order_id", tradeHandlers.GetAttemptsHandler())
		}
	}
}
