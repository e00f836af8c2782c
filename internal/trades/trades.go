// Package trades is the immediate (market) execution entry point used by
// other platform services. It shares the orchestrator with the trigger
// engine, so a market trade and a triggered trade follow the same saga,
// and a buy carrying TP/SL settings registers the derivation workflow.
package trades

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/trigger-engine/internal/engine"
	"github.com/ksred/trigger-engine/internal/history"
	"github.com/ksred/trigger-engine/internal/types"
	"github.com/ksred/trigger-engine/internal/wallets"
	"github.com/ksred/trigger-engine/pkg/response"
)

// ExecuteRequest is one market trade instruction.
type ExecuteRequest struct {
	SourceNetwork string `json:"source_network" binding:"required"`
	TargetNetwork string `json:"target_network" binding:"required"`
	WalletAddress string `json:"wallet_address" binding:"required"`
	AssetAddress  string `json:"asset_address" binding:"required"`
	Action        string `json:"action" binding:"required"`
	AmountIn      string `json:"amount_in" binding:"required"`
	Slippage      string `json:"slippage,omitempty"`

	TPSLSettings []TPSLSetting `json:"tpsl_settings,omitempty"`
}

type TPSLSetting struct {
	TriggerValue   string `json:"trigger_value" binding:"required"`
	SellPercentage string `json:"sell_percentage" binding:"required"`
}

// ExecuteResponse mirrors the saga outcome for the caller.
type ExecuteResponse struct {
	Success         bool   `json:"success"`
	Step            string `json:"step"`
	Partial         bool   `json:"partial,omitempty"`
	Error           string `json:"error,omitempty"`
	BridgeRef       string `json:"bridge_ref,omitempty"`
	BridgeAmountOut string `json:"bridge_amount_out,omitempty"`
	SettleRef       string `json:"settle_ref,omitempty"`
	AmountIn        string `json:"amount_in,omitempty"`
	AmountOut       string `json:"amount_out,omitempty"`
	Price           string `json:"price,omitempty"`
}

// Service executes market trades through the shared orchestrator.
type Service struct {
	wallets  *wallets.Store
	orch     *engine.Orchestrator
	tpsl     *engine.TPSLWorkflow
	attempts *history.Store
	slippage decimal.Decimal
	logger   zerolog.Logger
}

func NewService(walletStore *wallets.Store, orch *engine.Orchestrator, tpsl *engine.TPSLWorkflow, attempts *history.Store, defaultSlippage float64) *Service {
	return &Service{
		wallets:  walletStore,
		orch:     orch,
		tpsl:     tpsl,
		attempts: attempts,
		slippage: decimal.NewFromFloat(defaultSlippage),
		logger:   log.With().Str("component", "trades").Logger(),
	}
}

// Execute runs one market trade. Validation failures return an error;
// an executed-but-failed trade returns a response with Success=false.
func (s *Service) Execute(c *gin.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	action := types.Action(req.Action)
	if action != types.ActionBuy && action != types.ActionSell {
		return nil, fmt.Errorf("invalid action %q", req.Action)
	}

	amountIn, err := decimal.NewFromString(req.AmountIn)
	if err != nil || !amountIn.IsPositive() {
		return nil, fmt.Errorf("invalid amount %q", req.AmountIn)
	}

	slippage := s.slippage
	if req.Slippage != "" {
		if slippage, err = decimal.NewFromString(req.Slippage); err != nil {
			return nil, fmt.Errorf("invalid slippage %q", req.Slippage)
		}
	}

	settings, err := parseSettings(req.TPSLSettings)
	if err != nil {
		return nil, err
	}
	if len(settings) > 0 && action != types.ActionBuy {
		return nil, errors.New("tpsl settings are only valid on buy trades")
	}

	handle, err := s.wallets.Resolve(req.WalletAddress, req.SourceNetwork)
	if err != nil {
		return nil, err
	}

	result := s.orch.Execute(c.Request.Context(), engine.TradeParams{
		SourceNetwork: req.SourceNetwork,
		TargetNetwork: req.TargetNetwork,
		Handle:        handle,
		AssetAddress:  req.AssetAddress,
		Action:        action,
		AmountIn:      amountIn,
		Slippage:      slippage,
	})

	if result.Success && len(settings) > 0 {
		s.tpsl.Register(c.Request.Context(), engine.PendingTPSL{
			WalletAddress:  req.WalletAddress,
			AssetAddress:   req.AssetAddress,
			Network:        req.TargetNetwork,
			Side:           action,
			ExpectedAmount: result.AmountOut,
			ExpectedRef:    result.SettleRef,
			Settings:       settings,
		})
	}

	return responseFromResult(result), nil
}

// Attempts returns the attempt history for an order.
func (s *Service) Attempts(orderID string) ([]history.TradeAttempt, error) {
	return s.attempts.ByOrder(orderID)
}

func parseSettings(reqs []TPSLSetting) ([]types.TPSLSetting, error) {
	settings := make([]types.TPSLSetting, 0, len(reqs))
	for i, r := range reqs {
		trigger, err := decimal.NewFromString(r.TriggerValue)
		if err != nil {
			return nil, fmt.Errorf("invalid trigger value in setting %d: %w", i, err)
		}
		sell, err := decimal.NewFromString(r.SellPercentage)
		if err != nil {
			return nil, fmt.Errorf("invalid sell percentage in setting %d: %w", i, err)
		}
		settings = append(settings, types.TPSLSetting{
			TriggerValue:   trigger,
			SellPercentage: sell,
		})
	}
	return settings, nil
}

func responseFromResult(result *engine.TradeResult) *ExecuteResponse {
	resp := &ExecuteResponse{
		Success:   result.Success,
		Step:      result.Step,
		Partial:   result.Partial,
		Error:     result.Error,
		BridgeRef: result.BridgeRef,
		SettleRef: result.SettleRef,
	}
	if !result.BridgeAmountOut.IsZero() {
		resp.BridgeAmountOut = result.BridgeAmountOut.String()
	}
	if result.Success {
		resp.AmountIn = result.AmountIn.String()
		resp.AmountOut = result.AmountOut.String()
		resp.Price = result.Price.String()
	}
	return resp
}

// GinHandlers contains HTTP handlers for trade endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ExecuteTradeHandler handles POST requests from internal services to
// run a market trade.
func (h *GinHandlers) ExecuteTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ExecuteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		resp, err := h.service.Execute(c, &req)
		if err != nil {
			if errors.Is(err, wallets.ErrWalletNotFound) {
				response.NotFound(c, "Wallet not found")
				return
			}
			response.BadRequest(c, err.Error())
			return
		}

		response.Success(c, resp)
	}
}

// GetAttemptsHandler handles GET requests for an order's attempt history.
func (h *GinHandlers) GetAttemptsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		attempts, err := h.service.Attempts(orderID)
		response.Handle(c, attempts, err)
	}
}
