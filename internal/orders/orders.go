package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/trigger-engine/internal/auth"
	"github.com/ksred/trigger-engine/internal/types"
	"github.com/ksred/trigger-engine/pkg/response"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// IndexNotifier is implemented by the trigger engine so freshly placed
// orders start being monitored without waiting for the next bootstrap.
type IndexNotifier interface {
	OrderPlaced(network, assetAddress string)
}

// Service handles conditional order placement and lookup
type Service struct {
	db    *Database
	index IndexNotifier
}

// NewService creates a new order service with the given database connection
func NewService(gormDB *gorm.DB, index IndexNotifier) *Service {
	return &Service{
		db:    NewDatabase(gormDB),
		index: index,
	}
}

// Store exposes the underlying order store gateway for engine wiring.
func (s *Service) Store() *Database {
	return s.db
}

// CreateOrder validates and persists a new waiting order, with idempotency
// support: an existing unexpired record for the key returns the original
// order instead of creating a duplicate.
func (s *Service) CreateOrder(req *CreateOrderRequest, idempotencyKey string) (*types.Order, error) {
	record, err := s.db.GetIdempotencyRecord(idempotencyKey)
	if err != nil {
		return nil, err
	}
	if record != nil && record.ExpiresAt.After(time.Now()) {
		existing, err := s.db.Get(record.ResourceID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, errors.New("order not found")
		}
		return existing, nil
	}

	order, err := orderFromRequest(req)
	if err != nil {
		return nil, err
	}

	order.OrderID = uuid.New().String()
	order.Status = types.StatusWaiting
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()

	if err := s.db.CreateWithIdempotency(order, idempotencyKey); err != nil {
		return nil, err
	}

	if s.index != nil {
		s.index.OrderPlaced(order.Network, order.AssetAddress)
	}

	return order, nil
}

// GetOrder retrieves an order by its ID
func (s *Service) GetOrder(orderID string) (*types.Order, error) {
	return s.db.Get(orderID)
}

func orderFromRequest(req *CreateOrderRequest) (*types.Order, error) {
	action := types.Action(req.Action)
	if action != types.ActionBuy && action != types.ActionSell {
		return nil, fmt.Errorf("invalid action %q", req.Action)
	}

	kind := types.OrderKind(req.OrderKind)
	if kind != types.KindLimit && kind != types.KindStop {
		return nil, fmt.Errorf("invalid order kind %q", req.OrderKind)
	}

	triggerPrice, err := decimal.NewFromString(req.TriggerPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid trigger price %q: %w", req.TriggerPrice, err)
	}
	if !triggerPrice.IsPositive() {
		return nil, fmt.Errorf("trigger price must be positive, got %s", triggerPrice)
	}

	amountIn, err := decimal.NewFromString(req.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", req.AmountIn, err)
	}
	if !amountIn.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", amountIn)
	}

	order := &types.Order{
		Network:       req.Network,
		WalletAddress: req.WalletAddress,
		AssetAddress:  req.AssetAddress,
		AmountIn:      amountIn.String(),
		Action:        action,
		OrderKind:     kind,
		TriggerPrice:  triggerPrice,
	}

	if len(req.TPSLSettings) > 0 {
		if action != types.ActionBuy {
			return nil, errors.New("tpsl settings are only valid on buy orders")
		}
		settings, err := parseTPSLSettings(req.TPSLSettings)
		if err != nil {
			return nil, err
		}
		if err := order.EncodeExtra(types.OrderExtra{TPSLSettings: settings}); err != nil {
			return nil, err
		}
	}

	return order, nil
}

func parseTPSLSettings(reqs []TPSLSettingRequest) ([]types.TPSLSetting, error) {
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
		if sell.IsNegative() || sell.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("sell percentage in setting %d out of range: %s", i, sell)
		}
		settings = append(settings, types.TPSLSetting{
			TriggerValue:   trigger,
			SellPercentage: sell,
		})
	}
	return settings, nil
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateOrderHandler handles POST requests to place conditional orders
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.CreateOrder(&req, idempotencyKey)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		response.Success(c, order)
	}
}

// GetOrderHandler handles GET requests to retrieve an order
// Requires a valid JWT token
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, exists := c.Get("claims")
		if !exists {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}
		if auth.GetClientID(claims) == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		order, err := h.service.GetOrder(orderID)
		if err != nil || order == nil {
			response.NotFound(c, "Order not found")
			return
		}

		response.Success(c, order)
	}
}
