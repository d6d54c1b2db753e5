package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openspot/exchange/internal/db"
	"github.com/openspot/exchange/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// moneyScale is the fixed fractional precision of every monetary and
// quantity value.
const moneyScale = 8

// mulFixed multiplies two amounts and truncates the product to the fixed
// scale. Truncation, not rounding, so results never exceed exact values.
func mulFixed(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Truncate(moneyScale)
}

// Business errors returned by the order lifecycle. Callers map these to
// client-visible failures.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderNotOpen      = errors.New("order not open")
	ErrUnauthorized      = errors.New("not authorized to cancel this order")
)

// MatchDispatcher enqueues an asynchronous matching attempt for a newly
// created order. Delivery is at-least-once; TryMatch tolerates replays.
type MatchDispatcher interface {
	EnqueueMatch(ctx context.Context, orderID int) error
}

// OrderRequest is the validated input for placing an order.
type OrderRequest struct {
	Symbol string
	Side   models.Side
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// OrderService creates and cancels orders, locking and releasing collateral
// atomically with the order's state transition.
type OrderService struct {
	db         *db.DB
	dispatcher MatchDispatcher
	logger     *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(database *db.DB, dispatcher MatchDispatcher, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{db: database, dispatcher: dispatcher, logger: logger}
}

// CreateOrder locks the required collateral and persists the order in one
// transaction: USD for a buy (amount * price), asset quantity for a sell.
// Returns ErrInsufficientFunds when the user cannot cover the collateral.
// On success a matching attempt is enqueued; enqueue failure is logged and
// never rolls back the created order.
func (s *OrderService) CreateOrder(ctx context.Context, userID int, req OrderRequest) (*models.Order, error) {
	if !req.Side.Valid() {
		return nil, fmt.Errorf("side must be 'buy' or 'sell'")
	}
	if req.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("price must be positive")
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be positive")
	}

	var created *models.Order
	err := s.db.RunInTx(ctx, func(tx pgx.Tx) error {
		created = nil

		user, err := s.db.LockUser(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}

		order := &models.Order{
			UserID: user.ID,
			Symbol: req.Symbol,
			Side:   req.Side,
			Price:  req.Price,
			Amount: req.Amount,
			Status: models.StatusOpen,
		}

		if req.Side == models.SideBuy {
			required := mulFixed(req.Amount, req.Price)
			if user.Balance.LessThan(required) {
				return ErrInsufficientFunds
			}
			if err := s.db.UpdateUserBalance(ctx, tx, user.ID, user.Balance.Sub(required)); err != nil {
				return err
			}
			order.LockedUSD = required
			order.LockedAsset = decimal.Zero
		} else {
			asset, err := s.db.LockAsset(ctx, tx, user.ID, req.Symbol)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrInsufficientFunds
				}
				return fmt.Errorf("failed to lock asset: %w", err)
			}
			if asset.Amount.LessThan(req.Amount) {
				return ErrInsufficientFunds
			}
			err = s.db.UpdateAssetAmounts(ctx, tx, asset.ID,
				asset.Amount.Sub(req.Amount), asset.LockedAmount.Add(req.Amount))
			if err != nil {
				return err
			}
			order.LockedUSD = decimal.Zero
			order.LockedAsset = req.Amount
		}

		created, err = s.db.InsertOrder(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.EnqueueMatch(ctx, created.ID); err != nil {
			s.logger.Error("failed to enqueue match attempt",
				"order_id", created.ID, "error", err)
		}
	}

	return created, nil
}

// CancelOrder releases the order's collateral and marks it cancelled.
// Returns ErrOrderNotFound, ErrUnauthorized, or ErrOrderNotOpen as the
// corresponding checks fail.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID int) (*models.Order, error) {
	var cancelled *models.Order
	err := s.db.RunInTx(ctx, func(tx pgx.Tx) error {
		cancelled = nil

		order, err := s.db.LockOrder(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to lock order: %w", err)
		}
		if order.UserID != userID {
			return ErrUnauthorized
		}
		if order.Status != models.StatusOpen {
			return ErrOrderNotOpen
		}

		if order.Side == models.SideBuy {
			user, err := s.db.LockUser(ctx, tx, userID)
			if err != nil {
				return fmt.Errorf("failed to lock user: %w", err)
			}
			if err := s.db.UpdateUserBalance(ctx, tx, user.ID, user.Balance.Add(order.LockedUSD)); err != nil {
				return err
			}
		} else {
			asset, err := s.db.LockAsset(ctx, tx, userID, order.Symbol)
			if err != nil {
				return fmt.Errorf("failed to lock asset: %w", err)
			}
			err = s.db.UpdateAssetAmounts(ctx, tx, asset.ID,
				asset.Amount.Add(order.LockedAsset),
				asset.LockedAmount.Sub(order.LockedAsset))
			if err != nil {
				return err
			}
		}

		cancelled, err = s.db.CloseOrder(ctx, tx, order.ID, models.StatusCancelled)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// GetOpenOrders lists open orders, oldest first, optionally filtered by
// symbol.
func (s *OrderService) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	return s.db.GetOpenOrders(ctx, symbol)
}

// GetUserOrders lists a user's orders, newest first.
func (s *OrderService) GetUserOrders(ctx context.Context, userID int) ([]models.Order, error) {
	return s.db.GetUserOrders(ctx, userID)
}
