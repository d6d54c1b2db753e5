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

// MatchNotification carries a settled match to the notification adapter,
// addressed to the two owning users.
type MatchNotification struct {
	BuyOrder  *models.Order   `json:"buyOrder"`
	SellOrder *models.Order   `json:"sellOrder"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
}

// MatchNotifier delivers a match notification to the affected users.
// Delivery is best-effort and happens after the settlement committed.
type MatchNotifier interface {
	NotifyMatch(ctx context.Context, n MatchNotification)
}

// MatchingService settles full matches between open orders under
// price-time priority.
type MatchingService struct {
	db         *db.DB
	commission decimal.Decimal
	notifier   MatchNotifier
	logger     *slog.Logger
}

// NewMatchingService creates a new matching service. notifier may be nil.
func NewMatchingService(database *db.DB, commission decimal.Decimal, notifier MatchNotifier, logger *slog.Logger) *MatchingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchingService{
		db:         database,
		commission: commission,
		notifier:   notifier,
		logger:     logger,
	}
}

// TryMatch attempts to settle the given order against the best eligible
// counter-order. The whole attempt runs in one transaction (retried on
// transient conflicts); either every mutation of a settlement commits or
// none do. Safe to re-invoke for the same order id: a settled or cancelled
// order yields OrderNotOpenOrInvalid without touching anything.
//
// An error return means infrastructure failure (the attempt can be
// re-queued); every expected state is a MatchOutcome.
func (s *MatchingService) TryMatch(ctx context.Context, orderID int) (MatchOutcome, error) {
	var (
		outcome      MatchOutcome
		notification *MatchNotification
	)

	err := s.db.RunInTx(ctx, func(tx pgx.Tx) error {
		outcome = MatchOutcome{}
		notification = nil

		order, err := s.db.LockOrder(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				outcome.Result = OrderNotOpenOrInvalid
				return nil
			}
			return fmt.Errorf("failed to lock order: %w", err)
		}
		if order.Status != models.StatusOpen {
			outcome.Result = OrderNotOpenOrInvalid
			return nil
		}

		counter, err := s.db.LockBestCounterOrder(ctx, tx, order)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				outcome.Result = NoCounterOrder
				return nil
			}
			return fmt.Errorf("failed to lock counter order: %w", err)
		}

		// Full-match only: unequal sizes leave both orders open.
		if !order.Amount.Equal(counter.Amount) {
			outcome.Result = AmountsNotEqual
			return nil
		}

		buy, sell := order, counter
		if order.Side == models.SideSell {
			buy, sell = counter, order
		}

		// Execution price is always the sell order's price.
		price := sell.Price
		amount := order.Amount
		usdValue := mulFixed(amount, price)
		buyerFeeUsd := mulFixed(usdValue, s.commission)
		sellerFeeAsset := mulFixed(amount, s.commission)

		buyer, err := s.db.LockUser(ctx, tx, buy.UserID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				s.logger.Error("buy order has no owner", "order_id", buy.ID, "user_id", buy.UserID)
				outcome.Result = BuyerNotFound
				return nil
			}
			return fmt.Errorf("failed to lock buyer: %w", err)
		}

		// Conservative check: the locked USD was sized at the buy order's
		// own price and may not cover fee on top of value at a higher
		// counter price. Preserved as-is; see DESIGN.md.
		totalCostToBuyer := usdValue.Add(buyerFeeUsd)
		if buy.LockedUSD.LessThan(totalCostToBuyer) {
			outcome.Result = InsufficientBuyerFunds
			return nil
		}

		seller, err := s.db.LockUser(ctx, tx, sell.UserID)
		if err != nil {
			return fmt.Errorf("failed to lock seller: %w", err)
		}
		sellerAsset, err := s.db.LockAsset(ctx, tx, seller.ID, sell.Symbol)
		if err != nil {
			return fmt.Errorf("failed to lock seller asset: %w", err)
		}

		// The sell order should own exactly this much locked asset. A
		// shortfall means a consistency fault elsewhere; settle nothing.
		if sellerAsset.LockedAmount.LessThan(amount) {
			s.logger.Error("seller locked asset below trade amount",
				"sell_order_id", sell.ID,
				"locked", sellerAsset.LockedAmount.String(),
				"amount", amount.String())
			outcome.Result = InsufficientSellerAssetLocked
			return nil
		}

		buyerAsset, err := s.db.EnsureAsset(ctx, tx, buyer.ID, buy.Symbol)
		if err != nil {
			return fmt.Errorf("failed to ensure buyer asset: %w", err)
		}

		// Refund the difference between the collateral locked at order
		// price and the actual cost at execution price.
		refundToBuyer := buy.LockedUSD.Sub(totalCostToBuyer)
		if err := s.db.UpdateUserBalance(ctx, tx, buyer.ID, buyer.Balance.Add(refundToBuyer)); err != nil {
			return err
		}
		// When buyer and seller are the same user, this write was computed
		// from a snapshot taken before the refund above and overwrites it,
		// destroying the refund. Preserved as-is; see DESIGN.md.
		if err := s.db.UpdateUserBalance(ctx, tx, seller.ID, seller.Balance.Add(usdValue)); err != nil {
			return err
		}

		err = s.db.UpdateAssetAmounts(ctx, tx, sellerAsset.ID,
			sellerAsset.Amount, sellerAsset.LockedAmount.Sub(amount))
		if err != nil {
			return err
		}

		netAssetToBuyer := amount.Sub(sellerFeeAsset)
		if buyerAsset.ID == sellerAsset.ID {
			// Self-trade on the same asset row: the locked decrement above
			// already wrote the row, re-read is not worth it; apply both
			// deltas in one update.
			err = s.db.UpdateAssetAmounts(ctx, tx, sellerAsset.ID,
				sellerAsset.Amount.Add(netAssetToBuyer),
				sellerAsset.LockedAmount.Sub(amount))
		} else {
			err = s.db.UpdateAssetAmounts(ctx, tx, buyerAsset.ID,
				buyerAsset.Amount.Add(netAssetToBuyer), buyerAsset.LockedAmount)
		}
		if err != nil {
			return err
		}

		filledBuy, err := s.db.CloseOrder(ctx, tx, buy.ID, models.StatusFilled)
		if err != nil {
			return err
		}
		filledSell, err := s.db.CloseOrder(ctx, tx, sell.ID, models.StatusFilled)
		if err != nil {
			return err
		}

		_, err = s.db.InsertTrade(ctx, tx, &models.Trade{
			Symbol:         buy.Symbol,
			BuyOrderID:     buy.ID,
			SellOrderID:    sell.ID,
			Price:          price,
			Amount:         amount,
			UsdValue:       usdValue,
			BuyerFeeUsd:    buyerFeeUsd,
			SellerFeeAsset: sellerFeeAsset,
		})
		if err != nil {
			return err
		}

		outcome = MatchOutcome{
			Result: Matched,
			Settlement: &Settlement{
				Price:          price,
				Amount:         amount,
				UsdValue:       usdValue,
				BuyerFeeUsd:    buyerFeeUsd,
				SellerFeeAsset: sellerFeeAsset,
			},
		}
		notification = &MatchNotification{
			BuyOrder:  filledBuy,
			SellOrder: filledSell,
			Symbol:    buy.Symbol,
			Price:     price,
			Amount:    amount,
		}
		return nil
	})
	if err != nil {
		return MatchOutcome{}, err
	}

	// Notify only after the settlement committed, never on a rollback.
	if notification != nil && s.notifier != nil {
		s.notifier.NotifyMatch(ctx, *notification)
	}

	return outcome, nil
}
