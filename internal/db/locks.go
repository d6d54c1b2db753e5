package db

import (
	"context"
	"fmt"

	"github.com/openspot/exchange/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Helpers below run inside a caller-owned transaction and take exclusive row
// locks. Callers must acquire locks in the order Order -> User -> Asset; see
// DB.RunInTx.

// LockOrder re-reads an order under FOR UPDATE. Returns pgx.ErrNoRows if
// the order does not exist.
func (db *DB) LockOrder(ctx context.Context, tx pgx.Tx, orderID int) (*models.Order, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	return scanOrder(row)
}

// LockBestCounterOrder locks the best-priced open counter-order for the
// given order, ties broken by earliest creation (price-time priority).
// Returns pgx.ErrNoRows when no eligible counter exists.
func (db *DB) LockBestCounterOrder(ctx context.Context, tx pgx.Tx, order *models.Order) (*models.Order, error) {
	var priceCond, priceDir string
	if order.Side == models.SideBuy {
		priceCond, priceDir = "price <= $3", "ASC"
	} else {
		priceCond, priceDir = "price >= $3", "DESC"
	}
	row := tx.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE symbol = $1 AND side = $2 AND status = 'open' AND `+priceCond+`
		ORDER BY price `+priceDir+`, created_at ASC
		LIMIT 1
		FOR UPDATE`,
		order.Symbol, order.Side.Opposite(), order.Price.String())
	return scanOrder(row)
}

// LockUser re-reads a user row under FOR UPDATE.
func (db *DB) LockUser(ctx context.Context, tx pgx.Tx, userID int) (*models.User, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, name, email, password_hash, balance::text, created_at
		FROM users WHERE id = $1 FOR UPDATE`, userID)
	return scanUser(row)
}

// LockAsset locks the user's asset row for a symbol. Returns pgx.ErrNoRows
// if the user holds no such asset.
func (db *DB) LockAsset(ctx context.Context, tx pgx.Tx, userID int, symbol string) (*models.Asset, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, user_id, symbol, amount::text, locked_amount::text
		FROM assets WHERE user_id = $1 AND symbol = $2 FOR UPDATE`,
		userID, symbol)
	return scanAsset(row)
}

// EnsureAsset locks the user's asset row for a symbol, creating a zero row
// first if none exists.
func (db *DB) EnsureAsset(ctx context.Context, tx pgx.Tx, userID int, symbol string) (*models.Asset, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO assets (user_id, symbol, amount, locked_amount)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (user_id, symbol) DO NOTHING`, userID, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure asset row: %w", err)
	}
	return db.LockAsset(ctx, tx, userID, symbol)
}

// UpdateUserBalance writes a user's cash balance.
func (db *DB) UpdateUserBalance(ctx context.Context, tx pgx.Tx, userID int, balance decimal.Decimal) error {
	_, err := tx.Exec(ctx, `UPDATE users SET balance = $1 WHERE id = $2`,
		balance.String(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user balance: %w", err)
	}
	return nil
}

// UpdateAssetAmounts writes an asset row's available and locked pools.
func (db *DB) UpdateAssetAmounts(ctx context.Context, tx pgx.Tx, assetID int, amount, locked decimal.Decimal) error {
	_, err := tx.Exec(ctx,
		`UPDATE assets SET amount = $1, locked_amount = $2 WHERE id = $3`,
		amount.String(), locked.String(), assetID)
	if err != nil {
		return fmt.Errorf("failed to update asset amounts: %w", err)
	}
	return nil
}

// InsertOrder persists a new order and returns it with id and timestamps.
func (db *DB) InsertOrder(ctx context.Context, tx pgx.Tx, order *models.Order) (*models.Order, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, symbol, side, price, amount, status, locked_usd, locked_asset)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+orderColumns,
		order.UserID, order.Symbol, order.Side, order.Price.String(),
		order.Amount.String(), order.Status, order.LockedUSD.String(),
		order.LockedAsset.String())
	created, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return created, nil
}

// CloseOrder moves an order into a terminal status and zeroes its locked
// collateral fields.
func (db *DB) CloseOrder(ctx context.Context, tx pgx.Tx, orderID int, status models.OrderStatus) (*models.Order, error) {
	row := tx.QueryRow(ctx, `
		UPDATE orders
		SET status = $1, locked_usd = 0, locked_asset = 0, updated_at = NOW()
		WHERE id = $2
		RETURNING `+orderColumns,
		status, orderID)
	closed, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to close order: %w", err)
	}
	return closed, nil
}

// InsertTrade persists an immutable settlement record.
func (db *DB) InsertTrade(ctx context.Context, tx pgx.Tx, trade *models.Trade) (*models.Trade, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO trades (symbol, buy_order_id, sell_order_id, price, amount, usd_value, buyer_fee_usd, seller_fee_asset)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, executed_at`,
		trade.Symbol, trade.BuyOrderID, trade.SellOrderID, trade.Price.String(),
		trade.Amount.String(), trade.UsdValue.String(),
		trade.BuyerFeeUsd.String(), trade.SellerFeeAsset.String())
	if err := row.Scan(&trade.ID, &trade.ExecutedAt); err != nil {
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}
	return trade, nil
}
