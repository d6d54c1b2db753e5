package db

import (
	"context"
	"fmt"

	"github.com/openspot/exchange/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Money columns are selected as numeric::text and parsed into decimals so
// no value ever passes through a binary float.

const orderColumns = `id, user_id, symbol, side, price::text, amount::text,
	status, locked_usd::text, locked_asset::text, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o                                     models.Order
		price, amount, lockedUSD, lockedAsset string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Symbol, &o.Side, &price, &amount,
		&o.Status, &lockedUSD, &lockedAsset, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse order price: %w", err)
	}
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse order amount: %w", err)
	}
	if o.LockedUSD, err = decimal.NewFromString(lockedUSD); err != nil {
		return nil, fmt.Errorf("parse order locked_usd: %w", err)
	}
	if o.LockedAsset, err = decimal.NewFromString(lockedAsset); err != nil {
		return nil, fmt.Errorf("parse order locked_asset: %w", err)
	}
	return &o, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u       models.User
		balance string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &balance, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if u.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse user balance: %w", err)
	}
	return &u, nil
}

func scanAsset(row rowScanner) (*models.Asset, error) {
	var (
		a              models.Asset
		amount, locked string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Symbol, &amount, &locked)
	if err != nil {
		return nil, err
	}
	if a.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse asset amount: %w", err)
	}
	if a.LockedAmount, err = decimal.NewFromString(locked); err != nil {
		return nil, fmt.Errorf("parse asset locked_amount: %w", err)
	}
	return &a, nil
}

// CreateUser inserts a new user with a starting USD balance.
func (db *DB) CreateUser(ctx context.Context, name, email, passwordHash string, balance decimal.Decimal) (*models.User, error) {
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, balance)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, password_hash, balance::text, created_at`,
		name, email, passwordHash, balance.String())
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, balance::text, created_at
		FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by id
func (db *DB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, balance::text, created_at
		FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserAssets retrieves all asset rows for a user.
func (db *DB) GetUserAssets(ctx context.Context, userID int) ([]models.Asset, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, symbol, amount::text, locked_amount::text
		FROM assets WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user assets: %w", err)
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

// GetOrderByID retrieves an order without locking it.
func (db *DB) GetOrderByID(ctx context.Context, id int) (*models.Order, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// GetOpenOrders retrieves open orders, oldest first, optionally filtered by
// symbol.
func (db *DB) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = 'open'`
	args := []any{}
	if symbol != "" {
		query += ` AND symbol = $1`
		args = append(args, symbol)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// GetUserOrders retrieves all orders for a user, newest first.
func (db *DB) GetUserOrders(ctx context.Context, userID int) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]models.Order, error) {
	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// GetUserTrades retrieves all trades touching any of the user's orders.
func (db *DB) GetUserTrades(ctx context.Context, userID int) ([]models.Trade, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT t.id, t.symbol, t.buy_order_id, t.sell_order_id, t.price::text,
		       t.amount::text, t.usd_value::text, t.buyer_fee_usd::text,
		       t.seller_fee_asset::text, t.executed_at
		FROM trades t
		JOIN orders o ON t.buy_order_id = o.id OR t.sell_order_id = o.id
		WHERE o.user_id = $1
		ORDER BY t.executed_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var (
			t                                            models.Trade
			price, amount, usdValue, buyerFee, sellerFee string
		)
		err := rows.Scan(&t.ID, &t.Symbol, &t.BuyOrderID, &t.SellOrderID,
			&price, &amount, &usdValue, &buyerFee, &sellerFee, &t.ExecutedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if t.UsdValue, err = decimal.NewFromString(usdValue); err != nil {
			return nil, err
		}
		if t.BuyerFeeUsd, err = decimal.NewFromString(buyerFee); err != nil {
			return nil, err
		}
		if t.SellerFeeAsset, err = decimal.NewFromString(sellerFee); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
