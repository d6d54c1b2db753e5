package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/openspot/exchange/internal/config"
	"github.com/openspot/exchange/internal/db"
)

// Seed the database with two demo traders and a small open book.
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.NewDB(ctx, cfg.DB.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(ctx)

	var userCount int
	if err := database.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		log.Fatalf("Failed to check users: %v", err)
	}
	if userCount > 0 {
		fmt.Printf("Database already has %d users. No need to seed.\n", userCount)
		os.Exit(0)
	}

	// bcrypt hash of "password"
	const passwordHash = "$2a$10$XLhV7TU4dIvHO1d9UKgoT.Kt1XCYIbLV4LkQqmXGtN6VBnsmgS.G."

	var trader1, trader2 int
	err = database.Pool.QueryRow(ctx,
		"INSERT INTO users (name, email, password_hash, balance) VALUES ('Trader One', 'trader1@example.com', $1, 10000) RETURNING id",
		passwordHash).Scan(&trader1)
	if err != nil {
		log.Fatalf("Failed to create trader1: %v", err)
	}
	err = database.Pool.QueryRow(ctx,
		"INSERT INTO users (name, email, password_hash, balance) VALUES ('Trader Two', 'trader2@example.com', $1, 10000) RETURNING id",
		passwordHash).Scan(&trader2)
	if err != nil {
		log.Fatalf("Failed to create trader2: %v", err)
	}

	// Trader two starts with BTC to sell.
	_, err = database.Pool.Exec(ctx,
		"INSERT INTO assets (user_id, symbol, amount, locked_amount) VALUES ($1, 'BTC', 1.0, 0)",
		trader2)
	if err != nil {
		log.Fatalf("Failed to create asset: %v", err)
	}

	// A resting buy and a resting sell that do not cross.
	_, err = database.Pool.Exec(ctx, `
		INSERT INTO orders (user_id, symbol, side, price, amount, status, locked_usd, locked_asset)
		VALUES ($1, 'BTC', 'buy', 48000, 0.1, 'open', 4800, 0)`, trader1)
	if err != nil {
		log.Fatalf("Failed to create buy order: %v", err)
	}
	_, err = database.Pool.Exec(ctx,
		"UPDATE users SET balance = balance - 4800 WHERE id = $1", trader1)
	if err != nil {
		log.Fatalf("Failed to lock buy collateral: %v", err)
	}

	_, err = database.Pool.Exec(ctx, `
		INSERT INTO orders (user_id, symbol, side, price, amount, status, locked_usd, locked_asset)
		VALUES ($1, 'BTC', 'sell', 52000, 0.2, 'open', 0, 0.2)`, trader2)
	if err != nil {
		log.Fatalf("Failed to create sell order: %v", err)
	}
	_, err = database.Pool.Exec(ctx,
		"UPDATE assets SET amount = amount - 0.2, locked_amount = locked_amount + 0.2 WHERE user_id = $1 AND symbol = 'BTC'",
		trader2)
	if err != nil {
		log.Fatalf("Failed to lock sell collateral: %v", err)
	}

	fmt.Println("Seeded demo traders trader1@example.com / trader2@example.com (password: password)")
}
