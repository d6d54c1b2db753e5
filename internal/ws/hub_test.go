package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openspot/exchange/internal/exchange"
	"github.com/openspot/exchange/internal/models"
	"github.com/shopspring/decimal"
)

func dialHub(t *testing.T, hub *Hub, userID int) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(r.URL.Query().Get("user"))
		hub.HandleWS(w, r, id)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=" + strconv.Itoa(userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testNotification() exchange.MatchNotification {
	price := decimal.RequireFromString("49000")
	amount := decimal.RequireFromString("0.1")
	return exchange.MatchNotification{
		BuyOrder:  &models.Order{ID: 1, UserID: 7, Symbol: "BTC", Side: models.SideBuy, Status: models.StatusFilled},
		SellOrder: &models.Order{ID: 2, UserID: 9, Symbol: "BTC", Side: models.SideSell, Status: models.StatusFilled},
		Symbol:    "BTC",
		Price:     price,
		Amount:    amount,
	}
}

func TestHubDeliversToBothUsers(t *testing.T) {
	hub := NewHub(nil)

	buyerConn := dialHub(t, hub, 7)
	sellerConn := dialHub(t, hub, 9)

	// Registration happens in the server goroutine after the dial
	// returns; wait for both connections to land in the hub.
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.RLock()
		ready := len(hub.clients[7]) == 1 && len(hub.clients[9]) == 1
		hub.mu.RUnlock()
		if ready {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("connections never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.NotifyMatch(context.Background(), testNotification())

	for _, conn := range []*websocket.Conn{buyerConn, sellerConn} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("failed to read notification: %v", err)
		}

		var payload struct {
			Event  string          `json:"event"`
			Symbol string          `json:"symbol"`
			Price  decimal.Decimal `json:"price"`
			Amount decimal.Decimal `json:"amount"`
			Buy    *models.Order   `json:"buyOrder"`
			Sell   *models.Order   `json:"sellOrder"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		if payload.Event != "OrderMatched" {
			t.Errorf("expected event OrderMatched, got %q", payload.Event)
		}
		if payload.Symbol != "BTC" {
			t.Errorf("expected symbol BTC, got %q", payload.Symbol)
		}
		if !payload.Price.Equal(decimal.RequireFromString("49000")) {
			t.Errorf("expected price 49000, got %s", payload.Price)
		}
		if payload.Buy == nil || payload.Buy.ID != 1 || payload.Sell == nil || payload.Sell.ID != 2 {
			t.Error("payload missing order details")
		}
	}
}

func TestHubNotifyWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	// Nobody connected; must be a no-op, not a panic.
	hub.NotifyMatch(context.Background(), testNotification())
}
