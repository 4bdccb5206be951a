package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 2 * time.Second

// client serializa escritas: gorilla não aceita writers concorrentes
type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Hub gerencia conexões WebSocket e assinaturas por market
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	// market -> conjunto de clientes
	subs map[string]map[*client]struct{}

	OnConnect   func(delta int) // métricas (gauge)
	OnBroadcast func(n int)
}

// NewHub cria o Hub com a política de origem informada
func NewHub(log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

func normalize(market string) (string, bool) {
	if !common.IsHexAddress(market) {
		return "", false
	}
	return common.HexToAddress(market).Hex(), true
}

// HandleWS gerencia o ciclo de vida de uma conexão
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{id: uuid.NewString(), conn: conn}
	defer conn.Close()
	if h.OnConnect != nil {
		h.OnConnect(1)
		defer h.OnConnect(-1)
	}
	h.log.Debug("ws client connected", zap.String("client", c.id))

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			mkt, ok := normalize(msg.Market)
			if !ok {
				_ = c.write(map[string]string{"type": "error", "error": "invalid market"})
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[mkt]; !ok {
				h.subs[mkt] = make(map[*client]struct{})
			}
			h.subs[mkt][c] = struct{}{}
			h.mu.Unlock()
			_ = c.write(map[string]string{"type": "subscribed", "market": mkt})
		case "unsubscribe":
			mkt, _ := normalize(msg.Market)
			h.mu.Lock()
			if set, ok := h.subs[mkt]; ok {
				delete(set, c)
				if len(set) == 0 {
					delete(h.subs, mkt)
				}
			}
			h.mu.Unlock()
		case "ping":
			_ = c.write(map[string]string{"type": "pong"})
		}
	}

	h.mu.Lock()
	for mkt, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, mkt)
		}
	}
	h.mu.Unlock()
	h.log.Debug("ws client disconnected", zap.String("client", c.id))
}

// Broadcast envia a atualização para os inscritos no market; devolve quantos receberam
func (h *Hub) Broadcast(update MarketUpdate) int {
	mkt, ok := normalize(update.Market)
	if !ok {
		return 0
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[mkt]))
	for c := range h.subs[mkt] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return 0
	}

	b, _ := json.Marshal(update)
	sent := 0
	for _, c := range targets {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.conn.WriteMessage(websocket.TextMessage, b)
		c.mu.Unlock()
		if err != nil {
			h.log.Debug("ws write failed", zap.String("client", c.id), zap.Error(err))
			continue
		}
		sent++
	}
	if h.OnBroadcast != nil {
		h.OnBroadcast(sent)
	}
	return sent
}

// Subscribers devolve quantos clientes acompanham o market
func (h *Hub) Subscribers(market string) int {
	mkt, _ := normalize(market)
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[mkt])
}
