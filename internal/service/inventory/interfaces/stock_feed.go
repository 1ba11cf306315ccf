package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stockpay/internal/pkg/logger"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// StockUpdate 是推送给订阅者的消息。
type StockUpdate struct {
	ProductID           int64 `json:"productId"`
	RemainingStockCount int   `json:"remainingStockCount"`
}

// StockFeed 通过 WebSocket 推送库存变化，实现 application.StockObserver。
// 推送是尽力而为的：慢连接的消息会被丢弃，不会阻塞库存操作。
type StockFeed struct {
	upgrader websocket.Upgrader

	lock sync.RWMutex
	subs map[int64]map[*subscriber]struct{}
}

type subscriber struct {
	conn      *websocket.Conn
	send      chan []byte
	productID int64
}

func NewStockFeed() *StockFeed {
	return &StockFeed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[int64]map[*subscriber]struct{}),
	}
}

// StockChanged 把新的库存数广播给该商品的所有订阅者。
func (f *StockFeed) StockChanged(ctx context.Context, productID int64, remaining int) {
	payload, err := json.Marshal(StockUpdate{ProductID: productID, RemainingStockCount: remaining})
	if err != nil {
		return
	}

	f.lock.RLock()
	defer f.lock.RUnlock()
	for s := range f.subs[productID] {
		select {
		case s.send <- payload:
		default:
			logger.Ctx(ctx).Warn().Int64("product_id", productID).Msg("stock feed subscriber too slow, update dropped")
		}
	}
}

// ServeHTTP 处理 /ws/stock?productId=N 的升级请求。
func (f *StockFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("productId"), 10, 64)
	if err != nil || productID <= 0 {
		http.Error(w, "productId is required", http.StatusBadRequest)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer), productID: productID}
	f.register(s)

	go f.writePump(s)
	go f.readPump(s)
}

func (f *StockFeed) register(s *subscriber) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.subs[s.productID] == nil {
		f.subs[s.productID] = make(map[*subscriber]struct{})
	}
	f.subs[s.productID][s] = struct{}{}
}

func (f *StockFeed) unregister(s *subscriber) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if _, ok := f.subs[s.productID][s]; !ok {
		return
	}
	delete(f.subs[s.productID], s)
	if len(f.subs[s.productID]) == 0 {
		delete(f.subs, s.productID)
	}
	close(s.send)
}

func (f *StockFeed) subscriberCount(productID int64) int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return len(f.subs[productID])
}

// readPump 只处理 pong 和关闭，客户端发来的数据被忽略。
func (f *StockFeed) readPump(s *subscriber) {
	defer func() {
		f.unregister(s)
		s.conn.Close()
	}()
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *StockFeed) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
