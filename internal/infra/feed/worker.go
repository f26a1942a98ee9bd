// Package feed maintains the websocket connection to the tick source and
// pushes raw tick events into the risk pipeline.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"risk_go/internal/domain"
	"risk_go/internal/infra"
)

const (
	maxRetries       = 10
	handshakeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second
)

// subscription is the touchline subscribe message: t="t" with a #-joined
// scrip list of EXCHANGE|TOKEN pairs.
type subscription struct {
	Type      string `json:"t"`
	ScripList string `json:"k"`
}

// feedMessage is a touchline event. The feed sends "tk" acknowledgements and
// "tf" updates; both may carry a last price.
type feedMessage struct {
	Type      string `json:"t"`
	Exchange  string `json:"e"`
	Token     string `json:"tk"`
	LastPrice string `json:"lp"`
	FeedTime  string `json:"ft"`
}

// Worker handles the tick-source websocket connection. It reconnects with
// exponential backoff and resubscribes after every reconnect. Ticks are
// handed to the handler synchronously; the handler is expected to be cheap
// on the non-actionable path.
type Worker struct {
	wsURL   string
	scrips  []string // EXCHANGE|TOKEN
	handler domain.TickHandler

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	logger *slog.Logger
}

// NewWorker creates a feed worker subscribing to the given scrips.
func NewWorker(wsURL string, scrips []string, handler domain.TickHandler) *Worker {
	return &Worker{
		wsURL:   wsURL,
		scrips:  scrips,
		handler: handler,
		logger:  slog.Default().With("module", "feed"),
	}
}

// Connect starts the connection loop in the background.
func (w *Worker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.logger.Warn("feed connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			infra.FeedReconnects.Inc()
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			w.readLoop(ctx)
		}
	}
}

func (w *Worker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	w.logger.Info("feed connected", slog.Int("subs", len(w.scrips)))
	return nil
}

func (w *Worker) subscribe() error {
	msg := subscription{Type: "t", ScripList: strings.Join(w.scrips, "#")}
	b, _ := json.Marshal(msg)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *Worker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *Worker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		if w.conn == nil {
			w.mu.RUnlock()
			return
		}
		w.conn.SetReadDeadline(time.Now().Add(readTimeout))
		w.mu.RUnlock()

		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			w.logger.Warn("feed read failed, reconnecting", slog.Any("error", err))
			w.closeConnection()
			return
		}
		w.handleMessage(ctx, msg)
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg []byte) {
	var m feedMessage
	if json.Unmarshal(msg, &m) != nil {
		return
	}
	// "tk" acknowledges a subscription and carries a first snapshot; "tf" is
	// a touchline update. Either may omit lp when only depth changed.
	if m.Type != "tk" && m.Type != "tf" {
		return
	}
	if m.LastPrice == "" {
		return
	}

	raw := domain.RawTick{
		Token:     m.Token,
		Exchange:  m.Exchange,
		LastPrice: atof(m.LastPrice),
		FeedTime:  atoi64(m.FeedTime),
	}
	w.handler.OnTick(ctx, raw)
}

func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect stops the connection loop and closes the socket.
func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
