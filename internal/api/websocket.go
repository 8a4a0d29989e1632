package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/keyrhythm-core/internal/auth"
	"github.com/nerrad567/keyrhythm-core/internal/capture"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/config"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/logging"
	"github.com/nerrad567/keyrhythm-core/internal/rhythm"
)

// Capture socket frame types.
const (
	FrameKeyDown = "keydown"
	FrameKeyUp   = "keyup"
	FrameRetry   = "retry"
	FrameMode    = "mode"
	FrameSubmit  = "submit"

	FrameElapsed = "elapsed"
	FrameLimit   = "limit"
	FrameResult  = "result"
	FrameReset   = "reset"
	FrameError   = "error"

	// wsSendBufferSize is the per-client outbound frame buffer size.
	wsSendBufferSize = 256

	// captureEventBuffer is how many decoded events may wait for the loop.
	captureEventBuffer = 64

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// clientFrame is any frame a capture page sends.
type clientFrame struct {
	Type  string  `json:"type"`
	Field string  `json:"field,omitempty"`
	Key   string  `json:"key,omitempty"`
	T     float64 `json:"t,omitempty"`

	Mode string `json:"mode,omitempty"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Confirm  string `json:"confirm,omitempty"`
}

// serverFrame is any frame sent back to a capture page.
type serverFrame struct {
	Type    string  `json:"type"`
	Field   string  `json:"field,omitempty"`
	Elapsed float64 `json:"elapsed,omitempty"`
	OK      bool    `json:"ok,omitempty"`
	Message string  `json:"message,omitempty"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// Hub tracks open capture sockets so they can be counted and closed on
// shutdown.
type Hub struct {
	logger  *logging.Logger
	clients map[*captureClient]struct{}
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*captureClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes every socket.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) register(c *captureClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("capture socket opened", "clients", h.ClientCount())
}

// unregister removes c. Only the caller that actually removed it closes the
// send channel.
func (h *Hub) unregister(c *captureClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if existed {
		close(c.send)
	}
	h.logger.Debug("capture socket closed", "clients", h.ClientCount())
}

// ClientCount returns the number of open capture sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// captureClient is one capture page. It implements capture.Observer.
type captureClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	events chan capture.Event
	clock  clientClock
	logger *logging.Logger
}

// handleCapture upgrades the connection and runs a capture loop for it.
// The optional mode query parameter selects the initial form (default login).
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	mode := capture.Mode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = capture.ModeLogin
	}
	if !mode.IsValid() {
		writeBadRequest(w, "mode must be login or register")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &captureClient{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		events: make(chan capture.Event, captureEventBuffer),
		logger: s.logger,
	}
	submitter := &serviceSubmitter{
		service:    s.service,
		remoteAddr: r.RemoteAddr,
		userAgent:  r.UserAgent(),
	}
	loop := capture.NewLoop(capture.LoopConfig{
		Mode:       mode,
		Ceiling:    s.capCfg.Ceiling(),
		Refresh:    s.capCfg.Refresh(),
		ResetDelay: s.capCfg.ResetDelay(),
	}, submitter, client)

	s.hub.register(client)

	go client.writePump(s.capCfg)
	go client.runLoop(loop)
	go client.readPump(s.capCfg)
}

// runLoop drives loop until readPump closes the event channel, then
// releases the client.
func (c *captureClient) runLoop(loop *capture.Loop) {
	//nolint:errcheck // Run only fails on cancellation, and the context never is
	loop.Run(context.Background(), c.events)
	c.hub.unregister(c)
}

// readPump decodes client frames into loop events.
func (c *captureClient) readPump(cfg config.CaptureConfig) {
	defer func() {
		close(c.events)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval, pongWait := keepalive(cfg)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("capture socket read error", "error", err)
			} else {
				c.logger.Debug("capture socket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))

		ev, ok := c.decode(message)
		if !ok {
			continue
		}
		c.events <- ev
	}
}

// writePump writes queued frames and keepalive pings.
func (c *captureClient) writePump(cfg config.CaptureConfig) {
	pingInterval, pongWait := keepalive(cfg)
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// keepalive returns the ping interval and pong timeout, with defaults for
// unset values.
func keepalive(cfg config.CaptureConfig) (ping, pongWait time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pongWait = time.Duration(cfg.PongTimeout) * time.Second
	if pongWait <= 0 {
		pongWait = defaultPongTimeout
	}
	return ping, pongWait
}

// decode turns a client frame into a loop event. Malformed frames are
// answered with an error frame and dropped.
func (c *captureClient) decode(data []byte) (capture.Event, bool) {
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.sendError("invalid JSON frame")
		return capture.Event{}, false
	}

	switch f.Type {
	case FrameKeyDown, FrameKeyUp:
		field := capture.Field(f.Field)
		if field != capture.FieldPassword && field != capture.FieldConfirm {
			c.sendError("unknown field: " + f.Field)
			return capture.Event{}, false
		}
		kind := capture.EventKeyDown
		if f.Type == FrameKeyUp {
			kind = capture.EventKeyUp
		}
		return capture.Event{Kind: kind, Field: field, Key: f.Key, At: c.clock.at(f.T, time.Now())}, true

	case FrameRetry:
		return capture.Event{Kind: capture.EventRetry}, true

	case FrameMode:
		mode := capture.Mode(f.Mode)
		if !mode.IsValid() {
			c.sendError("mode must be login or register")
			return capture.Event{}, false
		}
		return capture.Event{Kind: capture.EventMode, Mode: mode}, true

	case FrameSubmit:
		return capture.Event{Kind: capture.EventSubmit, Submission: capture.Submission{
			Username: f.Username,
			Password: f.Password,
			Confirm:  f.Confirm,
		}}, true

	default:
		c.sendError("unknown frame type: " + f.Type)
		return capture.Event{}, false
	}
}

// Elapsed implements capture.Observer.
func (c *captureClient) Elapsed(field capture.Field, elapsed time.Duration) {
	c.sendFrame(serverFrame{Type: FrameElapsed, Field: string(field), Elapsed: rhythm.Seconds(elapsed)})
}

// LimitReached implements capture.Observer.
func (c *captureClient) LimitReached(field capture.Field) {
	c.sendFrame(serverFrame{Type: FrameLimit, Field: string(field)})
}

// Result implements capture.Observer.
func (c *captureClient) Result(outcome capture.Outcome) {
	c.sendFrame(serverFrame{Type: FrameResult, OK: outcome.OK, Message: outcome.Message})
}

// Reset implements capture.Observer.
func (c *captureClient) Reset() {
	c.sendFrame(serverFrame{Type: FrameReset})
}

func (c *captureClient) sendError(message string) {
	c.sendFrame(serverFrame{Type: FrameError, Message: message})
}

func (c *captureClient) sendFrame(f serverFrame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.trySend(data)
}

// trySend queues data for writePump. Closed channels (client gone) and
// full buffers (slow client) are absorbed.
func (c *captureClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

// clientClock maps page timestamps (milliseconds) onto server time.
//
// The first timestamped frame fixes the offset; later frames keep the
// page's own spacing. Frames without a timestamp use the arrival time.
// Mapped instants never go backwards: a frame stamped earlier than its
// predecessor is pinned to the predecessor's instant.
type clientClock struct {
	set    bool
	origin float64
	base   time.Time
	last   time.Time
}

func (k *clientClock) at(t float64, now time.Time) time.Time {
	var ts time.Time
	switch {
	case t <= 0 || math.IsNaN(t) || math.IsInf(t, 0):
		ts = now
	case !k.set:
		k.set, k.origin, k.base = true, t, now
		ts = now
	default:
		ts = k.base.Add(time.Duration((t - k.origin) * float64(time.Millisecond)))
	}
	if ts.Before(k.last) {
		ts = k.last
	}
	k.last = ts
	return ts
}

// serviceSubmitter hands reduced submissions from a capture loop to the
// verification service.
type serviceSubmitter struct {
	service    *auth.Service
	remoteAddr string
	userAgent  string
}

// Submit implements capture.Submitter.
func (s *serviceSubmitter) Submit(ctx context.Context, mode capture.Mode, username, password string, times rhythm.Vector) capture.Outcome {
	sub := auth.Submission{
		Username:   username,
		Password:   password,
		Times:      auth.Times(times),
		RemoteAddr: s.remoteAddr,
		UserAgent:  s.userAgent,
	}

	var (
		action = auth.ActionLogin
		err    error
	)
	if mode == capture.ModeRegister {
		action = auth.ActionRegister
		err = s.service.Register(ctx, sub)
	} else {
		_, err = s.service.Authenticate(ctx, sub)
	}

	if err != nil {
		return capture.Outcome{Message: auth.Message(err)}
	}
	return capture.Outcome{OK: true, Message: auth.SuccessMessage(action)}
}
