package visualizer

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/groutine"
)

const (
	writeWait    = 2 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	clientBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Feed serves the sample history over HTTP and pushes new samples to
// WebSocket subscribers. Subscribers that cannot keep up are dropped.
type Feed struct {
	vis     *Visualizer
	logger  *logrus.Logger
	handler http.Handler

	clients *hashmap.Map[uint64, *feedClient]
	nextID  atomic.Uint64

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

type feedClient struct {
	id   uint64
	conn *websocket.Conn
	send chan Sample
	done chan struct{}
	once sync.Once
}

func (c *feedClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// NewFeed builds the gin router for vis
func NewFeed(vis *Visualizer, logger *logrus.Logger) *Feed {
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	f := &Feed{
		vis:     vis,
		logger:  logger,
		clients: hashmap.New[uint64, *feedClient](),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), f.requestLogger())
	engine.GET("/api/samples", f.getSamples)
	engine.GET("/api/latest", f.getLatest)
	engine.GET("/ws", f.handleWebSocket)

	f.handler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(engine)
	return f
}

// Handler returns the CORS-wrapped router
func (f *Feed) Handler() http.Handler {
	return f.handler
}

// Start listens on addr and serves in the background
func (f *Feed) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.listener = ln
	f.server = &http.Server{Handler: f.handler, ReadHeaderTimeout: 5 * time.Second}
	server := f.server
	f.mu.Unlock()

	f.logger.WithField("addr", ln.Addr().String()).Info("Live feed listening")
	groutine.GoSafe(context.Background(), "visualizer-feed", f.logger, func(context.Context) {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.WithError(err).Error("Live feed stopped")
		}
	})
	return nil
}

// Addr returns the bound address once started
func (f *Feed) Addr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

// Stop shuts the server down and disconnects every subscriber
func (f *Feed) Stop() error {
	f.mu.Lock()
	server := f.server
	f.server = nil
	f.mu.Unlock()

	f.clients.Range(func(id uint64, c *feedClient) bool {
		f.remove(id)
		return true
	})
	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// Subscribers returns the number of connected WebSocket clients
func (f *Feed) Subscribers() int {
	return f.clients.Len()
}

func (f *Feed) broadcast(s Sample) {
	f.clients.Range(func(id uint64, c *feedClient) bool {
		select {
		case c.send <- s:
		case <-c.done:
		default:
			f.logger.WithField("client", id).Warn("Live feed client too slow, disconnecting")
			f.remove(id)
		}
		return true
	})
}

func (f *Feed) remove(id uint64) {
	if c, ok := f.clients.Get(id); ok {
		f.clients.Del(id)
		c.close()
	}
}

func (f *Feed) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		f.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("Live feed request")
	}
}

func (f *Feed) getSamples(c *gin.Context) {
	rng := f.vis.Range()
	c.JSON(http.StatusOK, gin.H{
		"range":   gin.H{"min": uint64(rng.Min), "max": uint64(rng.Max)},
		"samples": f.vis.Samples(),
	})
}

func (f *Feed) getLatest(c *gin.Context) {
	s, ok := f.vis.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no samples yet"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (f *Feed) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.logger.WithError(err).Warn("Failed to upgrade websocket")
		return
	}

	client := &feedClient{
		id:   f.nextID.Add(1),
		conn: conn,
		send: make(chan Sample, clientBuffer),
		done: make(chan struct{}),
	}
	f.clients.Set(client.id, client)
	f.logger.WithField("client", client.id).Debug("Live feed client connected")

	groutine.GoSafe(context.Background(), "feed-writer", f.logger, func(context.Context) {
		f.writePump(client)
	})
	groutine.GoSafe(context.Background(), "feed-reader", f.logger, func(context.Context) {
		f.readPump(client)
	})
}

// readPump only watches for the peer going away
func (f *Feed) readPump(c *feedClient) {
	defer f.remove(c.id)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writePump(c *feedClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		f.remove(c.id)
	}()

	for {
		select {
		case <-c.done:
			return
		case s := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(s); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
