package handlers

import (
	"artisan-delivery/internal/adapters/geolocation"
	"artisan-delivery/internal/api/dto"
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/services"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type NavigationHandler struct {
	Manager   *services.NavigationManager
	MaxFixAge time.Duration
	Log       *zap.Logger
}

func (h *NavigationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ws", h.Connect)
	r.GET("/sessions/:user_id", h.GetSession)
	r.DELETE("/sessions/:user_id", h.StopSession)
}

func (h *NavigationHandler) GetSession(c *gin.Context) {
	snap, err := h.Manager.Snapshot(c.Request.Context(), c.Param("user_id"))
	if errors.Is(err, services.ErrSessionNotFound) {
		writeError(c, http.StatusNotFound, "navigation session not found")
		return
	}
	if err != nil {
		writeServiceError(c, h.Log, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// StopSession is idempotent: unknown users and finished sessions still get 204.
func (h *NavigationHandler) StopSession(c *gin.Context) {
	h.Manager.Stop(c.Param("user_id"))
	c.Status(http.StatusNoContent)
}

// Connect upgrades to a websocket and runs one navigation session fed by the
// positions the client pushes. Closing the socket disposes the session.
func (h *NavigationHandler) Connect(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		writeError(c, http.StatusBadRequest, "user_id is required")
		return
	}
	dest, err := parseDestination(c.Query("dest_lat"), c.Query("dest_lng"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	defer conn.Close()

	feed := geolocation.NewFeedSource(h.MaxFixAge)
	defer feed.Close()

	sess, err := h.Manager.Open(userID, dest, feed)
	if err != nil {
		_ = conn.WriteJSON(dto.ServerMessage{Type: dto.MsgError, Error: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	client := newWSClient(conn)
	go client.writer()
	defer client.wait()
	defer client.close()

	unsubscribe := sess.Subscribe(func(snap domain.NavigationSnapshot) {
		client.push(dto.ServerMessage{Type: dto.MsgState, Snapshot: &snap})
	})
	defer unsubscribe()

	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer releaseCancel()
		h.Manager.Release(releaseCtx, sess)
	}()

	log := h.Log.With(zap.String("user_id", userID), zap.String("session_id", sess.ID()))
	log.Info("navigation connected")

	h.start(ctx, sess, client, log)

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg dto.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("navigation connection lost", zap.Error(err))
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := h.handleMessage(ctx, sess, feed, client, log, msg); err != nil {
			client.push(dto.ServerMessage{Type: dto.MsgError, Error: err.Error()})
		}
	}

	log.Info("navigation disconnected", zap.String("state", string(sess.State())))
}

// start runs Start in the background since it blocks until the client sends a fix.
func (h *NavigationHandler) start(ctx context.Context, sess *services.NavigationSession, client *wsClient, log *zap.Logger) {
	go func() {
		err := sess.Start(ctx)
		var pe *domain.PositionError
		switch {
		case err == nil, errors.Is(err, services.ErrStartAbandoned), errors.Is(err, context.Canceled):
		case errors.As(err, &pe):
			// already reported through the Error snapshot
		default:
			log.Warn("navigation start failed", zap.Error(err))
			client.push(dto.ServerMessage{Type: dto.MsgError, Error: err.Error()})
		}
	}()
}

func (h *NavigationHandler) handleMessage(
	ctx context.Context,
	sess *services.NavigationSession,
	feed *geolocation.FeedSource,
	client *wsClient,
	log *zap.Logger,
	msg dto.ClientMessage,
) error {
	switch msg.Type {
	case dto.MsgPosition:
		if msg.Lat == nil || msg.Lng == nil {
			return errors.New("position: lat and lng are required")
		}
		c := domain.Coordinate{Lat: *msg.Lat, Lng: *msg.Lng}
		if err := c.Validate(); err != nil {
			return err
		}
		feed.Publish(domain.PositionUpdate{Fix: domain.PositionFix{
			Coordinate:     c,
			AccuracyMeters: msg.Accuracy,
			Timestamp:      time.Now(),
		}})

	case dto.MsgPositionError:
		code, ok := domain.ParsePositionErrorCode(msg.Code)
		if !ok {
			return errors.New("position_error: unknown code " + strconv.Quote(msg.Code))
		}
		feed.Publish(domain.PositionUpdate{Err: domain.NewPositionError(code, msg.Message)})

	case dto.MsgStart:
		if state := sess.State(); state != domain.NavIdle {
			return errors.New("start: session is " + string(state))
		}
		h.start(ctx, sess, client, log)

	case dto.MsgBegin:
		return sess.Begin()

	case dto.MsgStop:
		sess.Stop()

	default:
		return errors.New("unknown message type " + strconv.Quote(msg.Type))
	}
	return nil
}

func parseDestination(rawLat, rawLng string) (domain.Coordinate, error) {
	if rawLat == "" || rawLng == "" {
		return domain.Coordinate{}, errors.New("dest_lat and dest_lng are required")
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return domain.Coordinate{}, errors.New("dest_lat must be a number")
	}
	lng, err := strconv.ParseFloat(rawLng, 64)
	if err != nil {
		return domain.Coordinate{}, errors.New("dest_lng must be a number")
	}

	dest := domain.Coordinate{Lat: lat, Lng: lng}
	if err := dest.Validate(); err != nil {
		return domain.Coordinate{}, err
	}
	return dest, nil
}

// wsClient serialises writes to a websocket connection. gorilla allows one
// concurrent writer, so everything goes through sendCh.
type wsClient struct {
	conn     *websocket.Conn
	sendCh   chan dto.ServerMessage
	done     chan struct{}
	finished chan struct{}
	once     sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn:     conn,
		sendCh:   make(chan dto.ServerMessage, sendBuffer),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (w *wsClient) push(msg dto.ServerMessage) {
	select {
	case <-w.done:
	case w.sendCh <- msg:
	}
}

func (w *wsClient) close() {
	w.once.Do(func() { close(w.done) })
}

func (w *wsClient) wait() { <-w.finished }

func (w *wsClient) writer() {
	defer close(w.finished)
	defer w.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			_ = w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-w.sendCh:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteJSON(msg); err != nil {
				// unblock the reader too
				_ = w.conn.Close()
				return
			}
		case <-ticker.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = w.conn.Close()
				return
			}
		}
	}
}
