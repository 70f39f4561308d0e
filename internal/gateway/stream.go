package gateway

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/driveshare/driveshare/pkg/messaging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamSubjects is everything the marketplace announces over the bus.
var streamSubjects = []string{"rental.*", "dispute.*", "vehicle.*", "policy.*", "alert.*"}

// Stream fans marketplace observations out to websocket subscribers.
// Observations are broadcast to every connected client; slow clients
// drop messages rather than stalling the hub.
type Stream struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*streamClient

	client *messaging.Client
	logger *zap.Logger
}

type streamClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// NewStream builds the hub. Call Run to start bridging the bus.
func NewStream(client *messaging.Client, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		clients: make(map[uuid.UUID]*streamClient),
		client:  client,
		logger:  logger,
	}
}

// Run subscribes to the observation subjects and broadcasts every
// message until the subscriptions are torn down via the client.
func (s *Stream) Run() error {
	for _, subject := range streamSubjects {
		if err := s.client.Subscribe(subject, func(msg *nats.Msg) {
			s.broadcast(msg.Data)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Handle upgrades the request and registers the connection.
func (s *Stream) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &streamClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	go s.readPump(client)
	go s.writePump(client)
}

func (s *Stream) readPump(client *streamClient) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.id)
		s.mu.Unlock()
		close(client.done)
		client.conn.Close()
	}()

	// The stream is one-way; reads only detect disconnects.
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Stream) writePump(client *streamClient) {
	for {
		select {
		case message := <-client.send:
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}

func (s *Stream) broadcast(message []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clients {
		select {
		case client.send <- message:
		default:
			s.logger.Debug("dropping message for slow stream client",
				zap.String("client_id", client.id.String()))
		}
	}
}
