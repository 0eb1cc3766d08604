package output

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// FrameMessage is the JSON form of a frame on the live stream.
type FrameMessage struct {
	Type    string       `json:"type"`
	Frame   int          `json:"frame"`
	Time    float64      `json:"time"`
	X       []float64    `json:"x"`
	Q       [][]float64  `json:"q"`
	Extrema [][2]float64 `json:"extrema"`
}

func newFrameMessage(f Frame) FrameMessage {
	msg := FrameMessage{Type: "frame", Frame: f.Index, Time: f.Time, X: f.Grid.Centers()}
	for m := 0; m < f.Grid.Meqn; m++ {
		ys := f.Grid.Component(f.Q, m)
		msg.Q = append(msg.Q, ys)
		var ext [2]float64
		if len(ys) > 0 {
			ext = [2]float64{floats.Min(ys), floats.Max(ys)}
		}
		msg.Extrema = append(msg.Extrema, ext)
	}
	return msg
}

// DefaultWriteTimeout bounds a single websocket write.
const DefaultWriteTimeout = 10 * time.Second

// clientQueue is how many frames may wait for a client before it is dropped.
const clientQueue = 4

// Stream is an http.Handler that upgrades requests to websockets and
// broadcasts every frame it receives to the connected clients. A client that
// connects mid-run first receives the most recent frame. With Half set,
// frames go out as EncodeHalf binary messages instead of JSON.
//
// Each client is written by its own goroutine from a short queue, so
// WriteFrame never waits on the network. A client whose queue is full or
// whose write does not finish within WriteTimeout is dropped.
type Stream struct {
	Half         bool
	WriteTimeout time.Duration

	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	clientsMu sync.RWMutex
	clients   map[*streamClient]struct{}
	last      *websocket.PreparedMessage
}

type streamClient struct {
	conn      *websocket.Conn
	send      chan *websocket.PreparedMessage
	done      chan struct{}
	closeOnce sync.Once
}

func (c *streamClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewStream returns a stream accepting any origin.
func NewStream(log logrus.FieldLogger) *Stream {
	return &Stream{
		WriteTimeout: DefaultWriteTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*streamClient]struct{}),
	}
}

func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &streamClient{
		conn: conn,
		send: make(chan *websocket.PreparedMessage, clientQueue),
		done: make(chan struct{}),
	}

	// The replay is queued before the client becomes visible to WriteFrame.
	s.clientsMu.Lock()
	if s.last != nil {
		c.send <- s.last
	}
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()
	defer s.drop(c)

	go s.writeLoop(c)

	// Clients only listen; reading keeps control frames flowing and notices
	// the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Stream) writeLoop(c *streamClient) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if s.WriteTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
			}
			if err := c.conn.WritePreparedMessage(msg); err != nil {
				s.log.WithError(err).Debug("dropping stream client")
				s.drop(c)
				return
			}
		}
	}
}

func (s *Stream) drop(c *streamClient) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
	c.close()
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Stream) prepare(f Frame) (*websocket.PreparedMessage, error) {
	if s.Half {
		return websocket.NewPreparedMessage(websocket.BinaryMessage, EncodeHalf(f))
	}
	data, err := json.Marshal(newFrameMessage(f))
	if err != nil {
		return nil, err
	}
	return websocket.NewPreparedMessage(websocket.TextMessage, data)
}

// WriteFrame queues f for every client. Clients that cannot keep up are
// dropped; that is never an error for the run.
func (s *Stream) WriteFrame(f Frame) error {
	msg, err := s.prepare(f)
	if err != nil {
		return fmt.Errorf("encoding frame %d for stream: %w", f.Index, err)
	}

	var slow []*streamClient
	s.clientsMu.Lock()
	s.last = msg
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	s.clientsMu.Unlock()

	for _, c := range slow {
		s.log.WithField("frame", f.Index).Debug("dropping slow stream client")
		s.drop(c)
	}
	return nil
}
