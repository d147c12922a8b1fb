package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"qs_chat/internal/model"
	identityRepo "qs_chat/internal/repository/identity"
	"qs_chat/internal/utils/log"
)

type (
	// AnnounceQueue buffers announce frames for peers without a live socket.
	AnnounceQueue interface {
		Dequeue(ctx context.Context, to string) ([]*model.Announce, error)
		Queue(ctx context.Context, to string, frames []*model.Announce) error
	}

	// peerConn serializes writes to one websocket. gorilla permits a single
	// concurrent writer per connection, and presence broadcasts, announce
	// forwarding and offline-queue flushes all target the same socket from
	// different goroutines.
	peerConn struct {
		mu   sync.Mutex
		conn *websocket.Conn
	}

	// Relay forwards announce frames between connected peers. Envelopes
	// themselves live in the content store; the relay only ever sees
	// announcements, never plaintext or ciphertext.
	Relay struct {
		mu           sync.Mutex
		mapper       map[string]*peerConn
		identityRepo *identityRepo.IdentityRepo
		queue        AnnounceQueue
	}
)

func (p *peerConn) writeJSON(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(v)
}

func (p *peerConn) writeMessage(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *peerConn) close() error {
	return p.conn.Close()
}

func NewRelay(identityRepo *identityRepo.IdentityRepo, queue AnnounceQueue) *Relay {
	return &Relay{
		mapper:       make(map[string]*peerConn),
		identityRepo: identityRepo,
		queue:        queue,
	}
}

func (s *Relay) Run(addr string) error {
	r := mux.NewRouter()

	r.HandleFunc("/init", s.HandleInitWS()).Methods(http.MethodGet)
	r.HandleFunc("/keys/{name}", s.GetPeerKeys()).Methods(http.MethodGet)
	return http.ListenAndServe(addr, r)
}

func (s *Relay) HandleInitWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userID")
		if userID == "" {
			http.Error(w, "userID cannot be empty", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "Failed to upgrade", http.StatusInternalServerError)
			return
		}
		pc := &peerConn{conn: conn}

		s.mu.Lock()
		if old, ok := s.mapper[userID]; ok {
			// A reconnect replaces any stale socket for the same user.
			old.close()
		}
		s.mapper[userID] = pc
		s.mu.Unlock()

		go s.processFrames(userID, pc)
		s.broadcastPresence()
		if err := s.ForwardQueuedAnnounces(userID); err != nil {
			log.Error("forward queued announces failed", zap.Error(err))
		}
	}
}

func (s *Relay) processFrames(userID string, pc *peerConn) {
	for {
		_, data, err := pc.conn.ReadMessage()
		if err != nil {
			log.Debug("peer socket closed", zap.String("user", userID), zap.Error(err))
			s.mu.Lock()
			if s.mapper[userID] == pc {
				delete(s.mapper, userID)
			}
			s.mu.Unlock()
			pc.close()
			s.broadcastPresence()
			break
		}

		var frame model.Announce
		err = json.Unmarshal(data, &frame)
		if err != nil {
			log.Error("unmarshal announce failed", zap.Error(err))
			continue
		}

		s.mu.Lock()
		target, online := s.mapper[frame.To]
		s.mu.Unlock()

		if online {
			if err := target.writeMessage(data); err != nil {
				log.Error("forward announce failed", zap.String("to", frame.To), zap.Error(err))
			}
			continue
		}
		if err := s.queue.Queue(context.TODO(), frame.To, []*model.Announce{&frame}); err != nil {
			log.Error("queue announce failed", zap.Error(err))
		}
	}
}

func (s *Relay) GetPeerKeys() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		vars := mux.Vars(r)
		name := vars["name"]
		log.Info("GetPeerKeys: ", zap.String("name", name))

		id, err := s.identityRepo.GetByName(ctx, name)
		if err != nil {
			log.Error("get peer keys failed", zap.Error(err))
			http.Error(w, "get peer keys failed", http.StatusInternalServerError)
			return
		}

		if id == nil {
			http.Error(w, "user does not exist", http.StatusBadRequest)
			return
		}

		data, err := json.Marshal(id.PublicKeys())
		if err != nil {
			log.Error("get peer keys failed", zap.Error(err))
			http.Error(w, "get peer keys failed", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// ForwardQueuedAnnounces flushes announces that arrived while the user was
// offline.
func (s *Relay) ForwardQueuedAnnounces(userID string) error {
	frames, err := s.queue.Dequeue(context.TODO(), userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn, ok := s.mapper[userID]
	s.mu.Unlock()
	if !ok {
		// User dropped between connect and flush; requeue.
		return s.queue.Queue(context.TODO(), userID, frames)
	}

	for _, frame := range frames {
		if err := conn.writeJSON(frame); err != nil {
			return err
		}
	}
	return nil
}

// broadcastPresence pushes the connected-peer count to every live socket.
func (s *Relay) broadcastPresence() {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := &model.Announce{
		Type:      model.FramePresence,
		PeerCount: len(s.mapper),
		Timestamp: time.Now().UnixNano(),
	}
	for userID, conn := range s.mapper {
		if err := conn.writeJSON(frame); err != nil {
			log.Debug("presence push failed", zap.String("user", userID), zap.Error(err))
		}
	}
}
