package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"qs_chat/internal/connection"
	"qs_chat/internal/cryptographic/kem"
	"qs_chat/internal/cryptographic/signature"
	"qs_chat/internal/model"
	"qs_chat/internal/pipeline/cipher"
	"qs_chat/internal/pipeline/ledger"
	"qs_chat/internal/pipeline/proofgate"
	"qs_chat/internal/pipeline/session"
	"qs_chat/internal/store/content"
	"qs_chat/internal/utils/log"
)

type (
	// Session wires the full pipeline for one local user.
	//
	// Send: plaintext -> session key -> cipher -> signature -> proof ->
	// content store -> announce -> ledger.
	//
	// Receive: announce -> fetch -> proof gate -> verify -> decrypt ->
	// ledger. Rejections are quarantined, never surfaced.
	Session struct {
		identity *model.Identity

		sessions   *session.Manager
		dispatcher *cipher.Dispatcher
		gate       *proofgate.Gate
		store      content.Store
		fetcher    *content.Fetcher
		conn       *connection.Manager
		ldg        *ledger.Ledger

		relayHost string

		onMessage func(*model.Message)

		keysMu    sync.RWMutex
		peerCache map[string]*model.PeerKeys

		tsMu   sync.Mutex
		lastTS int64

		cancel context.CancelFunc
		wg     sync.WaitGroup
	}
)

// NewSession builds the pipeline around an identity and a connection
// manager. The content store is shared with peers (e.g. redis-backed);
// the ledger is local.
func NewSession(identity *model.Identity, conn *connection.Manager, store content.Store, gate *proofgate.Gate, relayHost string) *Session {
	s := &Session{
		identity:   identity,
		dispatcher: cipher.NewDispatcher(),
		gate:       gate,
		store:      store,
		fetcher:    content.NewFetcher(store, nil),
		conn:       conn,
		ldg:        ledger.NewLedger(),
		relayHost:  relayHost,
		peerCache:  make(map[string]*model.PeerKeys),
	}
	s.sessions = session.NewManager(identity.Name, identity.KEMPriv, kem.NewProvider(), s.PeerKeys)
	return s
}

// OnMessage registers the callback fired for every accepted inbound message.
// Must be set before Start.
func (s *Session) OnMessage(fn func(*model.Message)) {
	s.onMessage = fn
}

func (s *Session) Ledger() *ledger.Ledger {
	return s.ldg
}

// States exposes the connection-state stream for the UI.
func (s *Session) States() <-chan model.StateChange {
	return s.conn.States()
}

// Start connects to the relay and runs the receive path.
func (s *Session) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.conn.Connect(); err != nil {
		// Not fatal: the manager keeps reconnecting with backoff.
		log.Warn("initial connect failed, reconnecting in background", zap.Error(err))
	}

	s.wg.Add(1)
	go s.receiveLoop(ctx)
	return nil
}

// Stop tears the pipeline down: no events fire after it returns.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.conn.Close()
	s.wg.Wait()
}

// Send runs the send path for one plaintext. Failures are fatal to this
// attempt: the message is recorded with Failed set and the error returned
// for retry or user notification.
func (s *Session) Send(ctx context.Context, peerID string, plaintext []byte, mode model.CipherMode) (*model.Message, error) {
	key, err := s.sessions.GetOrCreate(ctx, peerID)
	if err != nil {
		return nil, err
	}

	env := &model.Envelope{
		From:          s.identity.Name,
		To:            peerID,
		Mode:          mode,
		KeyGeneration: key.Generation,
		KEMCiphertext: key.KEMCiphertext,
		Timestamp:     s.nextTimestamp(),
	}

	env.Ciphertext, err = s.dispatcher.Encrypt(mode, key.Key, plaintext, envelopeAAD(env))
	if err != nil {
		return nil, err
	}

	env.Signature, err = signature.MLDSASign(s.identity.SigPriv, env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("sign ciphertext: %w", err)
	}

	env.Proof = proofgate.Attach(env.Ciphertext)

	msg := model.FromEnvelope(env)
	msg.Plaintext = plaintext

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	storeID, err := s.store.Put(ctx, data)
	if err != nil {
		msg.Failed = true
		s.ldg.Insert(msg)
		return msg, fmt.Errorf("persist envelope: %w", err)
	}

	err = s.conn.Send(&model.Announce{
		Type:      model.FrameAnnounce,
		From:      s.identity.Name,
		To:        peerID,
		StoreID:   storeID,
		Timestamp: env.Timestamp,
	})
	if err != nil {
		msg.Failed = true
		s.ldg.Insert(msg)
		return msg, fmt.Errorf("announce envelope: %w", err)
	}

	s.ldg.Insert(msg)
	return msg, nil
}

// RotateKey replaces the session key for a peer; traffic encrypted under the
// old generation stays decryptable until drained.
func (s *Session) RotateKey(ctx context.Context, peerID string) error {
	_, err := s.sessions.Rotate(ctx, peerID)
	return err
}

func (s *Session) receiveLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-s.conn.Announcements():
			if !ok {
				return
			}
			switch frame.Type {
			case model.FrameAnnounce:
				s.handleAnnounce(ctx, &frame)
			case model.FrameDelivered:
				if err := s.ldg.MarkStatus(frame.MessageID, model.StatusDelivered); err != nil {
					log.Debug("delivery receipt ignored", zap.String("id", frame.MessageID), zap.Error(err))
				}
			default:
				log.Debug("unknown frame type", zap.String("type", frame.Type))
			}
		}
	}
}

// handleAnnounce runs the receive path for one announced envelope. Every
// rejection is absorbed: quarantined and logged, never fatal, never visible.
func (s *Session) handleAnnounce(ctx context.Context, frame *model.Announce) {
	data, err := s.fetcher.Get(ctx, frame.StoreID)
	if err != nil {
		log.Warn("announced envelope unavailable", zap.String("store_id", frame.StoreID), zap.Error(err))
		return
	}

	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn("malformed envelope", zap.String("store_id", frame.StoreID), zap.Error(err))
		return
	}

	// Proof gate runs before the signature check: cheaper rejection first,
	// but both gates must pass.
	if !s.gate.Validate(env.Ciphertext, env.Proof) {
		s.quarantine(&env, "proof rejected")
		return
	}

	peer, err := s.PeerKeys(ctx, env.From)
	if err != nil {
		s.quarantine(&env, "sender keys unavailable")
		return
	}

	if !signature.MLDSAVerify(peer.SigPub, env.Ciphertext, env.Signature) {
		s.quarantine(&env, "signature invalid")
		return
	}

	var key *model.SessionKey
	if len(env.KEMCiphertext) > 0 {
		key, err = s.sessions.Adopt(env.From, env.KeyGeneration, env.KEMCiphertext)
	} else {
		key, err = s.sessions.ByGeneration(env.From, env.KeyGeneration)
	}
	if err != nil {
		s.quarantine(&env, "session key unavailable")
		return
	}

	plain, err := s.dispatcher.Decrypt(env.Mode, key.Key, env.Ciphertext, envelopeAAD(&env))
	if err != nil {
		s.quarantine(&env, "decrypt failed")
		return
	}

	msg := model.FromEnvelope(&env)
	if !s.dispatcher.Opaque(env.Mode) {
		msg.Plaintext = plain
	}

	if res := s.ldg.Insert(msg); res != ledger.Accepted {
		log.Debug("inbound message not accepted", zap.String("id", msg.ID), zap.String("result", res.String()))
		return
	}

	// Delivery receipt lets the sender advance sent -> delivered.
	err = s.conn.Send(&model.Announce{
		Type:      model.FrameDelivered,
		From:      s.identity.Name,
		To:        env.From,
		MessageID: msg.ID,
		Timestamp: s.nextTimestamp(),
	})
	if err != nil {
		log.Debug("delivery receipt not sent", zap.Error(err))
	}

	if s.onMessage != nil {
		s.onMessage(msg)
	}
}

func (s *Session) quarantine(env *model.Envelope, reason string) {
	s.ldg.Quarantine(env, reason)
	log.Warn("envelope quarantined",
		zap.String("from", env.From),
		zap.String("reason", reason),
	)
}

// nextTimestamp returns sender-assigned timestamps that are strictly
// monotonic even when the wall clock stalls or steps backward.
func (s *Session) nextTimestamp() int64 {
	s.tsMu.Lock()
	defer s.tsMu.Unlock()
	ts := time.Now().UnixNano()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

// envelopeAAD binds the envelope header to the ciphertext.
func envelopeAAD(env *model.Envelope) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s|%d", env.From, env.To, env.Mode, env.KeyGeneration))
}
