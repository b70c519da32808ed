package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"parlor/domain"
	"parlor/utils/log"
)

// EngineFactory builds a fresh engine for a new session.
type EngineFactory func() *Engine

// ChatService multiplexes engines across sessions and carries the
// transport-side extras: turn archiving through the broker and optional
// spoken replies. Engines themselves are single-threaded; the per-session
// mutex here is the serialization they require.
type ChatService struct {
	newEngine EngineFactory
	broker    domain.MessageBroker
	speaker   domain.Speaker
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	mu     sync.Mutex
	engine *Engine
}

// NewChatService wires the service. broker and speaker may be nil; turns
// are then neither archived nor spoken.
func NewChatService(newEngine EngineFactory, broker domain.MessageBroker, speaker domain.Speaker) *ChatService {
	return &ChatService{
		newEngine: newEngine,
		broker:    broker,
		speaker:   speaker,
		now:       time.Now,
		sessions:  make(map[string]*session),
	}
}

func (s *ChatService) session(id string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[id]; ok {
		return sess
	}
	sess = &session{engine: s.newEngine()}
	s.sessions[id] = sess
	return sess
}

// HandleTurn runs one turn for a session. Archiving and speech synthesis
// are side effects: their failures are logged and never touch the reply.
// The audio return is nil unless speak was requested and synthesis worked.
func (s *ChatService) HandleTurn(ctx context.Context, sessionID, text, modeLabel string, speak bool) (Reply, []byte) {
	sess := s.session(sessionID)
	sess.mu.Lock()
	reply := sess.engine.Respond(ctx, text, modeLabel)
	sess.mu.Unlock()

	s.publishTurn(ctx, sessionID, text, reply)

	var audio []byte
	if speak && s.speaker != nil {
		var err error
		audio, err = s.speaker.Synthesize(ctx, reply.Text)
		if err != nil {
			log.WithCtx(ctx).Warn("speech synthesis failed", zap.Error(err))
			audio = nil
		}
	}
	return reply, audio
}

func (s *ChatService) publishTurn(ctx context.Context, sessionID, text string, reply Reply) {
	if s.broker == nil {
		return
	}

	now := s.now()
	payload, err := json.Marshal(domain.TurnEvent{
		SessionID: sessionID,
		Records: []domain.TurnRecord{
			{Role: domain.UserRole, Content: text, Mode: reply.Mode, CreatedAt: now},
			{Role: domain.AssistantRole, Content: reply.Text, Mode: reply.Mode, Fallback: reply.Fallback, CreatedAt: now},
		},
	})
	if err != nil {
		log.WithCtx(ctx).Error("encoding turn event failed", zap.Error(err))
		return
	}
	if err := s.broker.Publish(ctx, domain.TurnTopic, domain.TurnArchiveRoute, payload); err != nil {
		log.WithCtx(ctx).Warn("publishing turn event failed", zap.Error(err))
	}
}

// ResetSession clears a session's conversation history.
func (s *ChatService) ResetSession(ctx context.Context, sessionID string) {
	sess := s.session(sessionID)
	sess.mu.Lock()
	sess.engine.Reset()
	sess.mu.Unlock()
	log.WithCtx(ctx).Info("chat history reset", zap.String("session_id", sessionID))
}

// SessionHistory returns a copy of a session's retained conversation.
func (s *ChatService) SessionHistory(sessionID string) []domain.Message {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.engine.History()
}

// SetSessionPrompt overrides one mode's system prompt for a session and
// returns the mode the label resolved to.
func (s *ChatService) SetSessionPrompt(ctx context.Context, sessionID, modeLabel, prompt string) domain.Mode {
	mode := domain.ResolveMode(modeLabel)
	sess := s.session(sessionID)
	sess.mu.Lock()
	sess.engine.SetSystemPrompt(mode, prompt)
	sess.mu.Unlock()
	log.WithCtx(ctx).Info("system prompt replaced",
		zap.String("session_id", sessionID),
		zap.String("mode", string(mode)))
	return mode
}

// SessionCount reports how many sessions have been touched since start.
func (s *ChatService) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
