package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parlor/adapters/broker"
	"parlor/domain"
	"parlor/usecase"
)

type fakeStore struct {
	mu    sync.Mutex
	turns map[string][]domain.TurnRecord
}

func (f *fakeStore) RecordTurn(_ context.Context, sessionID string, records ...domain.TurnRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.turns == nil {
		f.turns = make(map[string][]domain.TurnRecord)
	}
	f.turns[sessionID] = append(f.turns[sessionID], records...)
	return nil
}

func (f *fakeStore) RecentSessions(context.Context, int) ([]domain.SessionSummary, error) {
	return nil, nil
}

func (f *fakeStore) SessionMessages(context.Context, string) ([]domain.TurnRecord, error) {
	return nil, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) recorded(sessionID string) []domain.TurnRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TurnRecord(nil), f.turns[sessionID]...)
}

type fakeSpeaker struct {
	audio []byte
	err   error
	texts []string
}

func (f *fakeSpeaker) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

func newService(llm domain.CompletionClient, b domain.MessageBroker, sp domain.Speaker) *usecase.ChatService {
	return usecase.NewChatService(func() *usecase.Engine {
		return usecase.NewEngine(usecase.EngineConfig{}, llm, nil)
	}, b, sp)
}

func TestHandleTurnIsolatesSessions(t *testing.T) {
	svc := newService(&fakeCompletion{}, nil, nil)
	ctx := context.Background()

	svc.HandleTurn(ctx, "alice", "hello from alice", "chat", false)
	svc.HandleTurn(ctx, "bob", "hello from bob", "chat", false)

	alice := svc.SessionHistory("alice")
	require.Len(t, alice, 2)
	assert.Equal(t, "hello from alice", alice[0].Content)

	bob := svc.SessionHistory("bob")
	require.Len(t, bob, 2)
	assert.Equal(t, "hello from bob", bob[0].Content)

	assert.Equal(t, 2, svc.SessionCount())
}

func TestHandleTurnPublishesTurnEvent(t *testing.T) {
	b := broker.NewChannelBroker()
	defer b.Close()
	ctx := context.Background()

	events, err := b.Subscribe(ctx, domain.TurnTopic, domain.TurnArchiveRoute)
	require.NoError(t, err)

	svc := newService(nil, b, nil)
	reply, _ := svc.HandleTurn(ctx, "s-1", "are you there", "chat", false)
	require.True(t, reply.Fallback)

	select {
	case event := <-events:
		var turn domain.TurnEvent
		require.NoError(t, json.Unmarshal(event.Payload, &turn))
		assert.Equal(t, "s-1", turn.SessionID)
		require.Len(t, turn.Records, 2)

		assert.Equal(t, domain.UserRole, turn.Records[0].Role)
		assert.Equal(t, "are you there", turn.Records[0].Content)
		assert.Equal(t, domain.ModeChat, turn.Records[0].Mode)
		assert.False(t, turn.Records[0].Fallback)

		assert.Equal(t, domain.AssistantRole, turn.Records[1].Role)
		assert.Equal(t, reply.Text, turn.Records[1].Content)
		assert.True(t, turn.Records[1].Fallback)
	case <-time.After(time.Second):
		t.Fatal("no turn event published")
	}
}

func TestArchiverPersistsTurns(t *testing.T) {
	b := broker.NewChannelBroker()
	store := &fakeStore{}
	archiver := usecase.NewArchiver(b, store)
	go archiver.Run(context.Background())

	svc := newService(nil, b, nil)
	svc.HandleTurn(context.Background(), "s-2", "remember this", "facts", false)

	require.Eventually(t, func() bool {
		return len(store.recorded("s-2")) == 2
	}, time.Second, 10*time.Millisecond)

	records := store.recorded("s-2")
	assert.Equal(t, domain.UserRole, records[0].Role)
	assert.Equal(t, "remember this", records[0].Content)
	assert.Equal(t, domain.ModeKnowledge, records[0].Mode)
	assert.Equal(t, domain.AssistantRole, records[1].Role)

	require.NoError(t, b.Close())
	select {
	case <-archiver.Done():
	case <-time.After(time.Second):
		t.Fatal("archiver did not stop after broker close")
	}
}

func TestArchiverDiscardsMalformedEvents(t *testing.T) {
	b := broker.NewChannelBroker()
	store := &fakeStore{}
	archiver := usecase.NewArchiver(b, store)
	go archiver.Run(context.Background())
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, domain.TurnTopic, domain.TurnArchiveRoute, []byte("{not json")))

	payload, err := json.Marshal(domain.TurnEvent{
		SessionID: "s-3",
		Records:   []domain.TurnRecord{{Role: domain.UserRole, Content: "still works"}},
	})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, domain.TurnTopic, domain.TurnArchiveRoute, payload))

	require.Eventually(t, func() bool {
		return len(store.recorded("s-3")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "still works", store.recorded("s-3")[0].Content)

	require.NoError(t, b.Close())
	<-archiver.Done()
}

func TestHandleTurnSpeaks(t *testing.T) {
	speaker := &fakeSpeaker{audio: []byte{0x49, 0x44, 0x33}}
	svc := newService(&fakeCompletion{reply: "spoken words"}, nil, speaker)

	reply, audio := svc.HandleTurn(context.Background(), "s-4", "say it", "chat", true)

	assert.Equal(t, []byte{0x49, 0x44, 0x33}, audio)
	require.Len(t, speaker.texts, 1)
	assert.Equal(t, reply.Text, speaker.texts[0])
}

func TestHandleTurnSpeakOff(t *testing.T) {
	speaker := &fakeSpeaker{audio: []byte{0x01}}
	svc := newService(&fakeCompletion{}, nil, speaker)

	_, audio := svc.HandleTurn(context.Background(), "s-5", "quietly", "chat", false)

	assert.Nil(t, audio)
	assert.Empty(t, speaker.texts)
}

func TestHandleTurnSpeechFailureIsNotFatal(t *testing.T) {
	speaker := &fakeSpeaker{err: errors.New("tts quota exceeded")}
	svc := newService(&fakeCompletion{reply: "still here"}, nil, speaker)

	reply, audio := svc.HandleTurn(context.Background(), "s-6", "say it", "chat", true)

	assert.Nil(t, audio)
	assert.Equal(t, "still here", reply.Text)
	assert.False(t, reply.Fallback)
}

func TestSetSessionPrompt(t *testing.T) {
	llm := &fakeCompletion{reply: "ok"}
	svc := newService(llm, nil, nil)
	ctx := context.Background()

	mode := svc.SetSessionPrompt(ctx, "s-7", "Programming", "Be terse.")
	assert.Equal(t, domain.ModeCode, mode)

	svc.HandleTurn(ctx, "s-7", "hi", "code", false)
	require.Len(t, llm.calls, 1)
	assert.Equal(t, "Be terse.", llm.calls[0][0].Content)
}

func TestResetSessionLeavesOthersAlone(t *testing.T) {
	svc := newService(&fakeCompletion{}, nil, nil)
	ctx := context.Background()

	svc.HandleTurn(ctx, "alice", "one", "chat", false)
	svc.HandleTurn(ctx, "bob", "two", "chat", false)

	svc.ResetSession(ctx, "alice")

	assert.Empty(t, svc.SessionHistory("alice"))
	assert.Len(t, svc.SessionHistory("bob"), 2)
}
