package command

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/palmerwenzel/chat-genius-sub000/internal/botservice"
	"github.com/palmerwenzel/chat-genius-sub000/internal/mocks"
	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
)

func newTestDispatcher(messages *mocks.MessageRepositoryMock, bots *mocks.BotClientMock, notifier *mocks.NotifierMock) *Dispatcher {
	return NewDispatcher(messages, bots, notifier, nil, zerolog.Nop())
}

func testRequest() Request {
	return Request{ChannelID: uuid.New(), UserID: uuid.New(), RequestID: "req-1"}
}

func TestBotSenderIDIsStable(t *testing.T) {
	assert.Equal(t, BotSenderID(1), BotSenderID(1))
	assert.NotEqual(t, BotSenderID(1), BotSenderID(2))
	assert.NotEqual(t, SystemSenderID, BotSenderID(1))
}

func TestDispatchSeedStoresGeneratedTurns(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	bots := new(mocks.BotClientMock)
	notifier := new(mocks.NotifierMock)
	d := newTestDispatcher(messages, bots, notifier)
	req := testRequest()

	bots.On("Seed", mock.Anything, mock.MatchedBy(func(r botservice.SeedRequest) bool {
		return r.Prompt == "space pirates" && r.NumTurns == 2 && len(r.Bots) == 2
	})).Return([]botservice.SeedMessage{
		{BotNumber: 1, Content: "ahoy"},
		{BotNumber: 2, Content: "avast"},
	}, nil).Once()

	messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.SenderID == BotSenderID(1) &&
			m.Metadata["is_bot"] == true &&
			m.Metadata["is_command_response"] == true &&
			m.Metadata["bot_number"] == 1
	})).Return(models.Message{}, nil).Once()
	messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.SenderID == BotSenderID(2) && m.Content == "avast"
	})).Return(models.Message{}, nil).Once()

	notifier.On("Notify", mock.Anything, req.UserID, mock.MatchedBy(func(n models.Notification) bool {
		return n.Variant == models.VariantDefault
	})).Once()

	d.Dispatch(context.Background(), Command{Kind: KindSeed, Prompt: "space pirates", NumTurns: 2, Bots: []int{1, 2}}, req)

	messages.AssertExpectations(t)
	bots.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestDispatchSeedDefaultsToThreeTurns(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	bots := new(mocks.BotClientMock)
	notifier := new(mocks.NotifierMock)
	d := newTestDispatcher(messages, bots, notifier)

	bots.On("Seed", mock.Anything, mock.MatchedBy(func(r botservice.SeedRequest) bool {
		return r.NumTurns == DefaultSeedTurns
	})).Return([]botservice.SeedMessage(nil), nil).Once()
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Once()

	d.Dispatch(context.Background(), Command{Kind: KindSeed, Prompt: "topic"}, testRequest())
	bots.AssertExpectations(t)
}

func TestDispatchSeedFailureNotifiesOnce(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	bots := new(mocks.BotClientMock)
	notifier := new(mocks.NotifierMock)
	d := newTestDispatcher(messages, bots, notifier)
	req := testRequest()

	bots.On("Seed", mock.Anything, mock.Anything).
		Return([]botservice.SeedMessage(nil), assert.AnError).Once()
	notifier.On("Notify", mock.Anything, req.UserID, mock.MatchedBy(func(n models.Notification) bool {
		return n.Variant == models.VariantDestructive
	})).Once()

	d.Dispatch(context.Background(), Command{Kind: KindSeed, Prompt: "topic"}, req)

	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestDispatchSummaryEmptyChannelFailsFast(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	bots := new(mocks.BotClientMock)
	notifier := new(mocks.NotifierMock)
	d := newTestDispatcher(messages, bots, notifier)
	req := testRequest()

	messages.On("ListChannelHistory", mock.Anything, req.ChannelID).
		Return([]models.Message{}, nil).Once()
	notifier.On("Notify", mock.Anything, req.UserID, mock.MatchedBy(func(n models.Notification) bool {
		return n.Variant == models.VariantDestructive && strings.Contains(n.Description, "no messages")
	})).Once()

	d.Dispatch(context.Background(), Command{Kind: KindSummary}, req)

	bots.AssertNotCalled(t, "Summarize", mock.Anything, mock.Anything)
	notifier.AssertExpectations(t)
}

func TestDispatchSummaryStoresSystemMessage(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	bots := new(mocks.BotClientMock)
	notifier := new(mocks.NotifierMock)
	d := newTestDispatcher(messages, bots, notifier)
	req := testRequest()

	history := []models.Message{{Content: "hi", SenderName: "amy"}}
	messages.On("ListChannelHistory", mock.Anything, req.ChannelID).Return(history, nil).Once()
	bots.On("Summarize", mock.Anything, mock.MatchedBy(func(r botservice.SummaryRequest) bool {
		return len(r.Messages) == 1 && r.Messages[0].Role == "user"
	})).Return("a fine summary", nil).Once()
	messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.SenderID == SystemSenderID &&
			m.Content == "a fine summary" &&
			m.Metadata["is_summary"] == true
	})).Return(models.Message{}, nil).Once()

	d.Dispatch(context.Background(), Command{Kind: KindSummary}, req)

	messages.AssertExpectations(t)
	bots.AssertExpectations(t)
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchIndexExcludesCommandResponses(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	bots := new(mocks.BotClientMock)
	notifier := new(mocks.NotifierMock)
	d := newTestDispatcher(messages, bots, notifier)
	req := testRequest()

	history := []models.Message{
		{Content: "real talk"},
		{Content: "bot noise", Metadata: models.Metadata{"is_command_response": true, "is_bot": true}},
		{Content: "more talk"},
	}
	messages.On("ListChannelHistory", mock.Anything, req.ChannelID).Return(history, nil).Once()
	bots.On("Index", mock.Anything, mock.MatchedBy(func(r botservice.IndexRequest) bool {
		return len(r.Messages) == 2
	})).Return(2, nil).Once()
	notifier.On("Notify", mock.Anything, req.UserID, mock.MatchedBy(func(n models.Notification) bool {
		return n.Variant == models.VariantDefault && strings.Contains(n.Description, "2")
	})).Once()

	d.Dispatch(context.Background(), Command{Kind: KindIndex}, req)

	bots.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestDispatchPersonasEmptyList(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	bots := new(mocks.BotClientMock)
	notifier := new(mocks.NotifierMock)
	d := newTestDispatcher(messages, bots, notifier)
	req := testRequest()

	bots.On("ListPersonas", mock.Anything).Return([]botservice.Persona{}, nil).Once()
	messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.Content == "No personas set" && m.SenderID == SystemSenderID
	})).Return(models.Message{}, nil).Once()

	d.Dispatch(context.Background(), Command{Kind: KindPersonas}, req)
	messages.AssertExpectations(t)
}

func TestDispatchSetPersonaRemindsAboutIndex(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	bots := new(mocks.BotClientMock)
	notifier := new(mocks.NotifierMock)
	d := newTestDispatcher(messages, bots, notifier)
	req := testRequest()

	bots.On("SetPersona", mock.Anything, 3, "a grumpy pirate").Return(nil).Once()
	messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return strings.Contains(m.Content, "reset-index")
	})).Return(models.Message{}, nil).Once()

	d.Dispatch(context.Background(), Command{Kind: KindSetPersona, BotNumber: 3, Persona: "a grumpy pirate"}, req)
	messages.AssertExpectations(t)
	bots.AssertExpectations(t)
}

func TestDispatchBotToggleConfirms(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	bots := new(mocks.BotClientMock)
	notifier := new(mocks.NotifierMock)
	d := newTestDispatcher(messages, bots, notifier)
	req := testRequest()

	bots.On("SetBotEnabled", mock.Anything, 4, false).Return(nil).Once()
	messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.Content == "Bot 4 disabled"
	})).Return(models.Message{}, nil).Once()

	d.Dispatch(context.Background(), Command{Kind: KindDisableBot, BotNumber: 4}, req)
	messages.AssertExpectations(t)
}

func TestDispatchBotServiceErrorIsDestructive(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	bots := new(mocks.BotClientMock)
	notifier := new(mocks.NotifierMock)
	d := newTestDispatcher(messages, bots, notifier)
	req := testRequest()

	bots.On("ResetIndex", mock.Anything, req.ChannelID.String()).Return(assert.AnError).Once()
	notifier.On("Notify", mock.Anything, req.UserID, mock.MatchedBy(func(n models.Notification) bool {
		return n.Variant == models.VariantDestructive && strings.Contains(n.Title, "reset-index")
	})).Once()

	d.Dispatch(context.Background(), Command{Kind: KindResetIndex}, req)
	notifier.AssertNumberOfCalls(t, "Notify", 1)
}
