package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/palmerwenzel/chat-genius-sub000/internal/botservice"
	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListChannelPage(ctx context.Context, channelID uuid.UUID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, channelID, limit)
	var out []models.Message
	if val := args.Get(0); val != nil {
		out = val.([]models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListThread(ctx context.Context, threadID uuid.UUID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, threadID, limit)
	var out []models.Message
	if val := args.Get(0); val != nil {
		out = val.([]models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListChannelHistory(ctx context.Context, channelID uuid.UUID) ([]models.Message, error) {
	args := m.Called(ctx, channelID)
	var out []models.Message
	if val := args.Get(0); val != nil {
		out = val.([]models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) SearchChannel(ctx context.Context, channelID uuid.UUID, query string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, channelID, query, limit)
	var out []models.Message
	if val := args.Get(0); val != nil {
		out = val.([]models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateContent(ctx context.Context, messageID, senderID uuid.UUID, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID, content)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID, senderID uuid.UUID) error {
	args := m.Called(ctx, messageID, senderID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) CountThreadReplies(ctx context.Context, rootID uuid.UUID) (int, error) {
	args := m.Called(ctx, rootID)
	return args.Int(0), args.Error(1)
}

type ReactionRepositoryMock struct {
	mock.Mock
}

func (m *ReactionRepositoryMock) Toggle(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Bool(0), args.Error(1)
}

func (m *ReactionRepositoryMock) ListForMessage(ctx context.Context, messageID uuid.UUID) ([]models.Reaction, error) {
	args := m.Called(ctx, messageID)
	var out []models.Reaction
	if val := args.Get(0); val != nil {
		out = val.([]models.Reaction)
	}
	return out, args.Error(1)
}

type MemberRepositoryMock struct {
	mock.Mock
}

func (m *MemberRepositoryMock) ListChannelMembers(ctx context.Context, channelID uuid.UUID) ([]models.Member, error) {
	args := m.Called(ctx, channelID)
	var out []models.Member
	if val := args.Get(0); val != nil {
		out = val.([]models.Member)
	}
	return out, args.Error(1)
}

func (m *MemberRepositoryMock) ListAllUsers(ctx context.Context) ([]models.Member, error) {
	args := m.Called(ctx)
	var out []models.Member
	if val := args.Get(0); val != nil {
		out = val.([]models.Member)
	}
	return out, args.Error(1)
}

func (m *MemberRepositoryMock) IsChannelPublic(ctx context.Context, channelID uuid.UUID) (bool, error) {
	args := m.Called(ctx, channelID)
	return args.Bool(0), args.Error(1)
}

func (m *MemberRepositoryMock) UpdatePresence(ctx context.Context, userID uuid.UUID, status, customStatus string) error {
	args := m.Called(ctx, userID, status, customStatus)
	return args.Error(0)
}

type AttachmentRepositoryMock struct {
	mock.Mock
}

func (m *AttachmentRepositoryMock) CreateAttachment(ctx context.Context, att models.Attachment) (models.Attachment, error) {
	args := m.Called(ctx, att)
	var out models.Attachment
	if val := args.Get(0); val != nil {
		out = val.(models.Attachment)
	}
	return out, args.Error(1)
}

type BotClientMock struct {
	mock.Mock
}

func (m *BotClientMock) Seed(ctx context.Context, req botservice.SeedRequest) ([]botservice.SeedMessage, error) {
	args := m.Called(ctx, req)
	var out []botservice.SeedMessage
	if val := args.Get(0); val != nil {
		out = val.([]botservice.SeedMessage)
	}
	return out, args.Error(1)
}

func (m *BotClientMock) Summarize(ctx context.Context, req botservice.SummaryRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *BotClientMock) Index(ctx context.Context, req botservice.IndexRequest) (int, error) {
	args := m.Called(ctx, req)
	return args.Int(0), args.Error(1)
}

func (m *BotClientMock) ListPersonas(ctx context.Context) ([]botservice.Persona, error) {
	args := m.Called(ctx)
	var out []botservice.Persona
	if val := args.Get(0); val != nil {
		out = val.([]botservice.Persona)
	}
	return out, args.Error(1)
}

func (m *BotClientMock) SetPersona(ctx context.Context, botNumber int, persona string) error {
	args := m.Called(ctx, botNumber, persona)
	return args.Error(0)
}

func (m *BotClientMock) ResetIndex(ctx context.Context, channelID string) error {
	args := m.Called(ctx, channelID)
	return args.Error(0)
}

func (m *BotClientMock) SetBotEnabled(ctx context.Context, botNumber int, enabled bool) error {
	args := m.Called(ctx, botNumber, enabled)
	return args.Error(0)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify(ctx context.Context, userID uuid.UUID, n models.Notification) {
	m.Called(ctx, userID, n)
}
