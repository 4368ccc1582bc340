package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/botservice"
	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
	"github.com/palmerwenzel/chat-genius-sub000/internal/notify"
	"github.com/palmerwenzel/chat-genius-sub000/internal/observability"
	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
	"github.com/palmerwenzel/chat-genius-sub000/internal/telemetry"
)

// DefaultSeedTurns applies when /bot seed is given no --turns flag.
const DefaultSeedTurns = 3

// botNamespace seeds deterministic sender ids for bot personas, so the
// same bot number always maps to the same user id across channels.
var botNamespace = uuid.MustParse("8c9d6f34-1f24-4b07-9e5b-2a7f3d4c5e6f")

// BotSenderID returns the stable synthetic sender id for a bot number.
func BotSenderID(n int) uuid.UUID {
	return uuid.NewSHA1(botNamespace, []byte(fmt.Sprintf("bot-%d", n)))
}

// SystemSenderID attributes dispatcher confirmations and summaries.
var SystemSenderID = uuid.NewSHA1(botNamespace, []byte("system"))

// Request carries the channel and invoking user for one dispatch.
type Request struct {
	ChannelID uuid.UUID
	UserID    uuid.UUID
	RequestID string
}

// Dispatcher executes parsed commands against the bot service and the
// message store. Every failure surfaces as exactly one destructive
// notification; nothing escapes Dispatch.
type Dispatcher struct {
	messages repositories.MessageRepository
	bots     botservice.Client
	notifier notify.Notifier
	audit    *telemetry.AuditEmitter
	logger   zerolog.Logger
}

func NewDispatcher(messages repositories.MessageRepository, bots botservice.Client, notifier notify.Notifier, audit *telemetry.AuditEmitter, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		messages: messages,
		bots:     bots,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
	}
}

// Dispatch runs one command to completion. The switch is exhaustive over
// Kind; outcomes are reported through the notifier and metrics, never by
// return value, so callers cannot double-report an error.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command, req Request) {
	var err error
	switch cmd.Kind {
	case KindSeed:
		err = d.seed(ctx, cmd, req)
	case KindSummary:
		err = d.summary(ctx, cmd, req)
	case KindIndex:
		err = d.index(ctx, req)
	case KindPersonas, KindListBots:
		err = d.personas(ctx, req)
	case KindSetPersona:
		err = d.setPersona(ctx, cmd, req)
	case KindResetIndex:
		err = d.resetIndex(ctx, req)
	case KindEnableBot:
		err = d.toggleBot(ctx, cmd.BotNumber, true, req)
	case KindDisableBot:
		err = d.toggleBot(ctx, cmd.BotNumber, false, req)
	default:
		err = fmt.Errorf("unhandled command kind %d", int(cmd.Kind))
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		d.logger.Error().Err(err).
			Str("command", cmd.Kind.String()).
			Str("channel_id", req.ChannelID.String()).
			Msg("command failed")
		d.fail(ctx, cmd.Kind, req, err)
	}
	observability.IncCommandDispatched(cmd.Kind.String(), outcome)

	userID := req.UserID.String()
	d.audit.Emit(ctx, outcome, fmt.Sprintf("command %s dispatched", cmd.Kind), req.RequestID, &userID)
}

// fail is the single failure path: one destructive notification per
// dispatch, with a human-readable description.
func (d *Dispatcher) fail(ctx context.Context, kind Kind, req Request, err error) {
	d.notifier.Notify(ctx, req.UserID, models.Notification{
		Title:       fmt.Sprintf("/bot %s failed", kind),
		Description: err.Error(),
		Variant:     models.VariantDestructive,
	})
}

func (d *Dispatcher) notifyOK(ctx context.Context, req Request, title, description string) {
	d.notifier.Notify(ctx, req.UserID, models.Notification{
		Title:       title,
		Description: description,
		Variant:     models.VariantDefault,
	})
}

func (d *Dispatcher) seed(ctx context.Context, cmd Command, req Request) error {
	turns := cmd.NumTurns
	if turns <= 0 {
		turns = DefaultSeedTurns
	}

	generated, err := d.bots.Seed(ctx, botservice.SeedRequest{
		ChannelID: req.ChannelID.String(),
		Prompt:    cmd.Prompt,
		NumTurns:  turns,
		Bots:      cmd.Bots,
	})
	if err != nil {
		return err
	}

	for _, turn := range generated {
		_, err := d.messages.CreateMessage(ctx, models.Message{
			ChannelID: req.ChannelID,
			SenderID:  BotSenderID(turn.BotNumber),
			Content:   turn.Content,
			Type:      models.MessageTypeText,
			Metadata: models.Metadata{
				"is_bot":              true,
				"is_command_response": true,
				"bot_number":          turn.BotNumber,
			},
		})
		if err != nil {
			return fmt.Errorf("store seeded message: %w", err)
		}
	}

	d.notifyOK(ctx, req, "Conversation seeded", fmt.Sprintf("Generated %d messages", len(generated)))
	return nil
}

func (d *Dispatcher) summary(ctx context.Context, cmd Command, req Request) error {
	history, err := d.messages.ListChannelHistory(ctx, req.ChannelID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return fmt.Errorf("no messages to summarize")
	}

	summary, err := d.bots.Summarize(ctx, botservice.SummaryRequest{
		ChannelID: req.ChannelID.String(),
		Prompt:    cmd.Prompt,
		Messages:  transcript(history),
	})
	if err != nil {
		return err
	}

	_, err = d.messages.CreateMessage(ctx, models.Message{
		ChannelID: req.ChannelID,
		SenderID:  SystemSenderID,
		Content:   summary,
		Type:      models.MessageTypeText,
		Metadata: models.Metadata{
			"is_command_response": true,
			"is_summary":          true,
		},
	})
	return err
}

func (d *Dispatcher) index(ctx context.Context, req Request) error {
	history, err := d.messages.ListChannelHistory(ctx, req.ChannelID)
	if err != nil {
		return err
	}

	// Command responses are excluded so the index never embeds bot output.
	kept := history[:0:0]
	for _, msg := range history {
		if msg.IsCommandResponse() {
			continue
		}
		kept = append(kept, msg)
	}

	indexed, err := d.bots.Index(ctx, botservice.IndexRequest{
		ChannelID: req.ChannelID.String(),
		Messages:  transcript(kept),
	})
	if err != nil {
		return err
	}

	d.notifyOK(ctx, req, "Channel indexed", fmt.Sprintf("Indexed %d messages", indexed))
	return nil
}

func (d *Dispatcher) personas(ctx context.Context, req Request) error {
	personas, err := d.bots.ListPersonas(ctx)
	if err != nil {
		return err
	}

	content := "No personas set"
	if len(personas) > 0 {
		var b strings.Builder
		b.WriteString("Configured personas:")
		for _, p := range personas {
			state := "enabled"
			if !p.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(&b, "\nBot %d (%s): %s", p.BotNumber, state, p.Persona)
		}
		content = b.String()
	}

	return d.systemMessage(ctx, req.ChannelID, content)
}

func (d *Dispatcher) setPersona(ctx context.Context, cmd Command, req Request) error {
	if err := d.bots.SetPersona(ctx, cmd.BotNumber, cmd.Persona); err != nil {
		return err
	}
	content := fmt.Sprintf(
		"Persona for bot %d updated. Run /bot reset-index to rebuild the index; existing embeddings still reference the old persona.",
		cmd.BotNumber,
	)
	return d.systemMessage(ctx, req.ChannelID, content)
}

func (d *Dispatcher) resetIndex(ctx context.Context, req Request) error {
	if err := d.bots.ResetIndex(ctx, req.ChannelID.String()); err != nil {
		return err
	}
	return d.systemMessage(ctx, req.ChannelID, "Channel index reset")
}

func (d *Dispatcher) toggleBot(ctx context.Context, botNumber int, enabled bool, req Request) error {
	if err := d.bots.SetBotEnabled(ctx, botNumber, enabled); err != nil {
		return err
	}
	verb := "enabled"
	if !enabled {
		verb = "disabled"
	}
	return d.systemMessage(ctx, req.ChannelID, fmt.Sprintf("Bot %d %s", botNumber, verb))
}

func (d *Dispatcher) systemMessage(ctx context.Context, channelID uuid.UUID, content string) error {
	_, err := d.messages.CreateMessage(ctx, models.Message{
		ChannelID: channelID,
		SenderID:  SystemSenderID,
		Content:   content,
		Type:      models.MessageTypeText,
		Metadata:  models.Metadata{"is_command_response": true},
	})
	return err
}

func transcript(history []models.Message) []botservice.TranscriptMessage {
	out := make([]botservice.TranscriptMessage, 0, len(history))
	for _, msg := range history {
		role := "user"
		if isBot, ok := msg.Metadata["is_bot"].(bool); ok && isBot {
			role = "assistant"
		}
		out = append(out, botservice.TranscriptMessage{
			Role:    role,
			Sender:  msg.SenderName,
			Content: msg.Content,
		})
	}
	return out
}
