package command

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Prefix marks bot commands in message input.
const Prefix = "/bot"

// Bot numbers outside [MinBot, MaxBot] are invalid.
const (
	MinBot = 1
	MaxBot = 10
)

// ErrNotACommand reports input that is not command-shaped at all. Callers
// treat such input as a plain message, unlike a parse failure.
var ErrNotACommand = errors.New("not a command")

// Kind enumerates the nine commands. The dispatcher switches on Kind
// exhaustively; adding a command without a handler is a compile-visible
// gap, not a silent default.
type Kind int

const (
	KindSeed Kind = iota
	KindSummary
	KindIndex
	KindPersonas
	KindSetPersona
	KindResetIndex
	KindListBots
	KindEnableBot
	KindDisableBot
)

// String returns the command name.
func (k Kind) String() string {
	switch k {
	case KindSeed:
		return "seed"
	case KindSummary:
		return "summary"
	case KindIndex:
		return "index"
	case KindPersonas:
		return "personas"
	case KindSetPersona:
		return "set-persona"
	case KindResetIndex:
		return "reset-index"
	case KindListBots:
		return "list-bots"
	case KindEnableBot:
		return "enable-bot"
	case KindDisableBot:
		return "disable-bot"
	default:
		return "unknown"
	}
}

// Command is a parsed bot command. Only the fields relevant to its Kind are
// set. Parsed once, never mutated.
type Command struct {
	Kind      Kind
	Prompt    string
	NumTurns  int
	Bots      []int
	BotNumber int
	Persona   string
}

// ParseError codes.
const (
	CodeUnknownCommand   = "unknown_command"
	CodeMissingPrompt    = "missing_prompt"
	CodeMissingPersona   = "missing_persona"
	CodeInvalidBotNumber = "invalid_bot_number"
)

// ParseError is a recoverable command validation failure, surfaced as
// inline feedback and never propagated past the input layer.
type ParseError struct {
	Code  string
	Token string
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s: %q", e.Code, e.Token)
	}
	return e.Code
}

var (
	quotedRe  = regexp.MustCompile(`"([^"]*)"`)
	botFlagRe = regexp.MustCompile(`--bot(\d+)\b`)
)

// Parse turns raw input into a Command. Pure and total: the same input
// always yields the same result, and no I/O happens here.
func Parse(raw string) (Command, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed != Prefix && !strings.HasPrefix(trimmed, Prefix+" ") {
		return Command{}, ErrNotACommand
	}

	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, Prefix))
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Command{}, &ParseError{Code: CodeUnknownCommand}
	}

	name := fields[0]
	args := rest[len(name):]

	switch name {
	case "seed":
		return parseSeed(args, fields[1:])
	case "summary":
		return parseSummary(args)
	case "index":
		return Command{Kind: KindIndex}, nil
	case "personas":
		return Command{Kind: KindPersonas}, nil
	case "set-persona":
		return parseSetPersona(args)
	case "reset-index":
		return Command{Kind: KindResetIndex}, nil
	case "list-bots":
		return Command{Kind: KindListBots}, nil
	case "enable-bot":
		return parseBotToggle(KindEnableBot, fields[1:])
	case "disable-bot":
		return parseBotToggle(KindDisableBot, fields[1:])
	default:
		return Command{}, &ParseError{Code: CodeUnknownCommand, Token: name}
	}
}

// parseSeed requires a double-quoted prompt; --turns and --bots are
// optional. Out-of-range or non-numeric bot ids are dropped silently,
// unlike enable-bot's hard error for the same condition. Both behaviors
// are deliberate.
func parseSeed(args string, flags []string) (Command, error) {
	match := quotedRe.FindStringSubmatch(args)
	if match == nil {
		return Command{}, &ParseError{Code: CodeMissingPrompt}
	}

	cmd := Command{Kind: KindSeed, Prompt: match[1]}

	for i := 0; i < len(flags); i++ {
		switch flags[i] {
		case "--turns":
			if i+1 < len(flags) {
				if n, err := strconv.Atoi(flags[i+1]); err == nil {
					cmd.NumTurns = n
				}
				i++
			}
		case "--bots":
			if i+1 < len(flags) {
				for _, part := range strings.Split(flags[i+1], ",") {
					n, err := strconv.Atoi(strings.TrimSpace(part))
					if err != nil || n < MinBot || n > MaxBot {
						continue
					}
					cmd.Bots = append(cmd.Bots, n)
				}
				i++
			}
		}
	}
	return cmd, nil
}

// parseSummary takes an optional prompt. Surrounding quotes are stripped
// but, unlike seed, an unquoted prompt is also accepted.
func parseSummary(args string) (Command, error) {
	prompt := strings.TrimSpace(args)
	if match := quotedRe.FindStringSubmatch(prompt); match != nil {
		prompt = match[1]
	}
	return Command{Kind: KindSummary, Prompt: prompt}, nil
}

func parseSetPersona(args string) (Command, error) {
	match := botFlagRe.FindStringSubmatchIndex(args)
	if match == nil {
		return Command{}, &ParseError{Code: CodeInvalidBotNumber}
	}

	numToken := args[match[2]:match[3]]
	n, err := strconv.Atoi(numToken)
	if err != nil || n < MinBot || n > MaxBot {
		return Command{}, &ParseError{Code: CodeInvalidBotNumber, Token: numToken}
	}

	persona := strings.TrimSpace(args[match[1]:])
	persona = strings.Trim(persona, `"`)
	if persona == "" {
		return Command{}, &ParseError{Code: CodeMissingPersona}
	}
	return Command{Kind: KindSetPersona, BotNumber: n, Persona: persona}, nil
}

func parseBotToggle(kind Kind, flags []string) (Command, error) {
	if len(flags) == 0 {
		return Command{}, &ParseError{Code: CodeInvalidBotNumber}
	}
	n, err := strconv.Atoi(flags[0])
	if err != nil || n < MinBot || n > MaxBot {
		return Command{}, &ParseError{Code: CodeInvalidBotNumber, Token: flags[0]}
	}
	return Command{Kind: kind, BotNumber: n}, nil
}
