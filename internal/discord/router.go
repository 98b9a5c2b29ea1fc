package discord

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc handles a slash command.
type HandlerFunc func(s Responder, i *discordgo.InteractionCreate)

// AutocompleteFunc answers an autocomplete request.
type AutocompleteFunc func(s Responder, i *discordgo.InteractionCreate)

// route collects everything registered under one key.
type route struct {
	command      *discordgo.ApplicationCommand
	handler      HandlerFunc
	autocomplete AutocompleteFunc
}

// CommandRouter dispatches Discord interactions by key. A key is either
// "command" or "command/subcommand", e.g. "gag/equip". Subcommands without
// their own handler fall back to the handler of their parent command.
type CommandRouter struct {
	mu     sync.RWMutex
	routes map[string]*route
}

// NewCommandRouter creates an empty router.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{routes: make(map[string]*route)}
}

func (r *CommandRouter) routeLocked(key string) *route {
	rt, ok := r.routes[key]
	if !ok {
		rt = &route{}
		r.routes[key] = rt
	}
	return rt
}

// RegisterCommand registers cmd and its handler under key. Only top-level
// definitions are sent to Discord, so registering the same cmd under
// several subcommand keys is fine.
func (r *CommandRouter) RegisterCommand(key string, cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt := r.routeLocked(key)
	rt.command = cmd
	rt.handler = handler
}

// RegisterHandler registers a handler for key whose command definition is
// registered elsewhere.
func (r *CommandRouter) RegisterHandler(key string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routeLocked(key).handler = handler
}

// RegisterAutocomplete registers an autocomplete handler for key.
func (r *CommandRouter) RegisterAutocomplete(key string, handler AutocompleteFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routeLocked(key).autocomplete = handler
}

// ApplicationCommands returns every distinct top-level command definition,
// sorted by name.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var cmds []*discordgo.ApplicationCommand
	for _, rt := range r.routes {
		if rt.command != nil && !seen[rt.command.Name] {
			seen[rt.command.Name] = true
			cmds = append(cmds, rt.command)
		}
	}
	slices.SortFunc(cmds, func(a, b *discordgo.ApplicationCommand) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return cmds
}

// Handle dispatches an interaction. A panicking handler is logged and, for
// slash commands, answered with an ephemeral error.
func (r *CommandRouter) Handle(s Responder, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		key, h := r.find(i.ApplicationCommandData(), func(rt *route) HandlerFunc { return rt.handler })
		if h == nil {
			slog.Warn("discord: unknown command", "key", key)
			RespondEphemeral(s, i, "Unknown command.")
			return
		}
		r.dispatch(key, s, i, h)

	case discordgo.InteractionApplicationCommandAutocomplete:
		key, h := r.find(i.ApplicationCommandData(), func(rt *route) HandlerFunc { return HandlerFunc(rt.autocomplete) })
		if h == nil {
			slog.Debug("discord: no autocomplete handler", "key", key)
			RespondChoices(s, i, nil)
			return
		}
		r.dispatch(key, s, i, h)

	default:
		slog.Warn("discord: unhandled interaction type", "type", i.Type)
	}
}

// find resolves the handler picked by pick for the interaction, trying the
// subcommand key before the parent command.
func (r *CommandRouter) find(data discordgo.ApplicationCommandInteractionData, pick func(*route) HandlerFunc) (string, HandlerFunc) {
	key := data.Name
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		key += "/" + data.Options[0].Name
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for k := key; ; {
		if rt, ok := r.routes[k]; ok {
			if h := pick(rt); h != nil {
				return k, h
			}
		}
		parent, _, nested := strings.Cut(k, "/")
		if !nested {
			return key, nil
		}
		k = parent
	}
}

func (r *CommandRouter) dispatch(key string, s Responder, i *discordgo.InteractionCreate, h HandlerFunc) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			slog.Error("discord: handler panicked", "key", key, "panic", p)
			if i.Type == discordgo.InteractionApplicationCommand {
				RespondEphemeral(s, i, "Something went wrong.")
			}
			return
		}
		slog.Debug("discord: interaction handled", "key", key, "duration", time.Since(start))
	}()
	h(s, i)
}
