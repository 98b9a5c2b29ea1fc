// Package discord provides the Discord surface of gagspeak. It owns the
// discordgo.Session lifecycle, routes slash command interactions to
// registered handlers and decides who may wear gags.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the bot token without the "Bot " prefix.
	Token string

	// GuildID registers commands for one guild only. Empty registers them
	// globally.
	GuildID string

	// WearerRoleID restricts /gag equip and /gag remove to members with this
	// role. Empty allows everyone.
	WearerRoleID string
}

// Bot owns the Discord gateway connection and routes interactions
// to registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	perms     *PermissionChecker
	guildID   string
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

// New creates a Bot, connects to Discord and installs the interaction
// handler. Register commands on [Bot.Router] before calling [Bot.Run].
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	// Slash commands arrive as interactions and need no message intents.
	session.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{
		session: session,
		router:  NewCommandRouter(),
		perms:   NewPermissionChecker(cfg.WearerRoleID),
		guildID: cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord: connected", "user", r.User.Username, "guilds", len(r.Guilds))
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return b, nil
}

func (b *Bot) registered() []*discordgo.ApplicationCommand {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.commands
}

// GuildID returns the guild commands are registered in.
func (b *Bot) GuildID() string {
	return b.guildID
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the permission checker.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// Run registers slash commands with the Discord API and blocks until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	appID, err := b.appID()
	if err != nil {
		return err
	}

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord: commands registered", "count", len(registered), "guild", b.guildID)
	}

	<-ctx.Done()
	return ctx.Err()
}

// appID is the application the session logged in as.
func (b *Bot) appID() (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session.State == nil || b.session.State.User == nil {
		return "", errors.New("discord: session has no user, is the gateway connected?")
	}
	return b.session.State.User.ID, nil
}

// Close clears the guild's commands in one call and disconnects. Global
// commands stay registered because changes to them propagate slowly.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		if b.guildID != "" && len(b.registered()) > 0 {
			if appID, err := b.appID(); err == nil {
				if _, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, nil); err != nil {
					slog.Warn("discord: failed to clear guild commands", "guild", b.guildID, "err", err)
				}
			}
		}

		b.mu.Lock()
		defer b.mu.Unlock()

		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord: bot closed")
	})
	return closeErr
}
