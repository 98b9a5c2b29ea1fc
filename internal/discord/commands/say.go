package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/gagspeak/internal/discord"
	"github.com/MrWong99/gagspeak/internal/wearer"
)

// maxSayLength keeps the posted message under the Discord content limit
// after the speaker prefix is added.
const maxSayLength = 1800

// SayCommands handles /say, which posts the author's message as heard
// through their gags.
type SayCommands struct {
	registry    *wearer.Registry
	allowEmotes bool
	stats       *discord.SayStats
}

// NewSayCommands creates a SayCommands handler. allowEmotes is used when the
// author does not pass the emotes option. stats may be nil.
func NewSayCommands(registry *wearer.Registry, allowEmotes bool, stats *discord.SayStats) *SayCommands {
	return &SayCommands{registry: registry, allowEmotes: allowEmotes, stats: stats}
}

// Register registers /say with the router.
func (sc *SayCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("say", sc.Definition(), sc.handleSay)
}

// Definition returns the /say ApplicationCommand for Discord registration.
func (sc *SayCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "say",
		Description: "Say something through your gags",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "text",
				Description: "What you try to say. Wrap actions in *asterisks* to keep them readable",
				Type:        discordgo.ApplicationCommandOptionString,
				Required:    true,
				MaxLength:   maxSayLength,
			},
			{
				Name:        "emotes",
				Description: "Keep :emote: tokens readable",
				Type:        discordgo.ApplicationCommandOptionBoolean,
			},
		},
	}
}

func (sc *SayCommands) handleSay(s discord.Responder, i *discordgo.InteractionCreate) {
	opts := discord.Options(i)
	text := discord.StringOption(opts, "text")
	allow := sc.allowEmotes
	if v, ok := discord.BoolOption(opts, "emotes"); ok {
		allow = v
	}

	start := time.Now()
	out := sc.registry.Garble(discord.UserID(i), text, allow)
	silenced := strings.TrimSpace(out) == ""
	if sc.stats != nil {
		sc.stats.Record(time.Since(start), silenced)
	}

	name := discord.DisplayName(i)
	if silenced {
		discord.RespondPublic(s, i, fmt.Sprintf("**%s** tries to speak but makes no sound.", name))
		return
	}
	discord.RespondPublic(s, i, fmt.Sprintf("**%s**: %s", name, out))
}
