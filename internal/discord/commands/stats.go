package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"

	"github.com/MrWong99/gagspeak/internal/discord"
	"github.com/MrWong99/gagspeak/internal/wearer"
)

// StatsCommands handles /gagstats.
type StatsCommands struct {
	registry *wearer.Registry
	stats    *discord.SayStats
}

// NewStatsCommands creates a StatsCommands handler reporting stats.
func NewStatsCommands(registry *wearer.Registry, stats *discord.SayStats) *StatsCommands {
	return &StatsCommands{registry: registry, stats: stats}
}

// Register registers /gagstats with the router.
func (sc *StatsCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("gagstats", sc.Definition(), sc.handleStats)
}

// Definition returns the /gagstats ApplicationCommand for Discord
// registration.
func (sc *StatsCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "gagstats",
		Description: "Show how much gagged talking this bot has heard",
	}
}

func (sc *StatsCommands) handleStats(s discord.Responder, i *discordgo.InteractionCreate) {
	snap := sc.stats.Snapshot()
	tr := sc.registry.Transcriber()

	fields := []*discordgo.MessageEmbedField{
		{Name: "Wearers", Value: humanize.Comma(int64(len(sc.registry.Wearers()))), Inline: true},
		{Name: "Messages", Value: humanize.Comma(snap.Messages), Inline: true},
		{Name: "Silenced", Value: humanize.Comma(snap.Silenced), Inline: true},
		{Name: "Gags", Value: humanize.Comma(int64(sc.registry.Catalog().Len())), Inline: true},
		{Name: "Dictionary", Value: fmt.Sprintf("%s, %s words", tr.Dialect(), humanize.Comma(int64(tr.Dictionary().Len()))), Inline: true},
	}
	if snap.Messages > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Garble latency",
			Value: fmt.Sprintf("```\np50=%s p95=%s\n```", snap.Latency.P50, snap.Latency.P95),
		})
	}

	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:  "gagspeak stats",
		Color:  embedColor,
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Counting since " + humanize.Time(snap.Since),
		},
	})
}
