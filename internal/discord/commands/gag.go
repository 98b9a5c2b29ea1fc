// Package commands implements the gagspeak slash commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/gagspeak/internal/discord"
	"github.com/MrWong99/gagspeak/internal/gag"
	"github.com/MrWong99/gagspeak/internal/wearer"
)

// storeTimeout bounds the store round trip of one command.
const storeTimeout = 5 * time.Second

// maxChoices is the Discord limit for autocomplete results.
const maxChoices = 25

// embedColor is used for every gagspeak embed.
const embedColor = 0x8e44ad

// GagCommands handles the /gag slash command group.
type GagCommands struct {
	registry *wearer.Registry
	perms    *discord.PermissionChecker
}

// NewGagCommands creates a GagCommands handler.
func NewGagCommands(registry *wearer.Registry, perms *discord.PermissionChecker) *GagCommands {
	return &GagCommands{registry: registry, perms: perms}
}

// Register registers all /gag subcommands with the router.
func (gc *GagCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("gag", gc.Definition(), func(s discord.Responder, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand: `/gag equip`, `/gag remove`, `/gag status`, `/gag list`.")
	})
	router.RegisterHandler("gag/equip", gc.handleEquip)
	router.RegisterHandler("gag/remove", gc.handleRemove)
	router.RegisterHandler("gag/status", gc.handleStatus)
	router.RegisterHandler("gag/list", gc.handleList)
	router.RegisterAutocomplete("gag/equip", gc.handleAutocomplete)
}

// slotOption names the option for gag slot n, counting from 1.
func slotOption(n int) string {
	if n == 1 {
		return "gag"
	}
	return fmt.Sprintf("gag%d", n)
}

// Definition returns the /gag ApplicationCommand for Discord registration.
func (gc *GagCommands) Definition() *discordgo.ApplicationCommand {
	equipOpts := make([]*discordgo.ApplicationCommandOption, 0, wearer.MaxGags+1)
	for n := 1; n <= wearer.MaxGags; n++ {
		equipOpts = append(equipOpts, &discordgo.ApplicationCommandOption{
			Name:         slotOption(n),
			Description:  fmt.Sprintf("Gag for slot %d", n),
			Type:         discordgo.ApplicationCommandOptionString,
			Required:     n == 1,
			Autocomplete: true,
		})
	}
	equipOpts = append(equipOpts, &discordgo.ApplicationCommandOption{
		Name:        "mouth",
		Description: "Extra mouth restriction on top of the gags",
		Type:        discordgo.ApplicationCommandOptionString,
		Choices: []*discordgo.ApplicationCommandOptionChoice{
			{Name: "open", Value: "open"},
			{Name: "closed", Value: "closed"},
			{Name: "full", Value: "full"},
			{Name: "no sound", Value: "nosound"},
		},
	})

	return &discordgo.ApplicationCommand{
		Name:        "gag",
		Description: "Wear, remove and inspect gags",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "equip",
				Description: "Replace the gags you are wearing",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     equipOpts,
			},
			{
				Name:        "remove",
				Description: "Take off every gag",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "status",
				Description: "Show the gags you are wearing",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "list",
				Description: "List every available gag",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
		},
	}
}

func (gc *GagCommands) handleEquip(s discord.Responder, i *discordgo.InteractionCreate) {
	if !gc.perms.CanWear(i) {
		discord.RespondEphemeral(s, i, "You are not allowed to wear gags here.")
		return
	}
	opts := discord.Options(i)

	names := make([]string, 0, wearer.MaxGags)
	for n := 1; n <= wearer.MaxGags; n++ {
		if v := discord.StringOption(opts, slotOption(n)); v != "" {
			names = append(names, v)
		}
	}
	mouth, err := gag.ParseMouthState(discord.StringOption(opts, "mouth"))
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	set, err := gc.registry.Equip(ctx, discord.UserID(i), names, mouth)
	if errors.Is(err, wearer.ErrUnknownGag) {
		discord.RespondEphemeral(s, i, fmt.Sprintf("%v. Use `/gag list` to see what is available.", err))
		return
	}
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	if set.Empty() {
		discord.RespondEphemeral(s, i, "You are not wearing any gags.")
		return
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("You are now wearing %s (mouth: %s).",
		strings.Join(set.Names(), ", "), set.Mouth()))
}

func (gc *GagCommands) handleRemove(s discord.Responder, i *discordgo.InteractionCreate) {
	if !gc.perms.CanWear(i) {
		discord.RespondEphemeral(s, i, "You are not allowed to remove gags here.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := gc.registry.Remove(ctx, discord.UserID(i)); err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondEphemeral(s, i, "All gags removed. You can speak freely.")
}

func (gc *GagCommands) handleStatus(s discord.Responder, i *discordgo.InteractionCreate) {
	set, err := gc.registry.Status(discord.UserID(i))
	if errors.Is(err, wearer.ErrNotFound) {
		discord.RespondEphemeral(s, i, "You are not wearing any gags.")
		return
	}
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	active := set.Names()
	embed := &discordgo.MessageEmbed{
		Title: "Your gags",
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Wearing", Value: orNone(active), Inline: true},
			{Name: "Mouth", Value: set.Mouth().String(), Inline: true},
		},
	}
	if missing := missingGags(set.Requested(), active); len(missing) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Unavailable",
			Value: strings.Join(missing, ", "),
		})
	}
	discord.RespondEmbed(s, i, embed)
}

func (gc *GagCommands) handleList(s discord.Responder, i *discordgo.InteractionCreate) {
	catalog := gc.registry.Catalog()
	var b strings.Builder
	for _, name := range catalog.Names() {
		d, _ := catalog.Lookup(name)
		fmt.Fprintf(&b, "**%s** (%s, %d sounds)\n", d.Name, d.MouthState, len(d.Phonemes))
	}
	if b.Len() == 0 {
		b.WriteString("No gags are configured.")
	}
	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "Available gags",
		Description: b.String(),
		Color:       embedColor,
	})
}

func (gc *GagCommands) handleAutocomplete(s discord.Responder, i *discordgo.InteractionCreate) {
	var typed string
	if o := discord.FocusedOption(discord.Options(i)); o != nil && o.Type == discordgo.ApplicationCommandOptionString {
		typed = strings.ToLower(o.StringValue())
	}

	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, name := range gc.registry.Catalog().Names() {
		if typed != "" && !strings.Contains(strings.ToLower(name), typed) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
		if len(choices) == maxChoices {
			break
		}
	}
	discord.RespondChoices(s, i, choices)
}

func orNone(names []string) string {
	if len(names) == 0 {
		return "nothing"
	}
	return strings.Join(names, ", ")
}

// missingGags returns the requested names that are not active, ignoring
// case.
func missingGags(requested, active []string) []string {
	var missing []string
	for _, r := range requested {
		found := false
		for _, a := range active {
			if strings.EqualFold(r, a) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, r)
		}
	}
	return missing
}
