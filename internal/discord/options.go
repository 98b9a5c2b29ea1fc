package discord

import "github.com/bwmarrin/discordgo"

// Options returns the options of the invoked subcommand, or the top-level
// options for commands without subcommands.
func Options(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Options
	}
	return opts
}

// StringOption returns the value of the string option name, or "".
func StringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionString {
			return o.StringValue()
		}
	}
	return ""
}

// BoolOption returns the value of the boolean option name and whether it
// was given.
func BoolOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) (value, ok bool) {
	for _, o := range opts {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionBoolean {
			return o.BoolValue(), true
		}
	}
	return false, false
}

// FocusedOption returns the option being typed in an autocomplete
// interaction, or nil.
func FocusedOption(opts []*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	for _, o := range opts {
		if o.Focused {
			return o
		}
	}
	return nil
}
