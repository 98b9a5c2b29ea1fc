package commands

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/gagspeak/internal/discord"
	"github.com/MrWong99/gagspeak/internal/discord/mock"
	"github.com/MrWong99/gagspeak/internal/gag"
	"github.com/MrWong99/gagspeak/internal/phonetic"
	"github.com/MrWong99/gagspeak/internal/wearer"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

func newTestRegistry(t *testing.T) *wearer.Registry {
	t.Helper()
	catalog, err := gag.NewCatalog(
		gag.Definition{
			Name:       "Ball Gag",
			MouthState: gag.MouthFull,
			Phonemes: map[string]gag.Phoneme{
				"h": {Sound: "m", Muffle: 2},
				"i": {Sound: "f", Muffle: 2},
			},
		},
		gag.Definition{Name: "Tape", MouthState: gag.MouthClosed},
		gag.Definition{Name: "Hood", MouthState: gag.MouthNoSound},
	)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	tr := phonetic.NewTranscriber("en-US",
		phonetic.NewDictionary(map[string]string{"hi": "hi"}),
		phonetic.DialectSymbols("en-US"))
	return wearer.NewRegistry(catalog, tr, wearer.WithRand(rand.New(rand.NewPCG(5, 6))))
}

type option = discordgo.ApplicationCommandInteractionDataOption

func str(name, value string) *option {
	return &option{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

// interaction builds a guild slash command interaction from user "u1" with
// the given roles.
func interaction(typ discordgo.InteractionType, command, sub string, roles []string, opts ...*option) *discordgo.InteractionCreate {
	top := opts
	if sub != "" {
		top = []*option{{Name: sub, Type: discordgo.ApplicationCommandOptionSubCommand, Options: opts}}
	}
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: typ,
		Data: discordgo.ApplicationCommandInteractionData{Name: command, Options: top},
		Member: &discordgo.Member{
			User:  &discordgo.User{ID: "u1", Username: "alice"},
			Roles: roles,
		},
	}}
}

func gagCommand(sub string, opts ...*option) *discordgo.InteractionCreate {
	return interaction(discordgo.InteractionApplicationCommand, "gag", sub, nil, opts...)
}

func newGagRouter(t *testing.T, roleID string) (*discord.CommandRouter, *wearer.Registry) {
	t.Helper()
	reg := newTestRegistry(t)
	router := discord.NewCommandRouter()
	NewGagCommands(reg, discord.NewPermissionChecker(roleID)).Register(router)
	return router, reg
}

// ─── definition ──────────────────────────────────────────────────────────────

func TestGagDefinition(t *testing.T) {
	t.Parallel()

	def := NewGagCommands(nil, nil).Definition()
	if def.Name != "gag" {
		t.Errorf("Name = %q, want gag", def.Name)
	}

	wantSubs := []string{"equip", "remove", "status", "list"}
	if len(def.Options) != len(wantSubs) {
		t.Fatalf("Options count = %d, want %d", len(def.Options), len(wantSubs))
	}
	for i, name := range wantSubs {
		if def.Options[i].Name != name {
			t.Errorf("subcommand[%d] = %q, want %q", i, def.Options[i].Name, name)
		}
	}

	equip := def.Options[0].Options
	wantOpts := []string{"gag", "gag2", "gag3", "mouth"}
	if len(equip) != len(wantOpts) {
		t.Fatalf("equip options = %d, want %d", len(equip), len(wantOpts))
	}
	for i, name := range wantOpts {
		if equip[i].Name != name {
			t.Errorf("equip option[%d] = %q, want %q", i, equip[i].Name, name)
		}
	}
	if !equip[0].Required || equip[1].Required {
		t.Error("only the first gag slot should be required")
	}
	if !equip[0].Autocomplete || !equip[2].Autocomplete {
		t.Error("gag slots should autocomplete")
	}
}

// ─── equip ───────────────────────────────────────────────────────────────────

func TestEquip(t *testing.T) {
	t.Parallel()
	router, reg := newGagRouter(t, "")
	resp := &mock.Responder{}

	router.Handle(resp, gagCommand("equip", str("gag", "ball gag"), str("gag2", "Tape"), str("mouth", "open")))

	if got := resp.LastContent(); !strings.Contains(got, "Ball Gag, Tape") {
		t.Errorf("response = %q, want the equipped gags", got)
	}
	set, err := reg.Status("u1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if set.Mouth() != gag.MouthOpen|gag.MouthClosed|gag.MouthFull {
		t.Errorf("mouth = %v, want open|closed|full", set.Mouth())
	}
	if got := reg.Garble("u1", "hi", false); got != "mf" {
		t.Errorf("Garble = %q, want mf", got)
	}
}

func TestEquip_UnknownGag(t *testing.T) {
	t.Parallel()
	router, reg := newGagRouter(t, "")
	resp := &mock.Responder{}

	router.Handle(resp, gagCommand("equip", str("gag", "Muzzle")))

	if got := resp.LastContent(); !strings.Contains(got, "/gag list") {
		t.Errorf("response = %q, want a hint to /gag list", got)
	}
	if _, err := reg.Status("u1"); !errors.Is(err, wearer.ErrNotFound) {
		t.Errorf("Status err = %v, want ErrNotFound", err)
	}
}

func TestEquip_BadMouth(t *testing.T) {
	t.Parallel()
	router, _ := newGagRouter(t, "")
	resp := &mock.Responder{}

	router.Handle(resp, gagCommand("equip", str("gag", "Tape"), str("mouth", "sideways")))

	if got := resp.LastContent(); !strings.HasPrefix(got, "Error:") {
		t.Errorf("response = %q, want an error", got)
	}
}

func TestEquip_RequiresRole(t *testing.T) {
	t.Parallel()
	router, reg := newGagRouter(t, "wearers")
	resp := &mock.Responder{}

	router.Handle(resp, gagCommand("equip", str("gag", "Tape")))
	if got := resp.LastContent(); !strings.Contains(got, "not allowed") {
		t.Errorf("response = %q, want a refusal", got)
	}
	if _, err := reg.Status("u1"); !errors.Is(err, wearer.ErrNotFound) {
		t.Error("gag equipped without the role")
	}

	i := interaction(discordgo.InteractionApplicationCommand, "gag", "equip", []string{"wearers"}, str("gag", "Tape"))
	router.Handle(resp, i)
	if _, err := reg.Status("u1"); err != nil {
		t.Errorf("Status with role: %v", err)
	}
}

// ─── remove / status / list ──────────────────────────────────────────────────

func TestRemove(t *testing.T) {
	t.Parallel()
	router, reg := newGagRouter(t, "")
	resp := &mock.Responder{}
	if _, err := reg.Equip(context.Background(), "u1", []string{"Tape"}, gag.MouthNone); err != nil {
		t.Fatalf("Equip: %v", err)
	}

	router.Handle(resp, gagCommand("remove"))

	if got := resp.LastContent(); !strings.Contains(got, "removed") {
		t.Errorf("response = %q", got)
	}
	if _, err := reg.Status("u1"); !errors.Is(err, wearer.ErrNotFound) {
		t.Errorf("Status err = %v, want ErrNotFound", err)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	router, reg := newGagRouter(t, "")
	resp := &mock.Responder{}

	router.Handle(resp, gagCommand("status"))
	if got := resp.LastContent(); got != "You are not wearing any gags." {
		t.Errorf("response = %q", got)
	}

	if _, err := reg.Equip(context.Background(), "u1", []string{"Ball Gag"}, gag.MouthNone); err != nil {
		t.Fatalf("Equip: %v", err)
	}
	router.Handle(resp, gagCommand("status"))

	last := resp.Last()
	if last == nil || len(last.Data.Embeds) != 1 {
		t.Fatalf("expected one embed, got %+v", last)
	}
	fields := last.Data.Embeds[0].Fields
	if fields[0].Value != "Ball Gag" || fields[1].Value != "full" {
		t.Errorf("fields = %s=%s, %s=%s", fields[0].Name, fields[0].Value, fields[1].Name, fields[1].Value)
	}
}

func TestStatus_ReportsGagsMissingFromCatalog(t *testing.T) {
	t.Parallel()
	router, reg := newGagRouter(t, "")
	resp := &mock.Responder{}
	if _, err := reg.Equip(context.Background(), "u1", []string{"Ball Gag", "Tape"}, gag.MouthNone); err != nil {
		t.Fatalf("Equip: %v", err)
	}

	smaller, err := gag.NewCatalog(gag.Definition{Name: "Tape", MouthState: gag.MouthClosed})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	reg.Reload(context.Background(), smaller, nil)

	router.Handle(resp, gagCommand("status"))
	fields := resp.Last().Data.Embeds[0].Fields
	if len(fields) != 3 || fields[2].Value != "Ball Gag" {
		t.Errorf("expected Ball Gag reported unavailable, got %d fields", len(fields))
	}
}

func TestList(t *testing.T) {
	t.Parallel()
	router, _ := newGagRouter(t, "")
	resp := &mock.Responder{}

	router.Handle(resp, gagCommand("list"))

	desc := resp.Last().Data.Embeds[0].Description
	for _, want := range []string{"**Ball Gag** (full, 2 sounds)", "**Tape** (closed, 0 sounds)", "**Hood** (nosound, 0 sounds)"} {
		if !strings.Contains(desc, want) {
			t.Errorf("list is missing %q:\n%s", want, desc)
		}
	}
}

// ─── autocomplete ────────────────────────────────────────────────────────────

func TestAutocomplete(t *testing.T) {
	t.Parallel()
	router, _ := newGagRouter(t, "")
	resp := &mock.Responder{}

	typed := str("gag", "o")
	typed.Focused = true
	router.Handle(resp, interaction(discordgo.InteractionApplicationCommandAutocomplete, "gag", "equip", nil, typed))

	last := resp.Last()
	if last.Type != discordgo.InteractionApplicationCommandAutocompleteResult {
		t.Fatalf("type = %v, want autocomplete result", last.Type)
	}
	var names []string
	for _, c := range last.Data.Choices {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "Hood" {
		t.Errorf("choices = %v, want [Hood]", names)
	}
}
