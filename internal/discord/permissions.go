package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker decides who may change gags.
type PermissionChecker struct {
	wearerRoleID string
}

// NewPermissionChecker creates a PermissionChecker requiring wearerRoleID.
func NewPermissionChecker(wearerRoleID string) *PermissionChecker {
	return &PermissionChecker{wearerRoleID: wearerRoleID}
}

// CanWear reports whether the interaction author may equip and remove gags.
// If wearerRoleID is empty everyone may. Interactions outside a guild have
// no member and are refused when a role is required.
func (p *PermissionChecker) CanWear(i *discordgo.InteractionCreate) bool {
	if p.wearerRoleID == "" {
		return true
	}
	if i.Member == nil {
		return false
	}
	return slices.Contains(i.Member.Roles, p.wearerRoleID)
}

// UserID returns the ID of the interaction author, in a guild or in a DM.
func UserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// DisplayName returns the name the interaction author is shown with.
func DisplayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.DisplayName()
	}
	if i.User != nil {
		return i.User.DisplayName()
	}
	return "someone"
}
