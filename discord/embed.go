package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/crimson-live/backend/live"
)

// Brand colors.
const (
	ColorCrimson = 0xDC143C
	ColorTwitch  = 0x9146FF
)

const footerText = "CrimsonX • 0xDC143C"

// twitchEmbed converts an announcement into a Twitch-themed embed.
func twitchEmbed(a live.Announcement) *discordgo.MessageEmbed {
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	e := &discordgo.MessageEmbed{
		Type:        discordgo.EmbedTypeRich,
		Title:       a.Title,
		Description: a.Description,
		URL:         a.URL,
		Color:       ColorTwitch,
		Timestamp:   ts.UTC().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
	}
	for _, f := range a.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if a.ImageURL != "" {
		e.Image = &discordgo.MessageEmbedImage{URL: a.ImageURL}
	}
	return e
}

// roleMention renders a role ping, or "" for no role.
func roleMention(roleID string) string {
	if roleID == "" {
		return ""
	}
	return "<@&" + roleID + ">"
}

// messageSend builds the go-live message; only the configured role may be pinged.
func messageSend(a live.Announcement) *discordgo.MessageSend {
	ms := &discordgo.MessageSend{
		Content: roleMention(a.MentionRole),
		Embeds:  []*discordgo.MessageEmbed{twitchEmbed(a)},
	}
	if a.MentionRole != "" {
		ms.AllowedMentions = &discordgo.MessageAllowedMentions{Roles: []string{a.MentionRole}}
	}
	return ms
}

// messageEdit replaces the embed of ref; the content (role ping) is left untouched.
func messageEdit(ref live.MessageRef, a live.Announcement) *discordgo.MessageEdit {
	embeds := []*discordgo.MessageEmbed{twitchEmbed(a)}
	return &discordgo.MessageEdit{ID: ref.MessageID, Channel: ref.ChannelID, Embeds: &embeds}
}

// lockOverwrite computes the @everyone overwrite for a locked or unlocked
// channel, keeping bits other than SEND_MESSAGES from the current overwrite.
func lockOverwrite(current *discordgo.PermissionOverwrite, locked bool) (allow, deny int64) {
	if current != nil {
		allow, deny = current.Allow, current.Deny
	}
	if locked {
		allow &^= discordgo.PermissionSendMessages
		deny |= discordgo.PermissionSendMessages
	} else {
		allow |= discordgo.PermissionSendMessages
		deny &^= discordgo.PermissionSendMessages
	}
	return allow, deny
}
