package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/crimson-live/backend/live"
)

type permSet struct {
	channelID, targetID string
	targetType          discordgo.PermissionOverwriteType
	allow, deny         int64
}

type fakeSession struct {
	sent      []*discordgo.MessageSend
	sentTo    []string
	edits     []*discordgo.MessageEdit
	channel   *discordgo.Channel
	perms     []permSet
	streaming []string
	watching  []string
	err       error
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, data)
	f.sentTo = append(f.sentTo, channelID)
	return &discordgo.Message{ID: "900", ChannelID: channelID}, nil
}

func (f *fakeSession) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.edits = append(f.edits, m)
	return &discordgo.Message{ID: m.ID, ChannelID: m.Channel}, nil
}

func (f *fakeSession) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.channel, nil
}

func (f *fakeSession) ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64, _ ...discordgo.RequestOption) error {
	f.perms = append(f.perms, permSet{channelID, targetID, targetType, allow, deny})
	return nil
}

func (f *fakeSession) UpdateStreamingStatus(_ int, name string, url string) error {
	f.streaming = append(f.streaming, name+"|"+url)
	return f.err
}

func (f *fakeSession) UpdateWatchStatus(_ int, name string) error {
	f.watching = append(f.watching, name)
	return f.err
}

func sampleAnnouncement() live.Announcement {
	return live.Announcement{
		Title:       "LIVE: Foo",
		URL:         "https://twitch.tv/0xDC143C",
		ImageURL:    "https://example.com/thumb-440x248.jpg",
		Fields:      []live.Field{{Name: "Game", Value: "Chess", Inline: true}, {Name: "Viewers", Value: "10", Inline: true}},
		MentionRole: "333",
		Timestamp:   time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC),
	}
}

func TestTwitchEmbed(t *testing.T) {
	e := twitchEmbed(sampleAnnouncement())
	assert.Equal(t, "LIVE: Foo", e.Title)
	assert.Equal(t, "https://twitch.tv/0xDC143C", e.URL)
	assert.Equal(t, ColorTwitch, e.Color)
	assert.Equal(t, "2024-10-15T14:30:00Z", e.Timestamp)
	require.NotNil(t, e.Footer)
	assert.Equal(t, "CrimsonX • 0xDC143C", e.Footer.Text)
	require.NotNil(t, e.Image)
	assert.Equal(t, "https://example.com/thumb-440x248.jpg", e.Image.URL)
	require.Len(t, e.Fields, 2)
	assert.Equal(t, &discordgo.MessageEmbedField{Name: "Viewers", Value: "10", Inline: true}, e.Fields[1])
}

func TestTwitchEmbed_NoImage(t *testing.T) {
	e := twitchEmbed(live.Announcement{Title: "STREAM ENDED", Description: "Thanks for watching! See you next time."})
	assert.Nil(t, e.Image)
	assert.Empty(t, e.Fields)
	assert.NotEmpty(t, e.Timestamp)
}

func TestMessageSend_RoleMention(t *testing.T) {
	ms := messageSend(sampleAnnouncement())
	assert.Equal(t, "<@&333>", ms.Content)
	require.NotNil(t, ms.AllowedMentions)
	assert.Equal(t, []string{"333"}, ms.AllowedMentions.Roles)

	a := sampleAnnouncement()
	a.MentionRole = ""
	ms = messageSend(a)
	assert.Empty(t, ms.Content)
	assert.Nil(t, ms.AllowedMentions)
}

func TestLockOverwrite(t *testing.T) {
	const view = discordgo.PermissionViewChannel
	tests := []struct {
		name      string
		current   *discordgo.PermissionOverwrite
		locked    bool
		wantAllow int64
		wantDeny  int64
	}{
		{"lock fresh", nil, true, 0, discordgo.PermissionSendMessages},
		{"unlock fresh", nil, false, discordgo.PermissionSendMessages, 0},
		{"lock keeps other bits", &discordgo.PermissionOverwrite{Allow: view | discordgo.PermissionSendMessages}, true, view, discordgo.PermissionSendMessages},
		{"unlock keeps other denies", &discordgo.PermissionOverwrite{Deny: view | discordgo.PermissionSendMessages}, false, discordgo.PermissionSendMessages, view},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allow, deny := lockOverwrite(tt.current, tt.locked)
			assert.Equal(t, tt.wantAllow, allow)
			assert.Equal(t, tt.wantDeny, deny)
		})
	}
}

func TestClient_PostAndEdit(t *testing.T) {
	fs := &fakeSession{}
	c := New(fs)

	ref, err := c.PostAnnouncement(context.Background(), "111", sampleAnnouncement())
	require.NoError(t, err)
	assert.Equal(t, live.MessageRef{ChannelID: "111", MessageID: "900"}, ref)
	assert.Equal(t, []string{"111"}, fs.sentTo)

	require.NoError(t, c.EditAnnouncement(context.Background(), ref, live.Announcement{Title: "STREAM ENDED"}))
	require.Len(t, fs.edits, 1)
	assert.Equal(t, "900", fs.edits[0].ID)
	assert.Equal(t, "111", fs.edits[0].Channel)
	require.NotNil(t, fs.edits[0].Embeds)
	assert.Equal(t, "STREAM ENDED", (*fs.edits[0].Embeds)[0].Title)
	assert.Nil(t, fs.edits[0].Content)
}

func TestClient_SetChannelLocked(t *testing.T) {
	fs := &fakeSession{channel: &discordgo.Channel{ID: "222", GuildID: "777", PermissionOverwrites: []*discordgo.PermissionOverwrite{
		{ID: "555", Type: discordgo.PermissionOverwriteTypeMember, Allow: discordgo.PermissionSendMessages},
		{ID: "777", Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionViewChannel},
	}}}
	c := New(fs)

	require.NoError(t, c.SetChannelLocked(context.Background(), "222", true))
	require.Len(t, fs.perms, 1)
	assert.Equal(t, permSet{"222", "777", discordgo.PermissionOverwriteTypeRole, discordgo.PermissionViewChannel, discordgo.PermissionSendMessages}, fs.perms[0])
}

func TestClient_SetChannelLocked_NotGuildChannel(t *testing.T) {
	c := New(&fakeSession{channel: &discordgo.Channel{ID: "222"}})
	assert.Error(t, c.SetChannelLocked(context.Background(), "222", false))
}

func TestClient_SetPresence(t *testing.T) {
	fs := &fakeSession{}
	c := New(fs)
	require.NoError(t, c.SetPresence(context.Background(), live.Presence{Kind: live.PresenceStreaming, Text: "Foo", URL: "https://twitch.tv/0xDC143C"}))
	require.NoError(t, c.SetPresence(context.Background(), live.Presence{Kind: live.PresenceWatching, Text: "the crimson tide"}))
	assert.Equal(t, []string{"Foo|https://twitch.tv/0xDC143C"}, fs.streaming)
	assert.Equal(t, []string{"the crimson tide"}, fs.watching)
}

func TestClient_ErrorsWrapped(t *testing.T) {
	boom := errors.New("rate limited")
	c := New(&fakeSession{err: boom})
	_, err := c.PostAnnouncement(context.Background(), "111", sampleAnnouncement())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, c.EditAnnouncement(context.Background(), live.MessageRef{MessageID: "1"}, live.Announcement{}), boom)
	assert.ErrorIs(t, c.SetChannelLocked(context.Background(), "222", true), boom)
	assert.ErrorIs(t, c.SetPresence(context.Background(), live.Presence{}), boom)
}

func TestOpen_RequiresToken(t *testing.T) {
	_, _, err := Open("")
	assert.Error(t, err)
}
