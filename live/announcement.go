package live

import (
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/crimson-live/backend/twitchapi"
)

const (
	thumbnailWidth  = 440
	thumbnailHeight = 248

	livePrefix       = "LIVE: "
	endedTitle       = "STREAM ENDED"
	endedDescription = "Thanks for watching! See you next time."

	untitledStream  = "Untitled Stream"
	unknownCategory = "Unknown"
)

// MessageRef identifies a posted announcement.
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// Field is one inline name/value pair of an announcement.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Announcement is the platform-neutral content of the go-live message.
type Announcement struct {
	Title       string
	Description string
	URL         string
	ImageURL    string
	Fields      []Field
	MentionRole string // role id to ping, empty for none
	Timestamp   time.Time
}

// PresenceKind selects how the bot's status is shown.
type PresenceKind int

const (
	PresenceWatching PresenceKind = iota
	PresenceStreaming
)

// Presence is the bot's activity line.
type Presence struct {
	Kind PresenceKind
	Text string
	URL  string
}

// liveAnnouncement composes the go-live embed. Explicit title and category win
// over the snapshot; snap may be nil, which drops the viewer field and image.
func liveAnnouncement(snap *twitchapi.StreamSnapshot, title, category, url, roleID string, now time.Time) Announcement {
	if title == "" && snap != nil {
		title = snap.Title
	}
	if category == "" && snap != nil {
		category = snap.GameName
	}
	if title == "" {
		title = untitledStream
	}
	a := Announcement{
		Title:       livePrefix + title,
		URL:         url,
		MentionRole: roleID,
		Timestamp:   now,
	}
	if category != "" {
		a.Fields = append(a.Fields, Field{Name: "Game", Value: category, Inline: true})
	}
	if snap != nil {
		a.Fields = append(a.Fields, Field{Name: "Viewers", Value: strconv.Itoa(snap.ViewerCount), Inline: true})
		a.ImageURL = snap.Thumbnail(thumbnailWidth, thumbnailHeight)
	}
	return a
}

func endedAnnouncement(url string, now time.Time) Announcement {
	return Announcement{Title: endedTitle, Description: endedDescription, URL: url, Timestamp: now}
}

// ChannelURL returns the public stream URL for a Twitch login.
func ChannelURL(username string) string {
	return "https://twitch.tv/" + strings.TrimSpace(username)
}
