// Package activity picks the one presence activity that earns XP and
// normalises it into a streak label.
package activity

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

type Kind int

const (
	KindOther Kind = iota
	KindStreaming
	KindListening
	KindPlaying
	KindCompeting
	KindWatching
	KindCustom
)

var kindNames = map[Kind]string{
	KindOther:     "other",
	KindStreaming: "streaming",
	KindListening: "listening",
	KindPlaying:   "playing",
	KindCompeting: "competing",
	KindWatching:  "watching",
	KindCustom:    "custom",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "other"
}

// Priority orders eligible kinds; lower wins. Custom status is never
// eligible and reports 0.
func (k Kind) Priority() int {
	switch k {
	case KindStreaming:
		return 1
	case KindListening:
		return 2
	case KindPlaying:
		return 3
	case KindCompeting:
		return 4
	case KindWatching:
		return 5
	case KindCustom:
		return 0
	default:
		return 7
	}
}

func (k Kind) Eligible() bool {
	return k != KindCustom
}

// XPRange is the inclusive base XP range for one award.
func (k Kind) XPRange() (int, int) {
	switch k {
	case KindListening:
		return 3, 8
	case KindPlaying:
		return 8, 15
	case KindStreaming:
		return 12, 20
	case KindWatching:
		return 5, 10
	case KindCompeting:
		return 10, 18
	default:
		return 3, 7
	}
}

type Activity struct {
	Kind Kind
	Name string
}

type Selection struct {
	Kind  Kind
	Name  string
	Label string
}

// Description reads naturally after a member name in notifications.
func (s Selection) Description() string {
	switch s.Kind {
	case KindListening:
		if s.Label == spotifyLabel {
			return "listening to Spotify"
		}
		return "listening to " + s.Name
	case KindStreaming:
		return "streaming " + s.Name
	case KindPlaying:
		return "playing " + s.Name
	case KindWatching:
		return "watching " + s.Name
	case KindCompeting:
		return "competing in " + s.Name
	default:
		return "doing " + s.Name
	}
}

const spotifyLabel = "Spotify"

// Label is the streak continuity key for an activity.
func Label(a Activity) string {
	name := strings.TrimSpace(a.Name)
	switch a.Kind {
	case KindListening:
		if strings.EqualFold(name, spotifyLabel) {
			return spotifyLabel
		}
		return "Listening: " + name
	case KindStreaming:
		return "Streaming: " + name
	case KindPlaying:
		return "Playing: " + name
	case KindCompeting:
		return "Competing: " + name
	case KindWatching:
		return "Watching: " + name
	case KindCustom:
		return "Custom: " + name
	default:
		return "Unknown: " + name
	}
}

// Classify returns the highest priority eligible activity. Among equal
// priorities the first one listed wins. ok is false when nothing is
// eligible, which callers treat as "no activity".
func Classify(activities []Activity) (Selection, bool) {
	best := -1
	for i, a := range activities {
		if !a.Kind.Eligible() {
			continue
		}
		if best == -1 || a.Kind.Priority() < activities[best].Kind.Priority() {
			best = i
		}
	}
	if best == -1 {
		return Selection{}, false
	}
	chosen := activities[best]
	return Selection{Kind: chosen.Kind, Name: strings.TrimSpace(chosen.Name), Label: Label(chosen)}, true
}

func KindFromDiscord(t discordgo.ActivityType) Kind {
	switch t {
	case discordgo.ActivityTypeGame:
		return KindPlaying
	case discordgo.ActivityTypeStreaming:
		return KindStreaming
	case discordgo.ActivityTypeListening:
		return KindListening
	case discordgo.ActivityTypeWatching:
		return KindWatching
	case discordgo.ActivityTypeCustom:
		return KindCustom
	case discordgo.ActivityTypeCompeting:
		return KindCompeting
	default:
		return KindOther
	}
}

func FromDiscord(activities []*discordgo.Activity) []Activity {
	out := make([]Activity, 0, len(activities))
	for _, a := range activities {
		if a == nil {
			continue
		}
		out = append(out, Activity{Kind: KindFromDiscord(a.Type), Name: a.Name})
	}
	return out
}
