package chat

import (
	"fmt"
	"time"
)

// RelativeDate labels a conversation's last update for the history list.
func RelativeDate(t, now time.Time) string {
	hours := now.Sub(t).Hours()
	switch {
	case hours < 24:
		return "Today"
	case hours < 48:
		return "Yesterday"
	case hours < 168:
		return fmt.Sprintf("%d days ago", int(hours/24))
	default:
		return t.Local().Format("2006-01-02")
	}
}
