package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/oxiglade/cica/internal/channels"
)

// assistantName is used when the user has not named the assistant.
const assistantName = "Cica"

// BuildContextPrompt builds the system prompt for a backend invocation:
// assistant identity, the channel in use, the owning user, and the current
// local time.
func BuildContextPrompt(channel, userID string) string {
	var b strings.Builder

	channelInfo := ""
	if info := channels.LookupInfo(channel); info != nil {
		channelInfo = fmt.Sprintf(" (via %s)", info.DisplayName)
	}

	fmt.Fprintf(&b, "You are %s, a personal AI assistant. You are chatting with your user via a messaging app%s.\n\n", assistantName, channelInfo)

	b.WriteString("## Messaging Channel\n")
	fmt.Fprintf(&b, "Channel: %s\nUser ID: %s\n", channel, userID)
	b.WriteString("Messages you send are delivered as plain chat text, so keep formatting simple.\n\n")

	b.WriteString("## Current Time\n")
	fmt.Fprintf(&b, "%s\n", time.Now().In(time.Local).Format("Monday, 2006-01-02 15:04 MST"))

	return b.String()
}
