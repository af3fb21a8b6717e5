// Package channels defines the narrow interface between the core and the
// chat platforms it bridges. Each platform implements Channel; the core
// only ever sends text to a user and receives text from one.
package channels

import "context"

// IncomingHandler receives raw text from a channel. It must return
// quickly; processing happens behind the per-user task manager.
type IncomingHandler func(channel, userID, text string)

// Channel is a chat platform adapter.
type Channel interface {
	// Name is the channel identifier used in job ownership and session
	// keys (e.g. "telegram").
	Name() string

	// DisplayName is the user-facing channel name (e.g. "Telegram").
	DisplayName() string

	// Send delivers a text message to a user on this channel.
	Send(ctx context.Context, userID, text string) error

	// Start begins receiving messages and hands them to the handler.
	// It blocks until ctx is cancelled.
	Start(ctx context.Context, handler IncomingHandler) error

	// SetTyping turns the channel's typing indicator on or off for a
	// user. Channels without one treat this as a no-op.
	SetTyping(ctx context.Context, userID string, typing bool)
}

// Info describes a supported channel for display purposes.
type Info struct {
	Name        string
	DisplayName string
}

// SupportedChannels lists the channels the assistant knows by name.
var SupportedChannels = []Info{
	{Name: "telegram", DisplayName: "Telegram"},
	{Name: "signal", DisplayName: "Signal"},
	{Name: "slack", DisplayName: "Slack"},
}

// LookupInfo returns display info for a channel name, or nil if unknown.
func LookupInfo(name string) *Info {
	for i := range SupportedChannels {
		if SupportedChannels[i].Name == name {
			return &SupportedChannels[i]
		}
	}
	return nil
}

// Registry maps channel names to running channel instances, giving the
// cron scheduler a single place to resolve "deliver to (channel, user)".
type Registry struct {
	channels map[string]Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Register adds a channel under its name.
func (r *Registry) Register(ch Channel) {
	r.channels[ch.Name()] = ch
}

// Get returns the channel registered under name, or nil.
func (r *Registry) Get(name string) Channel {
	return r.channels[name]
}

// All returns the registered channels.
func (r *Registry) All() []Channel {
	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}
