// Package mock provides test doubles for Discord interaction testing.
package mock

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Responder records interaction responses for test assertions. It
// implements discord.Responder.
type Responder struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse

	// Err is returned by InteractionRespond when non-nil.
	Err error
}

// InteractionRespond records the response and returns the configured error.
func (m *Responder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return m.Err
}

// Responses returns every recorded response in order.
func (m *Responder) Responses() []*discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*discordgo.InteractionResponse(nil), m.responses...)
}

// Last returns the most recently recorded response, or nil.
func (m *Responder) Last() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return nil
	}
	return m.responses[len(m.responses)-1]
}

// LastContent returns the text content of the last response, or "".
func (m *Responder) LastContent() string {
	r := m.Last()
	if r == nil || r.Data == nil {
		return ""
	}
	return r.Data.Content
}

// Reset clears all recorded responses and errors.
func (m *Responder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = nil
	m.Err = nil
}
