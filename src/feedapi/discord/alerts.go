// Package discord posts reviewer-channel alerts for new submissions. The
// whole component is token-gated: without a configured bot token the server
// simply runs without it.
package discord

import (
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/clearvoice-app/clearvoice/src/record"
)

type Alerter struct {
	session   *discordgo.Session
	channelID string
	logger    *log.Logger
}

func NewAlerter(token, channelID string, logger *log.Logger) (*Alerter, error) {
	if logger == nil {
		logger = log.Default()
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Alerter{session: session, channelID: channelID, logger: logger}, nil
}

// NewSubmission posts an embed for a fresh record. Failures are logged; the
// submission itself has already been stored.
func (a *Alerter) NewSubmission(rec record.Record) {
	title := rec.Title
	if title == "" {
		title = fmt.Sprintf("Quick %s entry", rec.Category)
	}
	desc := rec.Description
	if len(desc) > 1800 {
		desc = desc[:1797] + "..."
	}
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       0x00bfa5,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Category", Value: string(rec.Category), Inline: true},
			{Name: "Rating", Value: fmt.Sprintf("%d/5", rec.Rating), Inline: true},
			{Name: "Record", Value: rec.ID, Inline: false},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "ClearVoice • new submission"},
		Timestamp: rec.CreatedAt.Format(time.RFC3339),
	}
	if _, err := a.session.ChannelMessageSendEmbed(a.channelID, embed); err != nil {
		a.logger.Printf("discord: alert for %s failed: %v", rec.ID, err)
	}
}
