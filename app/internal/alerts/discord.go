package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

func (n *Notifier) sendDiscord(ctx context.Context, e Event) error {
	color := 0xef4444
	if e.Kind == KindUp {
		color = 0x22c55e
	}
	embed := discordEmbed{
		Title:       e.Subject(),
		Description: e.Message(),
		Color:       color,
		Fields: []discordField{
			{Name: "Aggregator", Value: e.Aggregator, Inline: true},
			{Name: "Status", Value: strings.ToUpper(string(e.Kind)), Inline: true},
			{Name: "Time", Value: e.At.Format(time.RFC1123)},
		},
	}
	embed.Footer.Text = "ADS-B Feeder Console"

	body, err := json.Marshal(discordPayload{Username: "Feeder Console", Embeds: []discordEmbed{embed}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.DiscordURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return n.post(req)
}
