package notify

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ahoge-moe/Shiden/internal/models"
)

// Embed colours.
const (
	ColorSuccess = 8978687
	ColorFailure = 16711680
)

// WebhookMessage is a Discord-compatible webhook body.
type WebhookMessage struct {
	Embeds []Embed `json:"embeds"`
}

// Embed is a single rich embed.
type Embed struct {
	Title     string       `json:"title,omitempty"`
	URL       string       `json:"url,omitempty"`
	Color     int          `json:"color"`
	Timestamp string       `json:"timestamp,omitempty"`
	Author    *EmbedAuthor `json:"author,omitempty"`
	Thumbnail *EmbedImage  `json:"thumbnail,omitempty"`
	Fields    []EmbedField `json:"fields,omitempty"`
	Footer    *EmbedFooter `json:"footer,omitempty"`
}

type EmbedAuthor struct {
	Name string `json:"name"`
}

type EmbedImage struct {
	URL string `json:"url"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

// SuccessEmbed builds the message for a completed job. meta may be nil.
func SuccessEmbed(o Outcome, meta *Metadata, footer string, now time.Time) WebhookMessage {
	e := Embed{
		Title:     o.OutputName,
		Color:     ColorSuccess,
		Timestamp: now.UTC().Format(time.RFC3339),
		Author:    &EmbedAuthor{Name: "Available now"},
		Footer:    footerOf(footer),
	}
	if meta != nil {
		if meta.RomajiTitle != "" {
			e.Author.Name = meta.RomajiTitle
		}
		if meta.CoverImage != "" {
			e.Thumbnail = &EmbedImage{URL: meta.CoverImage}
		}
		if links := meta.Links(); links != "" {
			e.Fields = append(e.Fields, EmbedField{Name: "Links", Value: links, Inline: true})
		}
	}
	if o.OutputSize > 0 {
		e.Fields = append(e.Fields, EmbedField{Name: "Size", Value: humanize.Bytes(uint64(o.OutputSize)), Inline: true})
	}
	if o.Strategy != "" {
		e.Fields = append(e.Fields, EmbedField{Name: "Subtitles", Value: string(o.Strategy), Inline: true})
	}
	return WebhookMessage{Embeds: []Embed{e}}
}

// FailureEmbed builds the message for a failed job.
func FailureEmbed(o Outcome, docsURL, footer string, now time.Time) WebhookMessage {
	code := models.CodeOf(o.Err)
	stage := code.Stage()
	if e, ok := models.AsError(o.Err); ok {
		stage = e.Stage
	}

	fields := make([]EmbedField, 0, 12)
	for _, f := range o.Job.Fields() {
		fields = append(fields, EmbedField{Name: f.Name, Value: f.Value})
	}
	fields = append(fields,
		EmbedField{Name: "stage", Value: string(stage), Inline: true},
		EmbedField{Name: "error", Value: code.Name(), Inline: true},
	)

	return WebhookMessage{Embeds: []Embed{{
		Title:     fmt.Sprintf("Error code: %d", int(code)),
		URL:       docsURL,
		Color:     ColorFailure,
		Timestamp: now.UTC().Format(time.RFC3339),
		Fields:    fields,
		Footer:    footerOf(footer),
	}}}
}

func footerOf(text string) *EmbedFooter {
	if text == "" {
		return nil
	}
	return &EmbedFooter{Text: text}
}
