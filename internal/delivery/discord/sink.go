package discord

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"taskquest/internal/application"
	"taskquest/internal/models"

	"github.com/bwmarrin/discordgo"
)

type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// WebhookSink mirrors web notifications into a Discord channel through a
// webhook. Publish never blocks; events are dropped when the queue is full.
type WebhookSink struct {
	api       webhookExecutor
	webhookID string
	token     string
	logger    application.Logger

	events   chan models.Notification
	stopOnce sync.Once
	done     chan struct{}
}

func NewWebhookSink(webhookID, token string, logger application.Logger) (*WebhookSink, error) {
	// webhooks need no bot token
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return newWebhookSink(s, webhookID, token, logger), nil
}

func newWebhookSink(api webhookExecutor, webhookID, token string, logger application.Logger) *WebhookSink {
	return &WebhookSink{
		api:       api,
		webhookID: webhookID,
		token:     token,
		logger:    logger,
		events:    make(chan models.Notification, queueSize),
		done:      make(chan struct{}),
	}
}

func (w *WebhookSink) Publish(n models.Notification) {
	select {
	case w.events <- n:
	default:
		w.logger.Warn("discord queue full, dropping %s event", n.Type)
	}
}

func (w *WebhookSink) Name() string { return "discord" }

func (w *WebhookSink) Init() error {
	if w.webhookID == "" || w.token == "" {
		return fmt.Errorf("discord webhook id and token are required")
	}
	return nil
}

func (w *WebhookSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case n := <-w.events:
			w.deliver(n)
		}
	}
}

func (w *WebhookSink) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *WebhookSink) deliver(n models.Notification) {
	params := &discordgo.WebhookParams{
		Username: "TaskQuest",
		Embeds:   []*discordgo.MessageEmbed{buildEmbed(n)},
	}
	if _, err := w.api.WebhookExecute(w.webhookID, w.token, false, params); err != nil {
		w.logger.Warn("failed to post %s event to discord: %v", n.Type, err)
	}
}

func buildEmbed(n models.Notification) *discordgo.MessageEmbed {
	title, ok := eventTitles[n.Type]
	if !ok {
		title = n.Type
	}
	color, ok := eventColors[n.Type]
	if !ok {
		color = colorGray
	}

	keys := make([]string, 0, len(n.Data))
	for k := range n.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > maxFields {
		keys = keys[:maxFields]
	}

	fields := make([]*discordgo.MessageEmbedField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   k,
			Value:  truncate(fmt.Sprint(n.Data[k]), maxFieldLength),
			Inline: true,
		})
	}

	return &discordgo.MessageEmbed{
		Title:     title,
		Color:     color,
		Fields:    fields,
		Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: "TaskQuest"},
	}
}

func truncate(s string, limit int) string {
	if s == "" {
		return "-"
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
