package alertpipe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// NotifyConfig defines alert destinations, ported from the host-metrics
// engine's AlertConfig and generalized to the same set of channels.
type NotifyConfig struct {
	Webhook          string
	Command          string
	Email            string
	SlackWebhook     string
	TelegramBotToken string
	TelegramChatID   string
}

// Notifier dispatches a formatted alert to every configured channel.
type Notifier struct {
	cfg    NotifyConfig
	log    *zap.SugaredLogger
	client *http.Client
}

// NewNotifier creates a notifier bounded by a 5s HTTP timeout per channel.
func NewNotifier(cfg NotifyConfig, log *zap.SugaredLogger) *Notifier {
	return &Notifier{cfg: cfg, log: log, client: &http.Client{Timeout: 5 * time.Second}}
}

// Enabled reports whether any destination is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.Webhook != "" || n.cfg.Command != "" ||
		n.cfg.Email != "" || n.cfg.SlackWebhook != "" ||
		(n.cfg.TelegramBotToken != "" && n.cfg.TelegramChatID != "")
}

// Notify dispatches a formatted alert asynchronously to every configured
// channel — visual recording happens synchronously in the pipeline
// regardless of whether any channel is enabled.
func (n *Notifier) Notify(event, subject, text string, payload any) {
	if !n.Enabled() {
		return
	}
	go n.dispatch(event, subject, text, payload)
}

func (n *Notifier) dispatch(event, subject, text string, payload any) {
	data, err := json.Marshal(map[string]any{"event": event, "payload": payload, "ts": time.Now().Format(time.RFC3339)})
	if err != nil {
		n.log.Warnw("alert marshal error", "error", err)
		return
	}

	if n.cfg.Webhook != "" {
		n.sendWebhook(data)
	}
	if n.cfg.Command != "" {
		n.sendCommand(event, data)
	}
	if n.cfg.Email != "" {
		n.sendEmail("netwatch: "+event, text)
	}
	if n.cfg.SlackWebhook != "" {
		n.sendSlack(fmt.Sprintf("*netwatch: %s*\n```\n%s\n```", event, text))
	}
	if n.cfg.TelegramBotToken != "" && n.cfg.TelegramChatID != "" {
		n.sendTelegram(fmt.Sprintf("netwatch: %s\n%s", event, text))
	}
}

func (n *Notifier) sendEmail(subject, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "mail", "-s", subject, n.cfg.Email)
	cmd.Stdin = strings.NewReader(body)
	if err := cmd.Run(); err != nil {
		n.log.Warnw("email send error", "error", err)
	}
}

func (n *Notifier) sendSlack(text string) {
	if err := validateWebhookURL(n.cfg.SlackWebhook); err != nil {
		n.log.Warnw("slack webhook blocked", "error", err)
		return
	}
	n.postJSON(n.cfg.SlackWebhook, map[string]string{"text": text}, "slack")
}

func (n *Notifier) sendTelegram(text string) {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.cfg.TelegramBotToken)
	n.postJSON(apiURL, map[string]string{"chat_id": n.cfg.TelegramChatID, "text": text}, "telegram")
}

func (n *Notifier) sendWebhook(data []byte) {
	if err := validateWebhookURL(n.cfg.Webhook); err != nil {
		n.log.Warnw("webhook blocked", "error", err)
		return
	}
	n.post(n.cfg.Webhook, data, "webhook")
}

func (n *Notifier) postJSON(url string, payload any, label string) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	n.post(url, data, label)
}

func (n *Notifier) post(url string, data []byte, label string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warnw("alert send error", "channel", label, "error", err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func (n *Notifier) sendCommand(event string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "sh", "-c", n.cfg.Command)
	cmd.Env = append(os.Environ(), "NETWATCH_EVENT="+event, "NETWATCH_PAYLOAD="+string(data))
	_ = cmd.Run()
}

// validateWebhookURL guards against SSRF: only http/https, and never a
// loopback, link-local, or cloud metadata host.
func validateWebhookURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https scheme, got %q", scheme)
	}
	host := strings.ToLower(u.Hostname())
	blocked := []string{"169.254.169.254", "metadata.google.internal", "localhost", "127.0.0.1", "::1"}
	for _, b := range blocked {
		if host == b {
			return fmt.Errorf("webhook URL host %q is blocked", host)
		}
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsLinkLocalUnicast()) {
		return fmt.Errorf("webhook URL host %q is blocked", host)
	}
	return nil
}
