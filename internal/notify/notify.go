// FILE: notify.go
// Package notify posts fire-and-forget messages to LINE Notify, the way
// the webhook handler and the execution workers report what they did.
package notify

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var lineNotifyURL = "https://notify-api.line.me/api/notify"

// Notifier sends a best-effort status message; implementations never
// return an error because notification failures must never affect order
// execution.
type Notifier interface {
	Notify(msg string)
}

// LineNotifier posts to LINE Notify's webhook API. A zero token makes
// Notify a no-op, so the executor runs fine without LINE configured.
type LineNotifier struct {
	Token string
	hc    *http.Client
}

func NewLineNotifier(token string) *LineNotifier {
	return &LineNotifier{Token: token, hc: &http.Client{Timeout: 5 * time.Second}}
}

func (n *LineNotifier) Notify(msg string) {
	if n.Token == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	form := url.Values{"message": {msg}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lineNotifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		log.Warn().Err(err).Msg("line notify: building request failed")
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+n.Token)

	res, err := n.hc.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("line notify: request failed")
		return
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		log.Warn().Int("status", res.StatusCode).Msg("line notify: non-2xx response")
	}
}

// NoopNotifier discards every message; used when no LINE token is set.
type NoopNotifier struct{}

func (NoopNotifier) Notify(string) {}
