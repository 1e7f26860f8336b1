// FILE: httpapi.go
// Package httpapi exposes the executor's webhook surface: a liveness
// root, a balance snapshot, and the TradingView webhook that triggers
// rebalancing orders.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/tv-order-executor/executor/internal/metrics"
	"github.com/tv-order-executor/executor/internal/notify"
	"github.com/tv-order-executor/executor/internal/registry"
	"github.com/tv-order-executor/executor/internal/xchg"
)

// Server wires the registry, notifier and execution secret into the
// executor's HTTP handlers.
type Server struct {
	Registry        *registry.Registry
	Notifier        notify.Notifier
	ExecutionSecret string
}

func New(reg *registry.Registry, notifier notify.Notifier, executionSecret string) *Server {
	return &Server{Registry: reg, Notifier: notifier, ExecutionSecret: executionSecret}
}

// Routes builds the executor's http.ServeMux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/balance", s.handleBalance)
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("online"))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	result := s.Registry.GetBalance(r.Context())
	body, err := json.MarshalIndent(result, "", "    ")
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal balance response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// webhookPayload is the loosely-typed shape TradingView alerts arrive in;
// every field is optional except those the handler actually branches on.
type webhookPayload map[string]any

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error().Err(err).Msg("failed to read webhook body")
		s.Notifier.Notify("failed to read webhook body")
		w.WriteHeader(http.StatusOK)
		return
	}

	var data webhookPayload
	if err := json.Unmarshal(body, &data); err != nil {
		log.Error().Err(err).Msg("failed to decode webhook payload")
		metrics.WebhooksReceived.WithLabelValues("invalid").Inc()
		s.Notifier.Notify(string(body))
		w.WriteHeader(http.StatusOK)
		return
	}

	s.notifyPayload(data)

	sendOrder, _ := data["send_order"].(bool)
	if !sendOrder {
		metrics.WebhooksReceived.WithLabelValues("accepted").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	if s.ExecutionSecret != "" {
		secret, _ := data["secret"].(string)
		if _, present := data["secret"]; !present {
			s.Notifier.Notify("Secret not provided")
			metrics.WebhooksReceived.WithLabelValues("unauthorized").Inc()
			writeJSONError(w, http.StatusUnauthorized, "Secret not provided")
			return
		}
		if secret != s.ExecutionSecret {
			s.Notifier.Notify("Incorrect secret")
			metrics.WebhooksReceived.WithLabelValues("unauthorized").Inc()
			writeJSONError(w, http.StatusUnauthorized, "Incorrect secret")
			return
		}
	}

	req, err := parseOrderRequest(data)
	if err != nil {
		log.Warn().Err(err).Msg("webhook order request malformed")
		metrics.WebhooksReceived.WithLabelValues("invalid").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	metrics.WebhooksReceived.WithLabelValues("accepted").Inc()
	if err := s.Registry.SendOrder(r.Context(), req); err != nil {
		log.Error().Err(err).Str("exchange", req.Exchange).Msg("send order failed")
		s.Notifier.Notify("send order failed: " + err.Error())
	}
	w.WriteHeader(http.StatusOK)
}

// notifyPayload forwards the webhook body (minus secret/line_token) as a
// notification, the way every inbound alert gets echoed for visibility.
func (s *Server) notifyPayload(data webhookPayload) {
	scrubbed := make(webhookPayload, len(data))
	for k, v := range data {
		if k == "secret" || k == "line_token" {
			continue
		}
		scrubbed[k] = v
	}
	pretty, err := json.MarshalIndent(scrubbed, "", "    ")
	if err != nil {
		return
	}
	msg := stripQuotes(string(pretty))
	if token, ok := data["line_token"].(string); ok && token != "" {
		notify.NewLineNotifier(token).Notify(msg)
		return
	}
	s.Notifier.Notify(msg)
}

func stripQuotes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func parseOrderRequest(data webhookPayload) (registry.OrderRequest, error) {
	exchange, _ := data["exchange"].(string)
	symbol, _ := data["symbol"].(string)
	side, _ := data["side"].(string)
	if exchange == "" || symbol == "" || (side != string(xchg.Buy) && side != string(xchg.Sell)) {
		return registry.OrderRequest{}, errMalformed{exchange: exchange, symbol: symbol, side: side}
	}
	return registry.OrderRequest{Exchange: exchange, Symbol: symbol, Side: xchg.Side(side)}, nil
}

type errMalformed struct {
	exchange, symbol, side string
}

func (e errMalformed) Error() string {
	return "missing or invalid exchange/symbol/side in webhook payload"
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body, _ := json.Marshal(map[string]string{"error": msg})
	w.Write(body)
}
