package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/growthops/deal-qualifier/internal/qualifier"
	"github.com/growthops/deal-qualifier/pkg/ollama"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long:  "Listens for CRM deal-creation webhooks and Slack button interactions, and sweeps pending deals periodically.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := buildEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		// Catch deals missed while offline, then keep sweeping.
		go env.Qualifier.RunPendingSweep(ctx,
			time.Duration(cfg.Server.PendingSweepMinutes)*time.Minute)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.Qualifier, cfg.HubSpot.ClientSecret, env.Ollama),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(q *qualifier.Qualifier, webhookSecret string, ollamaClient ollama.Client) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "X-HubSpot-Signature-v3"},
	}))

	r.Post("/webhook/hubspot", handleWebhook(q, webhookSecret))
	r.Post("/slack/interactions", handleInteractions(q))
	r.Get("/health", handleHealth(ollamaClient))
	r.Get("/webhook/process-pending", handlePending(q))
	r.Post("/webhook/process-pending", handlePending(q))
	return r
}

// verifySignature checks the HMAC-SHA256 hex digest of the raw body against
// the v3 signature header. An empty secret disables verification.
func verifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		zap.L().Warn("webhook secret not set, skipping signature verification")
		return true
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// hubspotEvent is one entry of a webhook delivery. Object IDs arrive as
// numbers.
type hubspotEvent struct {
	SubscriptionType string      `json:"subscriptionType"`
	ObjectType       string      `json:"objectType"`
	ObjectID         json.Number `json:"objectId"`
	DealID           json.Number `json:"dealId"`
}

func (e hubspotEvent) dealEvent() bool {
	return e.SubscriptionType == "deal.creation" || e.ObjectType == "deal"
}

func (e hubspotEvent) dealID() string {
	if e.ObjectID.String() != "" {
		return e.ObjectID.String()
	}
	return e.DealID.String()
}

func handleWebhook(q *qualifier.Qualifier, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
			return
		}
		if !verifySignature(secret, body, r.Header.Get("X-HubSpot-Signature-v3")) {
			zap.L().Warn("invalid webhook signature")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
			return
		}

		// Deliveries are arrays of events; single objects appear in manual
		// replays.
		var events []hubspotEvent
		if err := json.Unmarshal(body, &events); err != nil {
			var single hubspotEvent
			if err := json.Unmarshal(body, &single); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
				return
			}
			events = []hubspotEvent{single}
		}

		var matching []string
		for _, event := range events {
			if !event.dealEvent() || event.dealID() == "" {
				continue
			}
			dealID := event.dealID()
			zap.L().Info("deal webhook received", zap.String("deal", dealID))

			ok, err := q.Matches(r.Context(), dealID)
			if err != nil {
				zap.L().Error("filter check failed", zap.String("deal", dealID), zap.Error(err))
				continue
			}
			if ok {
				matching = append(matching, dealID)
			}
		}

		// Qualification runs minutes, not milliseconds; detach from the
		// request.
		for _, dealID := range matching {
			go func(id string) {
				if err := q.Process(context.Background(), id); err != nil {
					zap.L().Error("deal processing failed", zap.String("deal", id), zap.Error(err))
				}
			}(dealID)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"deals_received": len(events),
			"deals_matching": len(matching),
		})
	}
}

// interactionPayload is the form-encoded Slack interaction envelope.
type interactionPayload struct {
	Type string `json:"type"`
	User struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Message struct {
		TS string `json:"ts"`
	} `json:"message"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

func handleInteractions(q *qualifier.Qualifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form"})
			return
		}
		raw := r.FormValue("payload")
		if raw == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no payload"})
			return
		}
		var payload interactionPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		if payload.Type != "block_actions" {
			w.WriteHeader(http.StatusOK)
			return
		}

		for _, action := range payload.Actions {
			// Link buttons fire interactions too but carry no decision.
			if action.ActionID == "open_hubspot" {
				continue
			}
			click, ok := parseQualification(action.Value)
			if !ok {
				continue
			}
			click.UserID = payload.User.ID
			click.UserName = payload.User.Name
			click.ChannelID = payload.Channel.ID
			click.MessageTS = payload.Message.TS

			if err := q.HandleQualification(r.Context(), click); err != nil {
				zap.L().Error("qualification handling failed",
					zap.String("deal", click.DealID), zap.Error(err))
			}
			break
		}
		w.WriteHeader(http.StatusOK)
	}
}

// parseQualification splits a button value "dealID|qualification|dealName".
func parseQualification(value string) (qualifier.Qualification, bool) {
	parts := strings.SplitN(value, "|", 3)
	if len(parts) < 2 {
		return qualifier.Qualification{}, false
	}
	click := qualifier.Qualification{
		DealID:        parts[0],
		Qualification: parts[1],
		DealName:      "Unknown",
	}
	if len(parts) > 2 {
		click.DealName = parts[2]
	}
	return click, true
}

func handleHealth(ollamaClient ollama.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{"status": "healthy"}
		if ollamaClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := ollamaClient.Health(ctx); err != nil {
				status["ollama"] = map[string]any{"available": false, "error": err.Error()}
			} else {
				status["ollama"] = map[string]any{"available": true}
			}
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func handlePending(q *qualifier.Qualifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := q.ProcessPending(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "deals_processed": count})
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
