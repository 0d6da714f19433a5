// Command webhook-receiver is a development sink for the service's account
// notifications. It logs every delivery.
package main

import (
	"encoding/json"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/rryowa/listarr/internal/service"
	"github.com/rryowa/listarr/internal/util"
)

func main() {
	logger := util.NewZapLogger()

	addr := os.Getenv("WEBHOOK_RECEIVER_ADDR")
	if addr == "" {
		addr = ":9090"
	}

	if err := run(addr, logger); err != nil {
		logger.Fatalw("Webhook receiver stopped", "error", err)
	}
}

func run(addr string, logger *zap.SugaredLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/", webhookHandler(logger))

	logger.Infof("Webhook receiver listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func webhookHandler(logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Only POST method is accepted", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()

		var payload service.WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			logger.Warnw("Rejected webhook body", "error", err)
			http.Error(w, "Error parsing JSON", http.StatusBadRequest)
			return
		}

		fields := []interface{}{"event", payload.Event, "userID", payload.UserID, "email", payload.Email}
		switch payload.Event {
		case service.EventPasswordReset:
			fields = append(fields, "token", payload.Token, "expiresAt", payload.ExpiresAt)
		case service.EventNewIP:
			fields = append(fields, "oldIP", payload.OldIP, "newIP", payload.NewIP)
		}
		logger.Infow("Received webhook", fields...)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Webhook received!"))
	}
}
