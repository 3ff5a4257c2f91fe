package webhook

import (
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"emailfilter/internal/application/triage"
)

const maxBodyBytes = 1 << 20

// NewMux serves the webhook at /webhook and a liveness check at /healthz.
func NewMux(h Handler, log *zap.SugaredLogger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			log.Warnw("reading webhook body failed", "error", err)
			http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusRequestEntityTooLarge)
			return
		}

		query := make(map[string]string, len(r.URL.Query()))
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				query[k] = v[0]
			}
		}

		resp := h.Handle(r.Context(), triage.Request{Query: query, Body: body})
		w.Header().Set("Content-Type", resp.ContentType)
		w.WriteHeader(resp.StatusCode)
		if _, err := w.Write(resp.Body); err != nil {
			log.Debugw("writing webhook response failed", "error", err)
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
