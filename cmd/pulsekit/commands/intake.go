package commands

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/pulsekit/pulsekit/internal/logger"
)

var (
	intakeAddr   string
	intakeStatus int
)

var intakeCmd = &cobra.Command{
	Use:   "intake",
	Short: "Run a local mock intake server",
	Long: `Intake runs an HTTP server that accepts SDK uploads on any path,
logs each received batch and answers with a configurable status code.
Point the SDK at it to exercise upload, retry and backoff behavior:

  pulsekit intake --addr :8126 --status 503`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init(logger.Config{Level: "INFO"}); err != nil {
			return err
		}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.HandleFunc("/*", handleUpload)

		srv := &http.Server{
			Addr:              intakeAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		logger.Info("mock intake listening",
			logger.KeyEndpoint, intakeAddr, logger.KeyStatus, intakeStatus)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case <-stop:
			return srv.Close()
		}
	},
}

// handleUpload logs one received batch and answers with the configured
// status.
func handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	logger.Info("batch received",
		logger.KeyEndpoint, r.URL.Path,
		logger.KeySize, len(body),
		logger.KeyBatchID, r.Header.Get("X-Batch-ID"),
	)

	w.Header().Set("Date", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(intakeStatus)
	fmt.Fprintln(w, http.StatusText(intakeStatus))
}

func init() {
	intakeCmd.Flags().StringVar(&intakeAddr, "addr", ":8126", "listen address")
	intakeCmd.Flags().IntVar(&intakeStatus, "status", http.StatusAccepted, "status code to answer with")
}
