package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smartacus/probe-cli/internal/model"
	"github.com/smartacus/probe-cli/internal/pipeline"
	"github.com/smartacus/probe-cli/internal/store"
	"github.com/smartacus/probe-cli/pkg/keepa"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the shortlist read API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		var client keepa.Client
		if cfg.Keepa.Key != "" {
			client = keepa.NewClient(cfg.Keepa.Key,
				keepa.WithBaseURL(cfg.Keepa.BaseURL),
				keepa.WithBucket(cfg.Keepa.BucketCapacity, cfg.Keepa.RefillPerMinute),
				keepa.WithCosts(cfg.Keepa.DiscoveryCost, cfg.Keepa.PerProductCost),
			)
		}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeResponse(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Get("/shortlist", handleShortlist(st))
		r.Get("/shortlist/export", handleShortlistExport(st))
		r.Get("/pipeline/status", handlePipelineStatus(st))
		r.Post("/pipeline/run", handleTriggerRun(st, client))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
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

// shortlistEntry is the read-API projection of one opportunity.
type shortlistEntry struct {
	Rank              int     `json:"rank"`
	ASIN              string  `json:"asin"`
	Score             int     `json:"score"`
	WindowDays        int     `json:"window_days"`
	Urgency           string  `json:"urgency"`
	AnnualValue       float64 `json:"annual_value"`
	RiskAdjustedValue float64 `json:"risk_adjusted_value"`
	Thesis            string  `json:"thesis"`
	Action            string  `json:"action_recommendation"`
}

// loadShortlist resolves the currently served list: the active snapshot's
// artifacts, or the demo payload when nothing has ever been activated. A
// degraded run's proposed snapshot is never served because it is never
// active.
func loadShortlist(ctx context.Context, st store.Store, maxItems, minScore int, minValue float64) ([]shortlistEntry, string, error) {
	snapshot, err := st.ActiveShortlistSnapshot(ctx)
	if err != nil {
		return nil, "", err
	}
	if snapshot == nil {
		return demoShortlist(), "demo", nil
	}

	artifacts, err := st.ArtifactsForRun(ctx, snapshot.RunID)
	if err != nil {
		return nil, "", err
	}

	member := map[model.ASIN]bool{}
	for _, a := range snapshot.ASINs {
		member[a] = true
	}

	var entries []shortlistEntry
	for _, a := range artifacts {
		if !member[a.ASIN] || a.Rejected {
			continue
		}
		if a.FinalScore < minScore || a.RiskAdjustedValue < minValue {
			continue
		}
		entries = append(entries, shortlistEntry{
			Rank:              len(entries) + 1,
			ASIN:              string(a.ASIN),
			Score:             a.FinalScore,
			WindowDays:        a.WindowDays,
			Urgency:           string(a.Urgency),
			AnnualValue:       a.AnnualValue,
			RiskAdjustedValue: a.RiskAdjustedValue,
			Thesis:            a.Thesis,
			Action:            a.Action,
		})
		if maxItems > 0 && len(entries) >= maxItems {
			break
		}
	}
	return entries, snapshot.RunID, nil
}

func handleShortlist(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		maxItems, minScore, minValue := shortlistFilters(req)
		entries, source, err := loadShortlist(req.Context(), st, maxItems, minScore, minValue)
		if err != nil {
			writeError(w, err)
			return
		}
		writeResponse(w, http.StatusOK, map[string]any{
			"source": source,
			"count":  len(entries),
			"items":  entries,
		})
	}
}

func handleShortlistExport(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		maxItems, minScore, minValue := shortlistFilters(req)
		entries, _, err := loadShortlist(req.Context(), st, maxItems, minScore, minValue)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="shortlist.csv"`)

		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"rank", "asin", "score", "window_days", "urgency", "annual_value", "risk_adjusted_value", "thesis", "action"})
		for _, e := range entries {
			_ = cw.Write([]string{
				strconv.Itoa(e.Rank), e.ASIN, strconv.Itoa(e.Score), strconv.Itoa(e.WindowDays),
				e.Urgency, fmt.Sprintf("%.2f", e.AnnualValue), fmt.Sprintf("%.2f", e.RiskAdjustedValue),
				e.Thesis, e.Action,
			})
		}
		cw.Flush()
	}
}

func handlePipelineStatus(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		runs, err := st.ListRuns(req.Context(), store.RunFilter{Limit: 1})
		if err != nil {
			writeError(w, err)
			return
		}
		if len(runs) == 0 {
			writeResponse(w, http.StatusOK, map[string]any{"status": "never_run"})
			return
		}
		run := runs[0]
		writeResponse(w, http.StatusOK, map[string]any{
			"run_id":              run.RunID,
			"status":              string(run.Status),
			"started_at":          run.StartedAt,
			"ended_at":            run.EndedAt,
			"products_tracked":    run.ASINsTotal,
			"opportunities_found": run.OpportunitiesFound,
			"error_count":         run.ASINsFailed,
			"shortlist_frozen":    run.ShortlistFrozen,
		})
	}
}

func handleTriggerRun(st store.Store, client keepa.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if client == nil {
			writeResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "external api not configured"})
			return
		}

		p := pipeline.New(cfg, st, client)
		done := make(chan string, 1)
		go func() {
			run, err := p.Run(context.Background(), pipeline.RunOptions{})
			if err != nil {
				zap.L().Error("triggered run failed", zap.Error(err))
				return
			}
			select {
			case done <- run.RunID:
			default:
			}
			zap.L().Info("triggered run finished",
				zap.String("run_id", run.RunID),
				zap.String("status", string(run.Status)),
			)
		}()

		select {
		case runID := <-done:
			writeResponse(w, http.StatusAccepted, map[string]string{"status": "accepted", "run_id": runID})
		case <-time.After(200 * time.Millisecond):
			writeResponse(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		}
	}
}

func shortlistFilters(req *http.Request) (maxItems, minScore int, minValue float64) {
	maxItems, _ = strconv.Atoi(req.URL.Query().Get("maxItems"))
	minScore, _ = strconv.Atoi(req.URL.Query().Get("minScore"))
	minValue, _ = strconv.ParseFloat(req.URL.Query().Get("minValue"), 64)
	return maxItems, minScore, minValue
}

// demoShortlist is served before the first completed run activates a real
// snapshot.
func demoShortlist() []shortlistEntry {
	return []shortlistEntry{
		{Rank: 1, ASIN: "B0DEMO0001", Score: 78, WindowDays: 30, Urgency: "urgent",
			AnnualValue: 31000, RiskAdjustedValue: 21700,
			Thesis: "demo data: run the pipeline to populate the shortlist",
			Action: "PRIORITY: start supplier analysis within 7 days"},
		{Rank: 2, ASIN: "B0DEMO0002", Score: 64, WindowDays: 60, Urgency: "active",
			AnnualValue: 18500, RiskAdjustedValue: 12950,
			Thesis: "demo data: run the pipeline to populate the shortlist",
			Action: "ACTIVE: plan sourcing within 2 weeks"},
	}
}

func writeResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("request failed", zap.Error(err))
	writeResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
