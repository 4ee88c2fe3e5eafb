package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/smartacus/probe-cli/internal/model"
)

// runAudit accumulates the per-run audit trail that lands next to the run
// row as a filesystem artifact.
type runAudit struct {
	runID       string
	timings     map[string]time.Duration
	counts      map[string]int
	errors      []auditError
	warnings    []string
	dataQuality model.DataQuality
	scoring     []model.OpportunityArtifact
}

type auditError struct {
	ASIN      model.ASIN `json:"asin"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

func newRunAudit(runID string) *runAudit {
	return &runAudit{
		runID:   runID,
		timings: map[string]time.Duration{},
		counts:  map[string]int{},
	}
}

func (a *runAudit) recordCount(key string, value int) {
	a.counts[key] = value
}

func (a *runAudit) recordError(asin model.ASIN, message string) {
	if len(message) > 200 {
		message = message[:200]
	}
	a.errors = append(a.errors, auditError{ASIN: asin, Message: message, Timestamp: time.Now().UTC()})
}

func (a *runAudit) warn(msg string) {
	a.warnings = append(a.warnings, msg)
	zap.L().Warn("pipeline: " + msg)
}

// scoreDistribution buckets final scores for the audit summary.
func (a *runAudit) scoreDistribution() map[string]int {
	buckets := map[string]int{
		"0-19": 0, "20-39": 0, "40-59": 0, "60-79": 0, "80-100": 0, "rejected": 0,
	}
	for i := range a.scoring {
		art := &a.scoring[i]
		switch {
		case art.Rejected:
			buckets["rejected"]++
		case art.FinalScore < 20:
			buckets["0-19"]++
		case art.FinalScore < 40:
			buckets["20-39"]++
		case art.FinalScore < 60:
			buckets["40-59"]++
		case art.FinalScore < 80:
			buckets["60-79"]++
		default:
			buckets["80-100"]++
		}
	}
	return buckets
}

// auditDocument is the JSON shape of the audit file: the run row plus the
// timing breakdown, error samples, and score distribution.
type auditDocument struct {
	Run               *model.PipelineRun `json:"run"`
	TimingsMS         map[string]int64   `json:"timings_ms"`
	Counts            map[string]int     `json:"counts"`
	ErrorsCount       int                `json:"errors_count"`
	ErrorsSample      []auditError       `json:"errors_sample,omitempty"`
	Warnings          []string           `json:"warnings,omitempty"`
	DataQuality       model.DataQuality  `json:"data_quality"`
	ScoreDistribution map[string]int     `json:"score_distribution"`
}

// writeAudit writes the audit JSON and the ranked opportunity list JSON,
// both named by run id. Failures only warn; the run row already holds the
// authoritative record.
func (p *Pipeline) writeAudit(run *model.PipelineRun, audit *runAudit, artifacts []model.OpportunityArtifact) {
	dir := p.cfg.Pipeline.ArtifactDir
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		zap.L().Warn("pipeline: audit dir create failed", zap.Error(err))
		return
	}

	doc := auditDocument{Run: run}
	if audit != nil {
		doc.TimingsMS = map[string]int64{}
		for name, d := range audit.timings {
			doc.TimingsMS[name] = d.Milliseconds()
		}
		doc.Counts = audit.counts
		doc.ErrorsCount = len(audit.errors)
		if len(audit.errors) > 10 {
			doc.ErrorsSample = audit.errors[:10]
		} else {
			doc.ErrorsSample = audit.errors
		}
		doc.Warnings = audit.warnings
		doc.DataQuality = audit.dataQuality
		doc.ScoreDistribution = audit.scoreDistribution()
	}

	writeJSON(filepath.Join(dir, "audit_run_"+run.RunID+".json"), doc)
	if len(artifacts) > 0 {
		writeJSON(filepath.Join(dir, "opportunities_run_"+run.RunID+".json"), artifacts)
	}
}

func writeJSON(path string, v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		zap.L().Warn("pipeline: audit marshal failed", zap.String("path", path), zap.Error(err))
		return
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		zap.L().Warn("pipeline: audit write failed", zap.String("path", path), zap.Error(err))
		return
	}
	zap.L().Info("pipeline: audit artifact written", zap.String("path", path))
}
