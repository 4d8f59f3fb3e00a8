package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/deal-intel/internal/assess"
	"github.com/sells-group/deal-intel/pkg/salesforce"
)

var (
	batchLimit  int
	batchTenant string
)

// manifest lists the documents a batch run assesses. Relative file paths
// resolve against the manifest's directory.
type manifest struct {
	Tenant    string          `yaml:"tenant"`
	Documents []manifestEntry `yaml:"documents"`
}

type manifestEntry struct {
	Deal        string `yaml:"deal"`
	File        string `yaml:"file"`
	Title       string `yaml:"title"`
	Kind        string `yaml:"kind"`
	Opportunity string `yaml:"opportunity"`
}

var batchCmd = &cobra.Command{
	Use:   "batch <manifest.yaml>",
	Short: "Assess every document listed in a manifest",
	Long:  "Extracts and scores the manifest's documents concurrently, then pushes all Opportunity updates to Salesforce in bulk.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m, err := loadManifest(args[0])
		if err != nil {
			return err
		}
		if batchTenant != "" {
			m.Tenant = batchTenant
		}
		reqs, err := m.requests()
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, envOptions{Extract: true, CRM: true})
		if err != nil {
			return err
		}
		defer env.Close()

		updates, err := processBatch(ctx, reqs, batchLimit, cfg.Batch.MaxConcurrentDocuments, env.Service.Assess)
		if err != nil {
			return err
		}
		if env.CRM == nil || len(updates) == 0 {
			return nil
		}
		return syncOpportunities(ctx, env.CRM, updates)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of documents to process")
	batchCmd.Flags().StringVar(&batchTenant, "tenant", "", "override the manifest tenant")
	rootCmd.AddCommand(batchCmd)
}

func loadManifest(path string) (*manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open manifest %s", path)
	}
	defer f.Close() //nolint:errcheck

	var m manifest
	if err := yaml.NewDecoder(f).Decode(&m); err != nil {
		return nil, eris.Wrapf(err, "batch: decode manifest %s", path)
	}

	dir := filepath.Dir(path)
	for i := range m.Documents {
		if p := m.Documents[i].File; p != "" && !filepath.IsAbs(p) {
			m.Documents[i].File = filepath.Join(dir, p)
		}
	}
	return &m, nil
}

// requests reads each document's content into an assess request.
func (m *manifest) requests() ([]assess.AssessRequest, error) {
	if strings.TrimSpace(m.Tenant) == "" {
		return nil, eris.New("batch: manifest tenant is required")
	}
	reqs := make([]assess.AssessRequest, 0, len(m.Documents))
	for i, d := range m.Documents {
		if d.Deal == "" || d.File == "" {
			return nil, eris.Errorf("batch: document %d needs deal and file", i)
		}
		content, err := os.ReadFile(d.File)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: read %s", d.File)
		}
		title := d.Title
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(d.File), filepath.Ext(d.File))
		}
		reqs = append(reqs, assess.AssessRequest{
			TenantID:      m.Tenant,
			DealID:        d.Deal,
			Title:         title,
			Kind:          d.Kind,
			Content:       string(content),
			OpportunityID: d.Opportunity,
		})
	}
	return reqs, nil
}

// assessFunc is the callback signature for assessing one document.
type assessFunc func(ctx context.Context, req assess.AssessRequest) (*assess.Outcome, error)

// processBatch applies limit, then assesses documents concurrently. Failed
// documents are logged and skipped. It returns the Opportunity updates for
// documents that carry an opportunity id.
func processBatch(ctx context.Context, reqs []assess.AssessRequest, limit, concurrency int, run assessFunc) ([]salesforce.OpportunityUpdate, error) {
	if len(reqs) == 0 {
		zap.L().Info("no documents in manifest")
		return nil, nil
	}

	if limit > 0 && len(reqs) > limit {
		reqs = reqs[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("documents", len(reqs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var (
		succeeded, failed, cached atomic.Int64
		mu                        sync.Mutex
		updates                   []salesforce.OpportunityUpdate
		costMicros                atomic.Int64
	)

	for _, req := range reqs {
		g.Go(func() error {
			log := zap.L().With(zap.String("deal_id", req.DealID), zap.String("title", req.Title))

			out, err := run(gctx, req)
			if err != nil {
				failed.Add(1)
				log.Error("assessment failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			if out.CacheHit {
				cached.Add(1)
			}
			costMicros.Add(int64(out.CostUSD * 1e6))
			if req.OpportunityID != "" {
				mu.Lock()
				updates = append(updates, assess.OpportunityUpdate(out.Assessment, req.OpportunityID))
				mu.Unlock()
			}
			log.Info("assessment complete",
				zap.String("assessment_id", out.Assessment.ID),
				zap.Float64("overall_score", out.Assessment.OverallScore),
				zap.String("status", string(out.Assessment.Status)),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Int64("cache_hits", cached.Load()),
		zap.Float64("cost_usd", float64(costMicros.Load())/1e6),
	)
	return updates, nil
}

// opportunityWriter is the bulk half of salesforce.Writer.
type opportunityWriter interface {
	WriteAll(ctx context.Context, updates []salesforce.OpportunityUpdate) ([]salesforce.CollectionResult, error)
}

func syncOpportunities(ctx context.Context, w opportunityWriter, updates []salesforce.OpportunityUpdate) error {
	results, err := w.WriteAll(ctx, updates)
	if err != nil {
		return eris.Wrap(err, "batch: sync opportunities")
	}
	var failed int
	for _, r := range results {
		if !r.Success {
			failed++
			zap.L().Warn("opportunity update rejected", zap.String("opportunity_id", r.ID), zap.Strings("errors", r.Errors))
		}
	}
	zap.L().Info("opportunities synced", zap.Int("updated", len(results)-failed), zap.Int("failed", failed))
	return nil
}
