// Package analysis fills in estimated time and difficulty for recipes that
// have neither, by asking the AI service on a fixed schedule.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/recipebox/internal/logging"
	"github.com/kiranshivaraju/recipebox/internal/metrics"
	"github.com/kiranshivaraju/recipebox/internal/store"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

// ErrNotCandidate is returned by AnalyzeRecipe when the recipe already has
// metadata or has no current version.
var ErrNotCandidate = errors.New("recipe does not need analysis")

const (
	DefaultInterval  = 5 * time.Minute
	DefaultBatchSize = 5
	DefaultSpacing   = 2 * time.Second

	// DefaultCandidateLimit is the lookup size when no limit is given.
	DefaultCandidateLimit = 10
)

// Analyzer produces time and difficulty estimates for recipe content.
type Analyzer interface {
	AnalyzeRecipe(ctx context.Context, req models.AnalysisRequest) (*models.RecipeAnalysis, error)
}

// RecipeStore is the subset of the store the scheduler reads and writes.
type RecipeStore interface {
	FindRecipesNeedingAnalysis(ctx context.Context, limit int) ([]uuid.UUID, error)
	GetRecipe(ctx context.Context, id uuid.UUID) (*models.Recipe, error)
	UpdateRecipeAnalysis(ctx context.Context, id uuid.UUID, update models.RecipeAnalysisUpdate) error
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Candidates int
	Analyzed   int
	Skipped    int
	Failed     int
}

// Scheduler runs analysis sweeps. Sweeps are sequential and never overlap.
type Scheduler struct {
	store     RecipeStore
	analyzer  Analyzer
	interval  time.Duration
	batchSize int
	spacing   time.Duration
	logger    *slog.Logger
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithSpacing sets the pause between the end of one AI call and the start of
// the next within a sweep.
func WithSpacing(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.spacing = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

func NewScheduler(st RecipeStore, an Analyzer, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     st,
		analyzer:  an,
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
		spacing:   DefaultSpacing,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "recipe-analysis")
	return s
}

// FindRecipesNeedingAnalysis returns up to limit recipe ids, newest first,
// that have a current version and neither estimated time nor difficulty.
func (s *Scheduler) FindRecipesNeedingAnalysis(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	ids, err := s.store.FindRecipesNeedingAnalysis(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("finding recipes needing analysis: %w", err)
	}
	return ids, nil
}

// AnalyzeRecipe sends one recipe to the analyzer and stores the estimate.
// The recipe is re-read first, and the write only lands while both fields
// are still empty, so values entered by a user are never replaced.
func (s *Scheduler) AnalyzeRecipe(ctx context.Context, id uuid.UUID) (*models.RecipeAnalysis, error) {
	recipe, err := s.store.GetRecipe(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading recipe: %w", err)
	}
	if !recipe.NeedsAnalysis() || recipe.CurrentVersion == nil {
		return nil, ErrNotCandidate
	}

	req := models.AnalysisRequest{
		Title:        recipe.Title,
		Description:  deref(recipe.Description),
		Ingredients:  recipe.CurrentVersion.Ingredients,
		Instructions: recipe.CurrentVersion.Instructions,
	}

	result, err := s.analyzer.AnalyzeRecipe(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("analyzing recipe: %w", err)
	}
	if result.EstimatedTime == nil || result.Difficulty == nil {
		return nil, fmt.Errorf("analyzing recipe: missing estimated time or difficulty")
	}

	update := models.RecipeAnalysisUpdate{
		EstimatedTime:       *result.EstimatedTime,
		Difficulty:          *result.Difficulty,
		TimeReasoning:       result.TimeReasoning,
		DifficultyReasoning: result.DifficultyReasoning,
	}
	if result.Description != nil && *result.Description != "" {
		update.Description = result.Description
	}

	if err := s.store.UpdateRecipeAnalysis(ctx, id, update); err != nil {
		if errors.Is(err, store.ErrAlreadyAnalyzed) {
			return nil, ErrNotCandidate
		}
		return nil, fmt.Errorf("storing analysis: %w", err)
	}
	return result, nil
}

// Sweep analyzes up to the batch size of candidates one after another,
// pausing the configured spacing after each call finishes. A failing recipe
// is logged and left as a candidate for the next sweep.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	metrics.AnalysisSweepsTotal.Inc()

	ids, err := s.FindRecipesNeedingAnalysis(ctx, s.batchSize)
	if err != nil {
		return res, fmt.Errorf("find candidates: %w", err)
	}
	res.Candidates = len(ids)
	if len(ids) == 0 {
		s.logger.Debug("no recipes need analysis")
		return res, nil
	}
	s.logger.Info("analysis sweep started", "candidates", len(ids))

	for i, id := range ids {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				return res, err
			}
		}

		log := s.logger.With("recipe_id", id)
		analysis, err := s.AnalyzeRecipe(ctx, id)
		switch {
		case errors.Is(err, ErrNotCandidate), errors.Is(err, store.ErrNotFound):
			res.Skipped++
			metrics.AnalysisRecipesTotal.WithLabelValues("skipped").Inc()
			log.Debug("recipe skipped", "reason", err)
		case err != nil:
			res.Failed++
			metrics.AnalysisRecipesTotal.WithLabelValues("failed").Inc()
			log.Warn("recipe analysis failed", logging.Err(err))
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
		default:
			res.Analyzed++
			metrics.AnalysisRecipesTotal.WithLabelValues("analyzed").Inc()
			log.Info("recipe analyzed", "estimated_time", *analysis.EstimatedTime, "difficulty", *analysis.Difficulty)
		}
	}

	s.logger.Info("analysis sweep complete",
		"analyzed", res.Analyzed, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// pause waits the spacing after one recipe has finished and before the next
// one starts.
func (s *Scheduler) pause(ctx context.Context) error {
	if s.spacing <= 0 {
		return nil
	}
	timer := time.NewTimer(s.spacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Serve runs a sweep, then waits the full interval before the next one,
// until ctx is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.logger.Info("analysis scheduler started", "interval", s.interval)
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("analysis sweep failed", logging.Err(err))
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("analysis scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
