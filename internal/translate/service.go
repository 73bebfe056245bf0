package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// StorePort defines persistence operations used by the translation engine.
type StorePort interface {
	EnsureTracked(ctx context.Context, contentType string, objectID int64, fields []string) error
	MarkStale(ctx context.Context, contentType string, objectID int64, fields []string) error
	DeleteTracking(ctx context.Context, contentType string, objectID int64) error
	ListStale(ctx context.Context) ([]TrackedField, error)
	TargetLanguages(ctx context.Context, contentType string, objectID int64) ([]string, error)
	FieldValue(ctx context.Context, contentType string, objectID int64, field string) (string, error)
	SaveTranslations(ctx context.Context, tf TrackedField, detected string, values map[string]string) error
	Translations(ctx context.Context, contentType string, objectID int64) ([]Translation, error)
}

// chunkConcurrency bounds parallel translator calls within one field.
const chunkConcurrency = 4

// Service keeps field translations in step with source content.
type Service struct {
	store      StorePort
	translator Translator
	budget     int
	logger     *slog.Logger
}

// NewService builds the translation service. budget is the translator's
// per-request character limit, shared across target languages.
func NewService(store StorePort, translator Translator, budget int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, translator: translator, budget: budget, logger: logger}
}

// EnsureTracked creates stale tracking rows for fields not yet tracked.
func (s *Service) EnsureTracked(ctx context.Context, contentType string, objectID int64, fields []string) error {
	return s.store.EnsureTracked(ctx, contentType, objectID, fields)
}

// MarkStale flags changed fields for retranslation.
func (s *Service) MarkStale(ctx context.Context, contentType string, objectID int64, fields []string) error {
	return s.store.MarkStale(ctx, contentType, objectID, fields)
}

// DeleteTracking drops all translation state for a deleted object.
func (s *Service) DeleteTracking(ctx context.Context, contentType string, objectID int64) error {
	return s.store.DeleteTracking(ctx, contentType, objectID)
}

// Translations returns the stored translations for one object.
func (s *Service) Translations(ctx context.Context, contentType string, objectID int64) ([]Translation, error) {
	return s.store.Translations(ctx, contentType, objectID)
}

// Sweep retranslates every stale field. A failure on one field is logged and
// skipped so it never blocks the rest of the run. Returns the number of
// fields brought up to date.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	stale, err := s.store.ListStale(ctx)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, tf := range stale {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := s.translateField(ctx, tf); err != nil {
			s.logger.Error("translate field",
				slog.String("content_type", tf.ContentType),
				slog.Int64("object_id", tf.ObjectID),
				slog.String("field", tf.Field),
				slog.Any("error", err),
			)
			continue
		}
		done++
	}
	return done, nil
}

type chunkResult struct {
	perLang  map[string]string
	detected string
}

func (s *Service) translateField(ctx context.Context, tf TrackedField) error {
	langs, err := s.store.TargetLanguages(ctx, tf.ContentType, tf.ObjectID)
	if err != nil {
		return err
	}
	value, err := s.store.FieldValue(ctx, tf.ContentType, tf.ObjectID, tf.Field)
	if err != nil {
		return err
	}
	if len(langs) == 0 || value == "" {
		// Nothing to produce; the row is current until the source changes.
		return s.store.SaveTranslations(ctx, tf, "", nil)
	}

	chunks := Split(value, s.budget)
	results := make([]chunkResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkConcurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			res, err := s.translateChunk(gctx, chunk, langs)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	values := make(map[string]string, len(langs))
	for _, lang := range langs {
		parts := make([]string, len(results))
		for i, res := range results {
			parts[i] = res.perLang[lang]
		}
		values[lang] = Reassemble(parts)
	}
	return s.store.SaveTranslations(ctx, tf, majorityLanguage(results), values)
}

// translateChunk handles one chunk for all target languages. Verbatim chunks
// are copied untouched. When the chunk times the language count would blow the
// shared request budget, each language gets its own request.
func (s *Service) translateChunk(ctx context.Context, chunk Chunk, langs []string) (chunkResult, error) {
	out := chunkResult{perLang: make(map[string]string, len(langs))}
	if chunk.Verbatim {
		for _, lang := range langs {
			out.perLang[lang] = chunk.Text
		}
		return out, nil
	}

	size := utf8.RuneCountInString(chunk.Text)
	if s.budget <= 0 || size*len(langs) <= s.budget {
		res, err := s.translator.Translate(ctx, chunk.Text, langs)
		if err != nil {
			return chunkResult{}, err
		}
		out.detected = res.DetectedLanguage
		for _, lang := range langs {
			out.perLang[lang] = res.Translations[lang]
		}
		return out, nil
	}

	for _, lang := range langs {
		res, err := s.translator.Translate(ctx, chunk.Text, []string{lang})
		if err != nil {
			return chunkResult{}, fmt.Errorf("language %s: %w", lang, err)
		}
		if out.detected == "" {
			out.detected = res.DetectedLanguage
		}
		out.perLang[lang] = res.Translations[lang]
	}
	return out, nil
}

// majorityLanguage picks the source language detected most often across
// chunks. Verbatim chunks carry no detection and do not vote.
func majorityLanguage(results []chunkResult) string {
	counts := make(map[string]int)
	best := ""
	bestCount := 0
	for _, res := range results {
		lang := strings.TrimSpace(res.detected)
		if lang == "" {
			continue
		}
		counts[lang]++
		if counts[lang] > bestCount {
			best = lang
			bestCount = counts[lang]
		}
	}
	return best
}
