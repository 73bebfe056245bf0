package translate

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atrium-hq/atrium/internal/platform/db"
	"github.com/atrium-hq/atrium/internal/shared"
)

// contentSource describes how to read a translatable content type: where the
// source values live and how to find the organizations that own an object.
type contentSource struct {
	table         string
	fields        map[string]bool
	languagesStmt string
}

// Translatable content types. Adding a type means adding its source table and
// an owning-organization query here.
var contentSources = map[string]contentSource{
	"project": {
		table:  "projects",
		fields: map[string]bool{"title": true, "description": true},
		languagesStmt: `
			SELECT DISTINCT unnest(o.languages)
			FROM organizations o
			JOIN project_organizations po ON po.organization_id = o.id
			WHERE po.project_id = $1 AND o.auto_translate`,
	},
}

// Repository provides PostgreSQL backed persistence for translation state.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureTracked creates stale tracking rows for fields that have none yet.
func (r *Repository) EnsureTracked(ctx context.Context, contentType string, objectID int64, fields []string) error {
	src, err := source(contentType)
	if err != nil {
		return err
	}
	for _, field := range fields {
		if !src.fields[field] {
			return fmt.Errorf("translate: field %s.%s is not translatable", contentType, field)
		}
		_, err := r.pool.Exec(ctx, `
			INSERT INTO translated_fields (content_type, object_id, field, up_to_date)
			VALUES ($1, $2, $3, FALSE)
			ON CONFLICT (content_type, object_id, field) DO NOTHING`,
			contentType, objectID, field,
		)
		if err != nil {
			return fmt.Errorf("ensure tracked %s.%s: %w", contentType, field, err)
		}
	}
	return nil
}

// MarkStale flips the given fields back to stale.
func (r *Repository) MarkStale(ctx context.Context, contentType string, objectID int64, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE translated_fields
		SET up_to_date = FALSE, updated_at = now()
		WHERE content_type = $1 AND object_id = $2 AND field = ANY($3)`,
		contentType, objectID, fields,
	)
	if err != nil {
		return fmt.Errorf("mark stale: %w", err)
	}
	return nil
}

// DeleteTracking removes all translation state for one object.
func (r *Repository) DeleteTracking(ctx context.Context, contentType string, objectID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM translated_fields WHERE content_type = $1 AND object_id = $2`, contentType, objectID); err != nil {
			return fmt.Errorf("delete tracking: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM field_translations WHERE content_type = $1 AND object_id = $2`, contentType, objectID); err != nil {
			return fmt.Errorf("delete translations: %w", err)
		}
		return nil
	})
}

// ListStale returns every tracking row whose translations may be out of date.
func (r *Repository) ListStale(ctx context.Context) ([]TrackedField, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, content_type, object_id, field, up_to_date, created_at, updated_at
		FROM translated_fields
		WHERE NOT up_to_date
		ORDER BY content_type, object_id, field`)
	if err != nil {
		return nil, fmt.Errorf("list stale fields: %w", err)
	}
	defer rows.Close()

	var out []TrackedField
	for rows.Next() {
		var tf TrackedField
		if err := rows.Scan(&tf.ID, &tf.ContentType, &tf.ObjectID, &tf.Field, &tf.UpToDate, &tf.CreatedAt, &tf.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tracked field: %w", err)
		}
		out = append(out, tf)
	}
	return out, rows.Err()
}

// TargetLanguages returns the union of configured languages across the
// organizations that own the object and have auto-translation enabled.
func (r *Repository) TargetLanguages(ctx context.Context, contentType string, objectID int64) ([]string, error) {
	src, err := source(contentType)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, src.languagesStmt, objectID)
	if err != nil {
		return nil, fmt.Errorf("target languages: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var lang string
		if err := rows.Scan(&lang); err != nil {
			return nil, fmt.Errorf("scan language: %w", err)
		}
		out = append(out, lang)
	}
	return out, rows.Err()
}

// FieldValue reads the current source text of one translatable field.
func (r *Repository) FieldValue(ctx context.Context, contentType string, objectID int64, field string) (string, error) {
	src, err := source(contentType)
	if err != nil {
		return "", err
	}
	if !src.fields[field] {
		return "", fmt.Errorf("translate: field %s.%s is not translatable", contentType, field)
	}
	var value string
	stmt := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, field, src.table)
	if err := r.pool.QueryRow(ctx, stmt, objectID).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", fmt.Errorf("read %s.%s: %w", contentType, field, err)
	}
	return value, nil
}

// SaveTranslations writes every language's value in one transaction and marks
// the tracking row up to date.
func (r *Repository) SaveTranslations(ctx context.Context, tf TrackedField, detected string, values map[string]string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for lang, value := range values {
			_, err := tx.Exec(ctx, `
				INSERT INTO field_translations (content_type, object_id, field, language, value, detected_language)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (content_type, object_id, field, language)
				DO UPDATE SET value = EXCLUDED.value, detected_language = EXCLUDED.detected_language, updated_at = now()`,
				tf.ContentType, tf.ObjectID, tf.Field, lang, value, detected,
			)
			if err != nil {
				return fmt.Errorf("save translation %s: %w", lang, err)
			}
		}
		_, err := tx.Exec(ctx, `
			UPDATE translated_fields
			SET up_to_date = TRUE, updated_at = now()
			WHERE content_type = $1 AND object_id = $2 AND field = $3`,
			tf.ContentType, tf.ObjectID, tf.Field,
		)
		if err != nil {
			return fmt.Errorf("mark up to date: %w", err)
		}
		return nil
	})
}

// Translations returns the stored translations for one object.
func (r *Repository) Translations(ctx context.Context, contentType string, objectID int64) ([]Translation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, content_type, object_id, field, language, value, detected_language, updated_at
		FROM field_translations
		WHERE content_type = $1 AND object_id = $2
		ORDER BY field, language`,
		contentType, objectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list translations: %w", err)
	}
	defer rows.Close()

	var out []Translation
	for rows.Next() {
		var tr Translation
		if err := rows.Scan(&tr.ID, &tr.ContentType, &tr.ObjectID, &tr.Field, &tr.Language, &tr.Value, &tr.DetectedLanguage, &tr.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan translation: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func source(contentType string) (contentSource, error) {
	src, ok := contentSources[contentType]
	if !ok {
		return contentSource{}, fmt.Errorf("translate: unknown content type %q", contentType)
	}
	return src, nil
}
