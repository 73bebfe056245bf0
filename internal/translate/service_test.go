package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranslator struct {
	mu       sync.Mutex
	calls    int
	detected string
	failOn   string // text substring that triggers an error
}

func (f *fakeTranslator) Translate(_ context.Context, text string, langs []string) (Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return Result{}, errors.New("translator unavailable")
	}
	detected := f.detected
	if detected == "" {
		detected = "en"
	}
	out := Result{DetectedLanguage: detected, Translations: make(map[string]string, len(langs))}
	for _, lang := range langs {
		out.Translations[lang] = fmt.Sprintf("[%s]%s", lang, text)
	}
	return out, nil
}

type savedField struct {
	detected string
	values   map[string]string
}

type fakeStore struct {
	mu     sync.Mutex
	stale  []TrackedField
	langs  map[string][]string // "content_type/object_id"
	values map[string]string   // "content_type/object_id/field"
	saved  map[string]savedField
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		langs:  make(map[string][]string),
		values: make(map[string]string),
		saved:  make(map[string]savedField),
	}
}

func objKey(contentType string, objectID int64) string {
	return fmt.Sprintf("%s/%d", contentType, objectID)
}

func fieldKey(tf TrackedField) string {
	return fmt.Sprintf("%s/%d/%s", tf.ContentType, tf.ObjectID, tf.Field)
}

func (f *fakeStore) EnsureTracked(context.Context, string, int64, []string) error  { return nil }
func (f *fakeStore) MarkStale(context.Context, string, int64, []string) error      { return nil }
func (f *fakeStore) DeleteTracking(context.Context, string, int64) error           { return nil }
func (f *fakeStore) Translations(context.Context, string, int64) ([]Translation, error) {
	return nil, nil
}

func (f *fakeStore) ListStale(context.Context) ([]TrackedField, error) {
	return f.stale, nil
}

func (f *fakeStore) TargetLanguages(_ context.Context, contentType string, objectID int64) ([]string, error) {
	return f.langs[objKey(contentType, objectID)], nil
}

func (f *fakeStore) FieldValue(_ context.Context, contentType string, objectID int64, field string) (string, error) {
	return f.values[fmt.Sprintf("%s/%d/%s", contentType, objectID, field)], nil
}

func (f *fakeStore) SaveTranslations(_ context.Context, tf TrackedField, detected string, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[fieldKey(tf)] = savedField{detected: detected, values: values}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepTranslatesStaleField(t *testing.T) {
	store := newFakeStore()
	store.stale = []TrackedField{{ContentType: "project", ObjectID: 1, Field: "title"}}
	store.langs[objKey("project", 1)] = []string{"fr", "de"}
	store.values["project/1/title"] = "Hello"

	svc := NewService(store, &fakeTranslator{}, 1000, testLogger())
	done, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	saved, ok := store.saved["project/1/title"]
	require.True(t, ok)
	assert.Equal(t, "en", saved.detected)
	assert.Equal(t, "[fr]Hello", saved.values["fr"])
	assert.Equal(t, "[de]Hello", saved.values["de"])
	// The source value is never rewritten.
	assert.Equal(t, "Hello", store.values["project/1/title"])
}

func TestSweepFieldFailureDoesNotBlockOthers(t *testing.T) {
	store := newFakeStore()
	store.stale = []TrackedField{
		{ContentType: "project", ObjectID: 1, Field: "title"},
		{ContentType: "project", ObjectID: 1, Field: "description"},
	}
	store.langs[objKey("project", 1)] = []string{"fr"}
	store.values["project/1/title"] = "boom payload"
	store.values["project/1/description"] = "fine"

	svc := NewService(store, &fakeTranslator{failOn: "boom"}, 1000, testLogger())
	done, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	_, failedSaved := store.saved["project/1/title"]
	assert.False(t, failedSaved, "failed field must stay stale")
	saved, ok := store.saved["project/1/description"]
	require.True(t, ok)
	assert.Equal(t, "[fr]fine", saved.values["fr"])
}

func TestSweepEmptyLanguagesMarksUpToDate(t *testing.T) {
	store := newFakeStore()
	store.stale = []TrackedField{{ContentType: "project", ObjectID: 7, Field: "title"}}
	store.values["project/7/title"] = "Untranslated"

	tr := &fakeTranslator{}
	svc := NewService(store, tr, 1000, testLogger())
	done, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	saved, ok := store.saved["project/7/title"]
	require.True(t, ok)
	assert.Empty(t, saved.detected)
	assert.Nil(t, saved.values)
	assert.Zero(t, tr.calls, "no translator call without target languages")
}

func TestSweepEmptyValueMarksUpToDate(t *testing.T) {
	store := newFakeStore()
	store.stale = []TrackedField{{ContentType: "project", ObjectID: 7, Field: "description"}}
	store.langs[objKey("project", 7)] = []string{"fr"}

	tr := &fakeTranslator{}
	svc := NewService(store, tr, 1000, testLogger())
	done, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Zero(t, tr.calls)
}

func TestTranslateFieldChunksLongContent(t *testing.T) {
	store := newFakeStore()
	store.stale = []TrackedField{{ContentType: "project", ObjectID: 3, Field: "description"}}
	store.langs[objKey("project", 3)] = []string{"fr"}
	content := strings.Repeat("word one two three four five ", 10)
	store.values["project/3/description"] = content

	svc := NewService(store, &fakeTranslator{}, 40, testLogger())
	done, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	saved := store.saved["project/3/description"]
	// Each chunk was translated independently, in source order.
	stripped := strings.ReplaceAll(saved.values["fr"], "[fr]", "")
	assert.Equal(t, content, stripped)
	assert.Greater(t, strings.Count(saved.values["fr"], "[fr]"), 1)
}

func TestTranslateFieldFallsBackToPerLanguageRequests(t *testing.T) {
	store := newFakeStore()
	store.stale = []TrackedField{{ContentType: "project", ObjectID: 4, Field: "title"}}
	store.langs[objKey("project", 4)] = []string{"fr", "de", "es"}
	// 30 chars x 3 languages = 90 > budget 80, so one request per language.
	store.values["project/4/title"] = strings.Repeat("abcde ", 5)

	tr := &fakeTranslator{}
	svc := NewService(store, tr, 80, testLogger())
	done, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Equal(t, 3, tr.calls)

	saved := store.saved["project/4/title"]
	for _, lang := range []string{"fr", "de", "es"} {
		assert.NotEmpty(t, saved.values[lang])
	}
}

func TestTranslateFieldCopiesImageChunksVerbatim(t *testing.T) {
	img := `<img src="data:image/png;base64,` + strings.Repeat("Q", 120) + `">`
	content := "<p>Intro paragraph before the picture</p>" + img + "<p>closing words</p>"

	store := newFakeStore()
	store.stale = []TrackedField{{ContentType: "project", ObjectID: 5, Field: "description"}}
	store.langs[objKey("project", 5)] = []string{"fr"}
	store.values["project/5/description"] = content

	svc := NewService(store, &fakeTranslator{}, 60, testLogger())
	done, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	translated := store.saved["project/5/description"].values["fr"]
	assert.Contains(t, translated, img, "image payload must survive untouched")
	assert.Contains(t, translated, "[fr]")
}

func TestMajorityLanguage(t *testing.T) {
	results := []chunkResult{
		{detected: "en"},
		{detected: "fr"},
		{detected: "en"},
		{detected: ""},
	}
	assert.Equal(t, "en", majorityLanguage(results))
	assert.Equal(t, "", majorityLanguage(nil))
}
