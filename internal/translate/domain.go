package translate

import "time"

// TrackedField is one staleness row: a translatable field on one object.
type TrackedField struct {
	ID          int64
	ContentType string
	ObjectID    int64
	Field       string
	UpToDate    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Translation is a stored translated value for one field and language.
type Translation struct {
	ID               int64
	ContentType      string
	ObjectID         int64
	Field            string
	Language         string
	Value            string
	DetectedLanguage string
	UpdatedAt        time.Time
}
