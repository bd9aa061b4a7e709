package store

import (
	"context"
	"strings"
	"time"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/music"
)

const tagColumns = `id, subject_id, subject_kind, subject_name, tag, category, confidence, source, tagged_at`

// upsertTagQuery inserts a tag or updates the row with the same subject and
// text. An automatic write over a manual row leaves the row as it was.
const upsertTagQuery = `
	INSERT INTO tags (subject_id, subject_kind, subject_name, tag, category, confidence, source, tagged_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (subject_id, subject_kind, tag) DO UPDATE SET
		subject_name = CASE WHEN excluded.subject_name <> '' THEN excluded.subject_name ELSE tags.subject_name END,
		category     = CASE WHEN tags.source = 'manual' AND excluded.source = 'auto' THEN tags.category ELSE excluded.category END,
		confidence   = CASE WHEN tags.source = 'manual' AND excluded.source = 'auto' THEN tags.confidence ELSE excluded.confidence END,
		tagged_at    = CASE WHEN tags.source = 'manual' AND excluded.source = 'auto' THEN tags.tagged_at ELSE excluded.tagged_at END,
		source       = CASE WHEN tags.source = 'manual' THEN tags.source ELSE excluded.source END
	RETURNING ` + tagColumns

// NormalizeTagText is the form tag text is stored and looked up in.
func NormalizeTagText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// UpsertTag inserts or updates a tag by (subject id, subject kind, text) and
// returns the stored row.
func (s *Store) UpsertTag(ctx context.Context, in TagInput) (Tag, error) {
	in.Text = NormalizeTagText(in.Text)
	switch {
	case in.SubjectID == "":
		return Tag{}, apperr.Invalid("store.UpsertTag", "tag needs a subject")
	case !in.SubjectKind.Valid():
		return Tag{}, apperr.Invalid("store.UpsertTag", "unknown subject kind %q", in.SubjectKind)
	case in.Text == "":
		return Tag{}, apperr.Invalid("store.UpsertTag", "tag text is empty")
	}
	if !in.Category.Valid() {
		in.Category = music.CategoryCustom
	}
	if in.Source != music.SourceManual {
		in.Source = music.SourceAuto
	}
	in.Confidence = min(max(in.Confidence, 0), 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(upsertTagQuery),
		in.SubjectID, string(in.SubjectKind), in.SubjectName, in.Text,
		string(in.Category), in.Confidence, string(in.Source), nanos(time.Now()))
	tag, err := scanTag(row)
	if err != nil {
		return Tag{}, dbError("upserting tag", err)
	}
	return tag, nil
}

// QueryBySubject returns every tag on a subject, highest confidence first.
func (s *Store) QueryBySubject(ctx context.Context, subjectID string, kind music.SubjectKind) ([]Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM tags
		WHERE subject_id = ? AND subject_kind = ?
		ORDER BY confidence DESC, tag`
	return s.queryTags(ctx, "querying tags by subject", query, subjectID, string(kind))
}

// TaggedSubject is a subject found by QueryByTag with the tag that matched.
type TaggedSubject struct {
	SubjectID   string
	SubjectKind music.SubjectKind
	SubjectName string
	Tag         Tag
}

// QueryByTag returns the subjects carrying text, most recently tagged first.
// A nil category matches any category.
func (s *Store) QueryByTag(ctx context.Context, text string, category *music.TagCategory) ([]TaggedSubject, error) {
	query := `SELECT ` + tagColumns + ` FROM tags WHERE tag = ?`
	args := []any{NormalizeTagText(text)}
	if category != nil {
		query += ` AND category = ?`
		args = append(args, string(*category))
	}
	query += ` ORDER BY tagged_at DESC, id DESC`

	tags, err := s.queryTags(ctx, "querying tags by text", query, args...)
	if err != nil {
		return nil, err
	}

	out := make([]TaggedSubject, len(tags))
	for i, t := range tags {
		out[i] = TaggedSubject{
			SubjectID:   t.SubjectID,
			SubjectKind: t.SubjectKind,
			SubjectName: t.SubjectName,
			Tag:         t,
		}
	}
	return out, nil
}

// TagTexts returns the distinct tag texts in a category, sorted.
func (s *Store) TagTexts(ctx context.Context, category music.TagCategory) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT DISTINCT tag FROM tags WHERE category = ? ORDER BY tag`),
		string(category))
	if err != nil {
		return nil, dbError("listing tag texts", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, dbError("scanning tag text", err)
		}
		texts = append(texts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("listing tag texts", err)
	}
	return texts, nil
}

func (s *Store) queryTags(ctx context.Context, op, query string, args ...any) ([]Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, dbError(op, err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, dbError(op, err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(op, err)
	}
	return tags, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTag(r rowScanner) (Tag, error) {
	var (
		t                      Tag
		kind, category, source string
		taggedAt               int64
	)
	if err := r.Scan(&t.ID, &t.SubjectID, &kind, &t.SubjectName, &t.Text,
		&category, &t.Confidence, &source, &taggedAt); err != nil {
		return Tag{}, err
	}
	t.SubjectKind = music.SubjectKind(kind)
	t.Category = music.TagCategory(category)
	t.Source = music.TagSource(source)
	t.TaggedAt = fromNanos(taggedAt)
	return t, nil
}
