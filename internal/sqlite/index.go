// File path: internal/sqlite/index.go
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/auditkit/sopcheck/internal/common/telemetry"
	"github.com/auditkit/sopcheck/internal/compliance"
	"github.com/auditkit/sopcheck/internal/vector"
)

// Clause row states. The embedding state is transient within a run; a crash
// mid-embedding leaves the row pending and a later run retries it, since the
// skip fast path only honours indexed rows.
const (
	StatePending = "pending"
	StateIndexed = "indexed"
	StateFailed  = "failed"
)

type clauseRow struct {
	ID               string         `db:"id"`
	SourceDocumentID string         `db:"source_document_id"`
	SectionReference sql.NullString `db:"section_reference"`
	Text             string         `db:"text"`
	Vector           []byte         `db:"vector"`
	State            string         `db:"state"`
	Detail           sql.NullString `db:"detail"`
}

// Exists reports whether the clause id is already indexed. Pending and
// failed rows do not count: only indexed clauses are skippable.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM clauses WHERE id = ? AND state = ?`, id, StateIndexed)
	if err != nil {
		return false, compliance.IndexErrorf("exists %s: %v", id, err)
	}
	return count > 0, nil
}

// Stage records clauses in the pending state before their embeddings are
// requested, so the catalog reflects every clause the extractor produced
// even when indexing later fails.
func (s *Store) Stage(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return compliance.IndexErrorf("stage begin: %v", err)
	}
	const stmt = `INSERT INTO clauses (id, source_document_id, section_reference, text, state)
                VALUES (?, ?, ?, ?, ?)
                ON CONFLICT(id) DO NOTHING`
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, stmt,
			rec.ID, rec.Metadata["source"], rec.Metadata["section"], rec.Text, StatePending); err != nil {
			tx.Rollback()
			return compliance.IndexErrorf("stage %s: %v", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return compliance.IndexErrorf("stage commit: %v", err)
	}
	return nil
}

// Upsert persists embedded clauses and marks them indexed. An id that is
// already indexed is overwritten with identical content, so concurrent
// duplicate upserts are harmless.
func (s *Store) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return compliance.IndexErrorf("upsert begin: %v", err)
	}
	const stmt = `INSERT INTO clauses (id, source_document_id, section_reference, text, vector, state, detail, updated_at)
                VALUES (?, ?, ?, ?, ?, ?, NULL, CURRENT_TIMESTAMP)
                ON CONFLICT(id) DO UPDATE SET
                        vector = excluded.vector,
                        state = excluded.state,
                        detail = NULL,
                        updated_at = CURRENT_TIMESTAMP`
	for _, rec := range records {
		if len(rec.Vector) == 0 {
			tx.Rollback()
			return compliance.IndexErrorf("upsert %s: empty vector", rec.ID)
		}
		if _, err := tx.ExecContext(ctx, stmt,
			rec.ID, rec.Metadata["source"], rec.Metadata["section"], rec.Text,
			encodeVector(rec.Vector), StateIndexed); err != nil {
			tx.Rollback()
			return compliance.IndexErrorf("upsert %s: %v", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return compliance.IndexErrorf("upsert commit: %v", err)
	}
	return nil
}

// MarkFailed records a terminal embedding failure for this run. Failed rows
// are excluded from retrieval; a future full run retries them because the
// skip fast path ignores non-indexed states.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE clauses SET state = ?, detail = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		StateFailed, reason, id)
	if err != nil {
		return compliance.IndexErrorf("mark failed %s: %v", id, err)
	}
	return nil
}

// Search ranks all indexed clauses by cosine similarity against vec. The
// corpus is small (tens of documents), so an in-process scan is the whole
// index. Ties break by clause id ascending for run-to-run determinism.
func (s *Store) Search(ctx context.Context, vec []float32, limit int) ([]vector.Match, error) {
	if limit <= 0 {
		limit = 5
	}
	start := time.Now()
	var rows []clauseRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, source_document_id, section_reference, text, vector, state, detail
                 FROM clauses WHERE state = ?`, StateIndexed)
	telemetry.RecordSearch(time.Since(start))
	if err != nil {
		return nil, compliance.IndexErrorf("search: %v", err)
	}
	matches := make([]vector.Match, 0, len(rows))
	for _, row := range rows {
		stored, err := decodeVector(row.Vector)
		if err != nil {
			return nil, compliance.IndexErrorf("decode vector %s: %v", row.ID, err)
		}
		matches = append(matches, vector.Match{
			ID:    row.ID,
			Score: vector.Cosine(vec, stored),
			Text:  row.Text,
			Metadata: map[string]string{
				"source":  row.SourceDocumentID,
				"section": row.SectionReference.String,
			},
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Count returns the number of indexed clauses.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM clauses WHERE state = ?`, StateIndexed); err != nil {
		return 0, compliance.IndexErrorf("count: %v", err)
	}
	return count, nil
}

// FailedClauses lists ids and reasons for clauses whose embedding failed, so
// the report can surface them as indexing warnings.
func (s *Store) FailedClauses(ctx context.Context) (map[string]string, error) {
	var rows []clauseRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, source_document_id, section_reference, text, vector, state, detail
                 FROM clauses WHERE state = ?`, StateFailed)
	if err != nil {
		return nil, compliance.IndexErrorf("failed clauses: %v", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.ID] = row.Detail.String
	}
	return out, nil
}

// RecordRun inserts an audit row for a starting run.
func (s *Store) RecordRun(ctx context.Context, id, mode string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, status) VALUES (?, ?, 'running')
                 ON CONFLICT(id) DO NOTHING`, id, mode)
	if err != nil {
		return compliance.IndexErrorf("record run: %v", err)
	}
	return nil
}

// FinishRun closes the audit row, storing the rendered report JSON on
// success or the error text on failure.
func (s *Store) FinishRun(ctx context.Context, id, status, errText, reportJSON string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = NULLIF(?, ''), report = NULLIF(?, ''),
                        finished_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, errText, reportJSON, id)
	if err != nil {
		return compliance.IndexErrorf("finish run: %v", err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, errors.New("vector blob length not a multiple of 4")
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

var (
	_ vector.Store      = (*Store)(nil)
	_ vector.StateStore = (*Store)(nil)
)
