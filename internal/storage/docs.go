package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveContextDoc inserts an ingested document.
func (s *Store) SaveContextDoc(doc ContextDoc) error {
	vectorIDs := doc.VectorIDs
	if vectorIDs == "" {
		vectorIDs = "[]"
	}
	tags := doc.Tags
	if tags == "" {
		tags = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO context_docs (id, title, content, source, tags, created_at, vector_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Content, doc.Source, tags,
		doc.CreatedAt.UTC().Format(time.RFC3339), vectorIDs,
	)
	return err
}

// GetContextDoc returns a document by ID. Returns ErrNotFound if absent.
func (s *Store) GetContextDoc(id string) (ContextDoc, error) {
	var d ContextDoc
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, title, content, source, tags, created_at, vector_ids
		FROM context_docs WHERE id = ?`, id,
	).Scan(&d.ID, &d.Title, &d.Content, &d.Source, &d.Tags, &createdAt, &d.VectorIDs)
	if err == sql.ErrNoRows {
		return ContextDoc{}, ErrNotFound
	}
	if err != nil {
		return ContextDoc{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return ContextDoc{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}

// ListContextDocs returns the most recently ingested documents.
func (s *Store) ListContextDocs(limit int) ([]ContextDoc, error) {
	rows, err := s.db.Query(`
		SELECT id, title, content, source, tags, created_at, vector_ids
		FROM context_docs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ContextDoc
	for rows.Next() {
		var d ContextDoc
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.Source, &d.Tags, &createdAt, &d.VectorIDs); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		d.CreatedAt = t
		results = append(results, d)
	}
	return results, rows.Err()
}

// UpdateContextDocVectorIDs records the vector rows produced for a document.
func (s *Store) UpdateContextDocVectorIDs(id, vectorIDsJSON string) error {
	res, err := s.db.Exec("UPDATE context_docs SET vector_ids = ? WHERE id = ?", vectorIDsJSON, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteContextDoc removes a document. Returns ErrNotFound if absent.
// Vector rows are removed separately by the caller.
func (s *Store) DeleteContextDoc(id string) error {
	res, err := s.db.Exec("DELETE FROM context_docs WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
