package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mutation is one journaled outline change and how the CLI answered it.
type Mutation struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"`
	NodeID       string        `json:"node_id,omitempty"`
	RemoteID     string        `json:"remote_id,omitempty"`
	ParentID     string        `json:"parent_id,omitempty"`
	Name         string        `json:"name,omitempty"`
	Route        string        `json:"route,omitempty"`
	Patched      bool          `json:"patched"`
	Succeeded    bool          `json:"succeeded"`
	Error        string        `json:"error,omitempty"`
	RefreshError string        `json:"refresh_error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
}

type CreateMutationInput struct {
	ID           string
	Kind         string
	NodeID       string
	RemoteID     string
	ParentID     string
	Name         string
	Route        string
	Patched      bool
	Succeeded    bool
	Error        string
	RefreshError string
	StartedAt    time.Time
	Duration     time.Duration
}

type ListMutationsInput struct {
	Kind       string
	NodeID     string
	FailedOnly bool
	Limit      int
}

func (s *Store) CreateMutation(ctx context.Context, input CreateMutationInput) (Mutation, error) {
	record := Mutation{
		ID:           strings.TrimSpace(input.ID),
		Kind:         strings.ToLower(strings.TrimSpace(input.Kind)),
		NodeID:       strings.TrimSpace(input.NodeID),
		RemoteID:     strings.TrimSpace(input.RemoteID),
		ParentID:     strings.TrimSpace(input.ParentID),
		Name:         input.Name,
		Route:        strings.TrimSpace(input.Route),
		Patched:      input.Patched,
		Succeeded:    input.Succeeded,
		Error:        strings.TrimSpace(input.Error),
		RefreshError: strings.TrimSpace(input.RefreshError),
		StartedAt:    input.StartedAt.UTC(),
		Duration:     input.Duration,
	}
	if record.ID == "" {
		record.ID = "mut_" + uuid.NewString()
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now().UTC()
	}
	if record.Kind == "" {
		return Mutation{}, fmt.Errorf("missing mutation kind")
	}

	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO mutations (
			id, kind, node_id, remote_id, parent_id, name, route, patched, succeeded, error, refresh_error, started_at_ms, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Kind,
		nullIfEmpty(record.NodeID),
		nullIfEmpty(record.RemoteID),
		nullIfEmpty(record.ParentID),
		nullIfEmpty(record.Name),
		nullIfEmpty(record.Route),
		boolToInt(record.Patched),
		boolToInt(record.Succeeded),
		nullIfEmpty(record.Error),
		nullIfEmpty(record.RefreshError),
		record.StartedAt.UnixMilli(),
		record.Duration.Milliseconds(),
	); err != nil {
		return Mutation{}, fmt.Errorf("insert mutation: %w", err)
	}
	return record, nil
}

func (s *Store) ListMutations(ctx context.Context, input ListMutationsInput) ([]Mutation, error) {
	limit := input.Limit
	if limit < 1 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	whereParts := []string{"1=1"}
	args := make([]any, 0, 4)
	if kind := strings.ToLower(strings.TrimSpace(input.Kind)); kind != "" {
		whereParts = append(whereParts, "kind = ?")
		args = append(args, kind)
	}
	if nodeID := strings.TrimSpace(input.NodeID); nodeID != "" {
		whereParts = append(whereParts, "(node_id = ? OR remote_id = ?)")
		args = append(args, nodeID, nodeID)
	}
	if input.FailedOnly {
		whereParts = append(whereParts, "succeeded = 0")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, kind, COALESCE(node_id, ''), COALESCE(remote_id, ''), COALESCE(parent_id, ''), COALESCE(name, ''), COALESCE(route, ''),
		        patched, succeeded, COALESCE(error, ''), COALESCE(refresh_error, ''), started_at_ms, duration_ms
		 FROM mutations
		 WHERE `+strings.Join(whereParts, " AND ")+`
		 ORDER BY started_at_ms DESC, rowid DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	items := make([]Mutation, 0, limit)
	for rows.Next() {
		var item Mutation
		var patched, succeeded int
		var startedAtMillis, durationMillis int64
		if err := rows.Scan(
			&item.ID,
			&item.Kind,
			&item.NodeID,
			&item.RemoteID,
			&item.ParentID,
			&item.Name,
			&item.Route,
			&patched,
			&succeeded,
			&item.Error,
			&item.RefreshError,
			&startedAtMillis,
			&durationMillis,
		); err != nil {
			return nil, err
		}
		item.Patched = patched == 1
		item.Succeeded = succeeded == 1
		item.StartedAt = time.UnixMilli(startedAtMillis).UTC()
		item.Duration = time.Duration(durationMillis) * time.Millisecond
		items = append(items, item)
	}
	return items, rows.Err()
}
