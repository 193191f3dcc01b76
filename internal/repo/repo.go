package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"moveline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const estimateColumns = `id,request_id,status,phone,completion_rate,schema_json,created_at,updated_at,submitted_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEstimate(row scanner) (domain.Estimate, error) {
	var (
		e         domain.Estimate
		phone     sql.NullString
		submitted sql.NullString
		payload   string
	)
	err := row.Scan(&e.ID, &e.RequestID, &e.Status, &phone, &e.CompletionRate, &payload, &e.CreatedAt, &e.UpdatedAt, &submitted)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if phone.Valid {
		e.Phone = &phone.String
	}
	if submitted.Valid {
		e.SubmittedAt = &submitted.String
	}
	if err := json.Unmarshal([]byte(payload), &e.Schema); err != nil {
		return e, fmt.Errorf("decode estimate %s: %w", e.ID, err)
	}
	return e, nil
}

func (r Repo) InsertEstimate(ctx context.Context, tx *sql.Tx, e domain.Estimate) error {
	payload, err := json.Marshal(e.Schema)
	if err != nil {
		return fmt.Errorf("encode estimate: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO estimates(`+estimateColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.RequestID, e.Status, nullableStringPtr(e.Phone), e.CompletionRate, string(payload), e.CreatedAt, e.UpdatedAt, nullableStringPtr(e.SubmittedAt))
	return err
}

func (r Repo) UpdateEstimate(ctx context.Context, tx *sql.Tx, e domain.Estimate) error {
	payload, err := json.Marshal(e.Schema)
	if err != nil {
		return fmt.Errorf("encode estimate: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE estimates SET request_id=?,status=?,phone=?,completion_rate=?,schema_json=?,updated_at=?,submitted_at=? WHERE id=?`,
		e.RequestID, e.Status, nullableStringPtr(e.Phone), e.CompletionRate, string(payload), e.UpdatedAt, nullableStringPtr(e.SubmittedAt), e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetEstimate(ctx context.Context, id string) (domain.Estimate, error) {
	return scanEstimate(r.DB.QueryRowContext(ctx, `SELECT `+estimateColumns+` FROM estimates WHERE id=?`, id))
}

func (r Repo) GetEstimateTx(ctx context.Context, tx *sql.Tx, id string) (domain.Estimate, error) {
	return scanEstimate(tx.QueryRowContext(ctx, `SELECT `+estimateColumns+` FROM estimates WHERE id=?`, id))
}

// ListEstimates returns estimates newest first.
func (r Repo) ListEstimates(ctx context.Context, f domain.EstimateFilter) ([]domain.Estimate, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + estimateColumns + ` FROM estimates WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY updated_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Estimate
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) CountEstimatesByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM estimates GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		res[status] = n
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
