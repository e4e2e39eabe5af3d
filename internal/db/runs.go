package db

import (
	"context"
	"time"

	"github.com/yourorg/avail-checker/internal/types"
)

// RunRecord is one row of check_run.
type RunRecord struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Available  int        `json:"available"`
	ExportURI  *string    `json:"exportUri,omitempty"`
	Error      *string    `json:"error,omitempty"`
}

type RunRepository interface {
	Start(ctx context.Context, id string, startedAt time.Time) error
	// Finish records the terminal state; it inserts the row if Start never landed.
	Finish(ctx context.Context, sum types.RunSummary, exportURI string) error
	Get(ctx context.Context, id string) (RunRecord, error)
	ListRecent(ctx context.Context, limit int) ([]RunRecord, error)
}

func NewRunRepo(p *Pool) RunRepository { return &runRepo{p: p} }

type runRepo struct{ p *Pool }

const runColumns = `id::text, status, started_at, finished_at, total, processed, available, export_uri, error`

func (r *runRepo) Start(ctx context.Context, id string, startedAt time.Time) error {
	const q = `insert into check_run (id, status, started_at) values ($1, 'running', $2)`
	_, err := r.p.Exec(ctx, q, id, startedAt)
	return mapPgErr(err)
}

func (r *runRepo) Finish(ctx context.Context, sum types.RunSummary, exportURI string) error {
	const q = `insert into check_run (id, status, started_at, finished_at, total, processed, available, export_uri, error)
               values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
               on conflict (id) do update set
                 status=excluded.status, finished_at=excluded.finished_at, total=excluded.total,
                 processed=excluded.processed, available=excluded.available,
                 export_uri=excluded.export_uri, error=excluded.error`
	var errMsg *string
	if sum.Err != nil {
		s := sum.Err.Error()
		errMsg = &s
	}
	var uri *string
	if exportURI != "" {
		uri = &exportURI
	}
	_, err := r.p.Exec(ctx, q, sum.ID, string(sum.Status), sum.StartedAt, sum.FinishedAt,
		sum.Total, sum.Processed, len(sum.Available), uri, errMsg)
	return mapPgErr(err)
}

func (r *runRepo) Get(ctx context.Context, id string) (RunRecord, error) {
	q := `select ` + runColumns + ` from check_run where id=$1`
	var rec RunRecord
	err := r.p.QueryRow(ctx, q, id).Scan(&rec.ID, &rec.Status, &rec.StartedAt, &rec.FinishedAt,
		&rec.Total, &rec.Processed, &rec.Available, &rec.ExportURI, &rec.Error)
	if err != nil {
		return RunRecord{}, mapRowErr(err)
	}
	return rec, nil
}

func (r *runRepo) ListRecent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := `select ` + runColumns + ` from check_run order by started_at desc limit $1`
	rows, err := r.p.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.Status, &rec.StartedAt, &rec.FinishedAt,
			&rec.Total, &rec.Processed, &rec.Available, &rec.ExportURI, &rec.Error); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
