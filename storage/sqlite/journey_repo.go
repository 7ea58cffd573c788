package sqlite

import (
	"context"
	"database/sql"

	"taxicoin/pkg/logger"
	"taxicoin/pkg/models"
)

type journeyRepo struct {
	db  *sql.DB
	log logger.ILogger
}

func (r *journeyRepo) Record(ctx context.Context, rec *models.JourneyRecord) error {
	query := `
		INSERT INTO journeys (role, counterpart, fare, rating, completed_at)
		VALUES (?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.Role,
		rec.Counterpart,
		rec.Fare,
		rec.Rating,
		rec.CompletedAt,
	)
	if err != nil {
		r.log.Error("failed to record journey", logger.Error(err))
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

func (r *journeyRepo) List(ctx context.Context) ([]*models.JourneyRecord, error) {
	query := `
		SELECT id, role, counterpart, fare, rating, completed_at
		FROM journeys
		ORDER BY completed_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.log.Error("failed to list journeys", logger.Error(err))
		return nil, err
	}
	defer rows.Close()

	var records []*models.JourneyRecord
	for rows.Next() {
		rec := &models.JourneyRecord{}
		if err := rows.Scan(&rec.ID, &rec.Role, &rec.Counterpart, &rec.Fare, &rec.Rating, &rec.CompletedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
