package compliance

import (
	"context"
	"database/sql"

	"compliance-engine/internal/models"
)

// AllocationSource lists allocations with facilitator and manager resolved.
type AllocationSource interface {
	ActiveAllocations(ctx context.Context) ([]models.Allocation, error)
}

// ComplianceRecords answers whether a facilitator filed the weekly record.
type ComplianceRecords interface {
	HasActiveRecord(ctx context.Context, allocationID string, weekNumber int) (bool, error)
}

const activeAllocationsSQL = `SELECT a.id, COALESCE(m.name, ''), COALESCE(co.name, ''), COALESCE(cl.name, ''),
	f.id, f.name, COALESCE(f.email, ''),
	mg.id, mg.name, mg.email
	FROM allocations a
	JOIN facilitators f ON f.id = a.facilitator_id
	LEFT JOIN modules m ON m.id = a.module_id
	LEFT JOIN cohorts co ON co.id = a.cohort_id
	LEFT JOIN classes cl ON cl.id = a.class_id
	LEFT JOIN managers mg ON mg.id = f.manager_id
	WHERE a.is_active = TRUE
	ORDER BY a.id`

// PostgresAllocations reads the course-allocation tables owned by the CRUD
// service. It never writes.
type PostgresAllocations struct {
	db *sql.DB
}

func NewPostgresAllocations(db *sql.DB) *PostgresAllocations {
	return &PostgresAllocations{db: db}
}

func (p *PostgresAllocations) ActiveAllocations(ctx context.Context) ([]models.Allocation, error) {
	rows, err := p.db.QueryContext(ctx, activeAllocationsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Allocation
	for rows.Next() {
		var (
			a                        models.Allocation
			mgrID, mgrName, mgrEmail sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.ModuleName, &a.CohortName, &a.ClassName,
			&a.Facilitator.ID, &a.Facilitator.Name, &a.Facilitator.Email,
			&mgrID, &mgrName, &mgrEmail); err != nil {
			return nil, err
		}
		if mgrID.Valid {
			a.Manager = &models.Person{ID: mgrID.String, Name: mgrName.String, Email: mgrEmail.String}
		}
		a.IsActive = true
		out = append(out, a)
	}
	return out, rows.Err()
}

// PostgresRecords checks the activity_trackers table.
type PostgresRecords struct {
	db *sql.DB
}

func NewPostgresRecords(db *sql.DB) *PostgresRecords {
	return &PostgresRecords{db: db}
}

func (p *PostgresRecords) HasActiveRecord(ctx context.Context, allocationID string, weekNumber int) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM activity_trackers WHERE allocation_id = $1 AND week_number = $2 AND is_active = TRUE)`,
		allocationID, weekNumber).Scan(&exists)
	return exists, err
}
