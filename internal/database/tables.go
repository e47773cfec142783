package database

import (
	"context"

	"github.com/google/uuid"
)

const tableColumns = `id, name, status, updated_at`

func scanTable(row interface{ Scan(dest ...any) error }) (DiningTable, error) {
	var t DiningTable
	err := row.Scan(&t.ID, &t.Name, &t.Status, &t.UpdatedAt)
	return t, err
}

const getTable = `SELECT ` + tableColumns + ` FROM tables WHERE id = $1`

func (q *Queries) GetTable(ctx context.Context, id uuid.UUID) (DiningTable, error) {
	return scanTable(q.db.QueryRow(ctx, getTable, id))
}

const listTables = `SELECT ` + tableColumns + ` FROM tables ORDER BY name ASC`

func (q *Queries) ListTables(ctx context.Context) ([]DiningTable, error) {
	rows, err := q.db.Query(ctx, listTables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []DiningTable
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

const updateTableStatus = `UPDATE tables
SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + tableColumns

func (q *Queries) UpdateTableStatus(ctx context.Context, id uuid.UUID, status TableStatus) (DiningTable, error) {
	return scanTable(q.db.QueryRow(ctx, updateTableStatus, id, status))
}
