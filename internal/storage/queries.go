package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the SQL statements of the store. It runs against either the
// connection or an open transaction.
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Row types mirror the tables one to one.
type (
	Transaction struct {
		ID          int64
		AmountCents int64
		Type        string
		Category    string
		Date        int64
		Note        sql.NullString
	}

	RecurringTemplate struct {
		ID          int64
		Name        string
		AmountCents int64
		Type        string
		Category    string
		PeriodType  string
		PeriodDay   sql.NullInt64
		Note        sql.NullString
		Enabled     bool
		CreatedAt   int64
		UpdatedAt   int64
	}

	RecurringLink struct {
		ID            int64
		TemplateID    int64
		TransactionID int64
		TargetDate    int64
		CreatedAt     int64
	}

	CategoryTotalRow struct {
		Category    string
		TotalAmount int64
		Count       int64
	}

	InsertTransactionParams struct {
		AmountCents int64
		Type        string
		Category    string
		Date        int64
		Note        sql.NullString
	}

	InsertTemplateParams struct {
		Name        string
		AmountCents int64
		Type        string
		Category    string
		PeriodType  string
		PeriodDay   sql.NullInt64
		Note        sql.NullString
		Enabled     bool
		CreatedAt   int64
	}

	InsertLinkParams struct {
		TemplateID    int64
		TransactionID int64
		TargetDate    int64
		CreatedAt     int64
	}

	// assignment is one "column = ?" pair of a partial update.
	assignment struct {
		column string
		value  any
	}
)

const transactionColumns = "id, amount_cents, type, category, date, note"

const templateColumns = "id, name, amount_cents, type, category, period_type, period_day, note, enabled, created_at, updated_at"

const linkColumns = "id, template_id, transaction_id, target_date, created_at"

const insertTransaction = `INSERT INTO transactions (amount_cents, type, category, date, note) VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertTransaction, arg.AmountCents, arg.Type, arg.Category, arg.Date, arg.Note)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	return err
}

func (q *Queries) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	var t Transaction
	err := row.Scan(&t.ID, &t.AmountCents, &t.Type, &t.Category, &t.Date, &t.Note)
	return t, err
}

func (q *Queries) ListTransactionsByRange(ctx context.Context, start, end int64) ([]Transaction, error) {
	return q.listTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE date >= ? AND date <= ? ORDER BY date DESC, id DESC`,
		start, end)
}

func (q *Queries) ListTransactions(ctx context.Context) ([]Transaction, error) {
	return q.listTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY date DESC, id DESC`)
}

func (q *Queries) listTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.AmountCents, &t.Type, &t.Category, &t.Date, &t.Note); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (q *Queries) SumAmountByType(ctx context.Context, typ string, start, end int64) (int64, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE type = ? AND date >= ? AND date <= ?`,
		typ, start, end)
	var total int64
	err := row.Scan(&total)
	return total, err
}

func (q *Queries) CategoryTotals(ctx context.Context, typ string, start, end int64) ([]CategoryTotalRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT category, SUM(amount_cents) AS total, COUNT(*) AS cnt
		FROM transactions
		WHERE type = ? AND date >= ? AND date <= ?
		GROUP BY category
		ORDER BY total DESC`,
		typ, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CategoryTotalRow
	for rows.Next() {
		var c CategoryTotalRow
		if err := rows.Scan(&c.Category, &c.TotalAmount, &c.Count); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (q *Queries) InsertTemplate(ctx context.Context, arg InsertTemplateParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO recurring_templates
			(name, amount_cents, type, category, period_type, period_day, note, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.Name, arg.AmountCents, arg.Type, arg.Category, arg.PeriodType, arg.PeriodDay,
		arg.Note, arg.Enabled, arg.CreatedAt, arg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) GetTemplate(ctx context.Context, id int64) (RecurringTemplate, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM recurring_templates WHERE id = ?`, id)
	return scanTemplate(row)
}

func (q *Queries) ListTemplates(ctx context.Context) ([]RecurringTemplate, error) {
	return q.listTemplates(ctx, `SELECT `+templateColumns+` FROM recurring_templates ORDER BY created_at DESC, id DESC`)
}

func (q *Queries) ListTemplatesByType(ctx context.Context, typ string) ([]RecurringTemplate, error) {
	return q.listTemplates(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates WHERE type = ? ORDER BY created_at DESC, id DESC`, typ)
}

func (q *Queries) ListEnabledTemplates(ctx context.Context) ([]RecurringTemplate, error) {
	return q.listTemplates(ctx, `SELECT `+templateColumns+` FROM recurring_templates WHERE enabled = 1 ORDER BY id ASC`)
}

func (q *Queries) listTemplates(ctx context.Context, query string, args ...any) ([]RecurringTemplate, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(s scanner) (RecurringTemplate, error) {
	var t RecurringTemplate
	err := s.Scan(&t.ID, &t.Name, &t.AmountCents, &t.Type, &t.Category, &t.PeriodType,
		&t.PeriodDay, &t.Note, &t.Enabled, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (q *Queries) DeleteTemplate(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM recurring_templates WHERE id = ?`, id)
	return err
}

func (q *Queries) InsertLink(ctx context.Context, arg InsertLinkParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO recurring_links (template_id, transaction_id, target_date, created_at) VALUES (?, ?, ?, ?)`,
		arg.TemplateID, arg.TransactionID, arg.TargetDate, arg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) GetLinkForDate(ctx context.Context, templateID, targetDate int64) (RecurringLink, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM recurring_links WHERE template_id = ? AND target_date = ?`,
		templateID, targetDate)
	var l RecurringLink
	err := row.Scan(&l.ID, &l.TemplateID, &l.TransactionID, &l.TargetDate, &l.CreatedAt)
	return l, err
}

func (q *Queries) ListLinksByTemplate(ctx context.Context, templateID int64) ([]RecurringLink, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM recurring_links WHERE template_id = ? ORDER BY target_date DESC`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RecurringLink
	for rows.Next() {
		var l RecurringLink
		if err := rows.Scan(&l.ID, &l.TemplateID, &l.TransactionID, &l.TargetDate, &l.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

func (q *Queries) DeleteLinksByTransaction(ctx context.Context, transactionID int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM recurring_links WHERE transaction_id = ?`, transactionID)
	return err
}

func (q *Queries) DeleteLinksByTemplate(ctx context.Context, templateID int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM recurring_links WHERE template_id = ?`, templateID)
	return err
}

// updateByID applies a partial update. table and columns come from this
// package only, never from callers.
func (q *Queries) updateByID(ctx context.Context, table string, id int64, set []assignment) error {
	if len(set) == 0 {
		return nil
	}
	clauses := make([]string, len(set))
	args := make([]any, 0, len(set)+1)
	for i, a := range set {
		clauses[i] = a.column + " = ?"
		args = append(args, a.value)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(clauses, ", "))
	_, err := q.db.ExecContext(ctx, query, args...)
	return err
}
