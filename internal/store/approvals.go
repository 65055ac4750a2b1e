package store

import (
	"context"
	"fmt"

	"github.com/crewsight/foreman/internal/approval"
)

// AppendApproval implements approval.AuditLog: every terminal approval lands
// in the audit table with the reviewer's identity and final text.
func (s *Store) AppendApproval(ctx context.Context, action approval.FinalAction) error {
	finalText := ""
	if action.Deliver() {
		finalText = action.Text
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO approval_audit (id, contact, draft, final_text, analysis, decision, resolved_by, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		action.Approval.ID, action.Contact, action.Approval.Draft, finalText,
		action.Approval.Analysis, string(action.Decision), action.ResolvedBy,
		action.Approval.CreatedAt, action.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("insert approval audit: %w", err)
	}
	return nil
}

// AuditEntry is one row of the approval audit trail.
type AuditEntry struct {
	Contact    string `json:"contact"`
	Draft      string `json:"draft"`
	FinalText  string `json:"final_text"`
	Decision   string `json:"decision"`
	ResolvedBy string `json:"resolved_by"`
}

// RecentApprovals returns the latest audit entries, newest first.
func (s *Store) RecentApprovals(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT contact, draft, final_text, decision, resolved_by
		FROM approval_audit
		ORDER BY resolved_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query approval audit: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.Contact, &e.Draft, &e.FinalText, &e.Decision, &e.ResolvedBy); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return out, nil
}
