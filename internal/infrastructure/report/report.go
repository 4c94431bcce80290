// Package report renders approval history and grant lists as xlsx workbooks.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// Sheet names
const (
	SheetSummary   = "Summary"
	SheetDecisions = "Decisions"
	SheetGrants    = "Grants"
)

const timeLayout = "2006-01-02 15:04:05"

// Exporter writes workbooks to an io.Writer
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a new report exporter
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// ApprovalHistory writes a two-sheet workbook: instance summary with the
// stage snapshot, and the decision log in commit order
func (e *Exporter) ApprovalHistory(w io.Writer, inst *entity.ApprovalInstance) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	completed := ""
	if inst.CompletedAt != nil {
		completed = formatTime(*inst.CompletedAt)
	}

	summary := [][]interface{}{
		{"Instance", inst.ID},
		{"Document", inst.DocumentID},
		{"Workflow", inst.WorkflowID},
		{"Workflow version", inst.WorkflowVersion},
		{"Submitted by", inst.SubmittedBy},
		{"Submitted at", formatTime(inst.SubmittedAt)},
		{"Status", string(inst.Status)},
		{"Current stage", inst.CurrentStage + 1},
		{"Completed at", completed},
		{},
		{"Stage", "Name", "Approvers", "Require all"},
	}
	for i, s := range inst.Stages {
		summary = append(summary, []interface{}{i + 1, s.Name, strings.Join(s.Approvers, ", "), s.RequireAll})
	}
	if err := writeRows(file, SheetSummary, summary); err != nil {
		return err
	}

	if _, err := file.NewSheet(SheetDecisions); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	rows := [][]interface{}{{"#", "Stage", "Stage name", "Approver", "Outcome", "Comment", "Decided at"}}
	for i, d := range inst.Decisions {
		stageName := ""
		if d.StageIndex >= 0 && d.StageIndex < len(inst.Stages) {
			stageName = inst.Stages[d.StageIndex].Name
		}
		rows = append(rows, []interface{}{
			i + 1,
			d.StageIndex + 1,
			stageName,
			d.ApproverID,
			string(d.Outcome),
			d.Comment,
			formatTime(d.DecidedAt),
		})
	}
	if err := writeRows(file, SheetDecisions, rows); err != nil {
		return err
	}
	if err := boldRow(file, SheetDecisions, 1, 7); err != nil {
		return err
	}

	if err := file.Write(w); err != nil {
		e.logger.Error("Failed to write approval history workbook", zap.String("instance_id", inst.ID), zap.Error(err))
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Debug("Approval history exported",
		zap.String("instance_id", inst.ID),
		zap.Int("decisions", len(inst.Decisions)))
	return nil
}

// Grants writes the active grants of one document
func (e *Exporter) Grants(w io.Writer, documentID string, grants []*entity.Grant) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", SheetGrants); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	rows := [][]interface{}{{"Document", "User", "Permission", "Granted by", "Granted at", "Expires at"}}
	for _, g := range grants {
		expires := "never"
		if g.ExpiresAt != nil {
			expires = formatTime(*g.ExpiresAt)
		}
		rows = append(rows, []interface{}{
			documentID,
			g.UserID,
			string(g.Type),
			g.GrantedBy,
			formatTime(g.GrantedAt),
			expires,
		})
	}
	if err := writeRows(file, SheetGrants, rows); err != nil {
		return err
	}
	if err := boldRow(file, SheetGrants, 1, 6); err != nil {
		return err
	}

	if err := file.Write(w); err != nil {
		e.logger.Error("Failed to write grants workbook", zap.String("document_id", documentID), zap.Error(err))
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRows(file *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := file.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+1, sheet, err)
		}
	}
	return file.SetColWidth(sheet, "A", "G", 20)
}

func boldRow(file *excelize.File, sheet string, row, cols int) error {
	style, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(cols, row)
	return file.SetCellStyle(sheet, first, last, style)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
