package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportXLSX:
		return ExportXLSX, nil
	default:
		return "", invalid("format must be csv or xlsx")
	}
}

func (f ExportFormat) ContentType() string {
	if f == ExportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Table is a dataset ready to be written as a sheet.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

type ExportService struct {
	DB *gorm.DB
}

func NewExportService(db *gorm.DB) *ExportService {
	return &ExportService{DB: db}
}

func (s *ExportService) UsersTable(ctx context.Context) (Table, error) {
	var users []models.User
	if err := s.DB.WithContext(ctx).Order("created_at ASC").Find(&users).Error; err != nil {
		return Table{}, fmt.Errorf("load users: %w", err)
	}

	table := Table{
		Name:   "users",
		Header: []string{"ID", "Name", "Email", "Role", "Active", "Deactivation Reason", "Drive Folder", "Created At"},
	}
	for _, u := range users {
		table.Rows = append(table.Rows, []string{
			u.ID.String(),
			u.Name,
			u.Email,
			string(u.Role),
			fmt.Sprintf("%t", u.Active),
			derefString(u.DeactivationReason),
			derefString(u.DriveFolderURL),
			u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return table, nil
}

func (s *ExportService) RequestsTable(ctx context.Context) (Table, error) {
	var requests []models.Request
	if err := s.DB.WithContext(ctx).Preload("User").Order("created_at ASC").Find(&requests).Error; err != nil {
		return Table{}, fmt.Errorf("load requests: %w", err)
	}

	table := Table{
		Name:   "requests",
		Header: []string{"ID", "User Email", "Description", "Reference Links", "Status", "Read", "Created At", "Updated At"},
	}
	for _, r := range requests {
		email := ""
		if r.User != nil {
			email = r.User.Email
		}
		table.Rows = append(table.Rows, []string{
			r.ID.String(),
			email,
			r.Description,
			strings.Join(r.ReferenceLinks, " "),
			string(r.Status),
			fmt.Sprintf("%t", r.Read),
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return table, nil
}

// Render encodes table in format. Cells that a spreadsheet would evaluate as
// a formula are prefixed with a quote.
func Render(table Table, format ExportFormat) ([]byte, error) {
	table = escapeFormulas(table)
	switch format {
	case ExportXLSX:
		return renderXLSX(table)
	default:
		return renderCSV(table)
	}
}

func renderCSV(table Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(table.Header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(table.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXLSX(table Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(table.Name)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if table.Name != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("drop default sheet: %w", err)
		}
	}

	for i, header := range table.Header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(table.Name, cell, header); err != nil {
			return nil, err
		}
	}
	for r, row := range table.Rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(table.Name, cell, value); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func escapeFormulas(table Table) Table {
	rows := make([][]string, len(table.Rows))
	for i, row := range table.Rows {
		escaped := make([]string, len(row))
		for j, value := range row {
			escaped[j] = escapeFormula(value)
		}
		rows[i] = escaped
	}
	table.Rows = rows
	return table
}

func escapeFormula(value string) string {
	if value == "" {
		return value
	}
	switch value[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + value
	}
	return value
}

func ExportFileName(dataset string, format ExportFormat, at time.Time) string {
	return fmt.Sprintf("%s-%s.%s", dataset, at.UTC().Format("20060102-150405"), format)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
