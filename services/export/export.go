// Package exportsvc writes payments and receipts to XLSX workbooks.
package exportsvc

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/risiti/core/academicyear"
	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/receipt"
	"github.com/trezcool/risiti/core/student"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	dateLayout  = "2006-01-02"
)

type Service struct {
	students student.Repository
	years    academicyear.Repository
}

func NewService(students student.Repository, years academicyear.Repository) *Service {
	return &Service{students: students, years: years}
}

// lookup resolves and memoizes the student and year names of a single export.
type lookup struct {
	ctx      context.Context
	svc      *Service
	students map[string]student.Student
	years    map[string]string
}

func (svc *Service) newLookup(ctx context.Context) *lookup {
	return &lookup{ctx: ctx, svc: svc, students: make(map[string]student.Student), years: make(map[string]string)}
}

func (l *lookup) student(id string) (student.Student, error) {
	if st, ok := l.students[id]; ok {
		return st, nil
	}
	st, err := l.svc.students.GetStudent(l.ctx, id)
	if err != nil && errors.Cause(err) != student.ErrNotFound {
		return student.Student{}, errors.Wrap(err, "finding student")
	}
	l.students[id] = st
	return st, nil
}

func (l *lookup) year(id string) (string, error) {
	if name, ok := l.years[id]; ok {
		return name, nil
	}
	y, err := l.svc.years.GetYear(l.ctx, id)
	if err != nil && errors.Cause(err) != academicyear.ErrNotFound {
		return "", errors.Wrap(err, "finding academic year")
	}
	l.years[id] = y.Name
	return y.Name, nil
}

// Payments returns a workbook listing payments, one per row.
func (svc *Service) Payments(ctx context.Context, payments []payment.Payment) ([]byte, error) {
	l := svc.newLookup(ctx)
	rows := make([][]interface{}, 0, len(payments))
	for _, p := range payments {
		st, err := l.student(p.StudentID)
		if err != nil {
			return nil, err
		}
		year, err := l.year(p.AcademicYearID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []interface{}{
			p.PaymentDate.Format(dateLayout),
			st.AdmissionNo,
			st.FullName(),
			year,
			payment.TypeLabel(p.Type),
			payment.MethodLabel(p.Method),
			p.Status,
			p.Amount.InexactFloat64(),
			p.Discount.InexactFloat64(),
			p.Total().InexactFloat64(),
			p.Reference,
			p.Notes,
		})
	}
	headers := []string{
		"Date", "Admission No", "Student", "Academic Year", "Type", "Method", "Status",
		"Amount", "Discount", "Total", "Reference", "Notes",
	}
	return writeSheet("Payments", headers, rows)
}

// Receipts returns a workbook listing receipts, one per row.
func (svc *Service) Receipts(ctx context.Context, receipts []receipt.Receipt) ([]byte, error) {
	l := svc.newLookup(ctx)
	rows := make([][]interface{}, 0, len(receipts))
	for _, r := range receipts {
		st, err := l.student(r.StudentID)
		if err != nil {
			return nil, err
		}
		year, err := l.year(r.AcademicYearID)
		if err != nil {
			return nil, err
		}
		emailed := ""
		if r.EmailSent {
			emailed = r.EmailSentAt.Format(dateLayout)
		}
		rows = append(rows, []interface{}{
			r.Number,
			r.GeneratedAt.Format(dateLayout),
			st.AdmissionNo,
			st.FullName(),
			year,
			r.Amount.InexactFloat64(),
			r.Discount.InexactFloat64(),
			r.Total.InexactFloat64(),
			emailed,
		})
	}
	headers := []string{"Number", "Date", "Admission No", "Student", "Academic Year", "Amount", "Discount", "Total", "Emailed"}
	return writeSheet("Receipts", headers, rows)
}

func writeSheet(sheet string, headers []string, rows [][]interface{}) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// rename the default sheet
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, errors.Wrap(err, "naming sheet")
	}
	index, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, errors.Wrap(err, "finding sheet")
	}
	f.SetActiveSheet(index)

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, "creating header style")
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err = f.SetCellValue(sheet, cell, header); err != nil {
			return nil, errors.Wrapf(err, "writing header %s", cell)
		}
	}
	if err = f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return nil, errors.Wrap(err, "styling header")
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := row
		if err = f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, errors.Wrapf(err, "writing row %d", i+2)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	if err = f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return nil, errors.Wrap(err, "sizing columns")
	}

	var buf bytes.Buffer
	if err = f.Write(&buf); err != nil {
		return nil, errors.Wrap(err, "writing workbook")
	}
	return buf.Bytes(), nil
}
