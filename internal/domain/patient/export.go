package patient

import (
	"context"
	"fmt"
	"io"

	"github.com/360EntSecGroup-Skylar/excelize"

	"github.com/carenet/clinic/internal/platform/auth"
)

const (
	registerSheet    = "Patients"
	exportPageSize   = 500
	registerFilename = "patients.xlsx"
)

var registerHeaders = []string{
	"Username", "Numero patient", "Nom", "Prenom", "Telephone",
	"Numero urgence", "Email", "Date naissance", "Groupe sanguin", "Cree le",
}

// ExportRegister writes every patient matching q to w as an xlsx workbook.
func (s *Service) ExportRegister(ctx context.Context, actor auth.Actor, q string, w io.Writer) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	file := excelize.NewFile()
	file.NewSheet(registerSheet)
	file.DeleteSheet("Sheet1")
	for i, h := range registerHeaders {
		file.SetCellValue(registerSheet, cell(i, 1), h)
	}

	row := 2
	for offset := 0; ; offset += exportPageSize {
		items, total, err := s.patients.Search(ctx, q, exportPageSize, offset)
		if err != nil {
			return err
		}
		for _, p := range items {
			appendRegisterRow(file, row, p)
			row++
		}
		if len(items) == 0 || offset+len(items) >= total {
			break
		}
	}
	return file.Write(w)
}

func appendRegisterRow(file *excelize.File, row int, p *Patient) {
	values := []interface{}{
		p.Username, p.NumeroPatient.String(), p.LastName, p.FirstName, p.Telephone,
		deref(p.EmergencyPhone), deref(p.Email), "", string(p.BloodGroup),
		p.CreatedAt.Format("2006-01-02 15:04"),
	}
	if p.BirthDate != nil {
		values[7] = p.BirthDate.Format(dateLayout)
	}
	for i, v := range values {
		file.SetCellValue(registerSheet, cell(i, row), v)
	}
}

// cell returns the A1-style reference for a zero-based column and 1-based row.
func cell(col, row int) string {
	return fmt.Sprintf("%c%d", 'A'+col, row)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
