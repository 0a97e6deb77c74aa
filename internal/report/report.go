// Package report renders the gradebook as a terminal table for the
// `gradebook report` command.
package report

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/aanand-mishra/gradebook-api/internal/service/gradebook"
)

// Write prints one row per student with the number of grades and the
// average of every subject.
func Write(ctx context.Context, w io.Writer, svc gradebook.Service) error {
	students, err := svc.ListStudents(ctx)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	color.New(color.FgYellow, color.Bold).Fprintf(w, "Gradebook: %d student(s)\n", len(students))
	if len(students) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Email", "Math", "Science", "History", "Grades"})
	table.SetAutoFormatHeaders(false)

	for _, s := range students {
		detail, err := svc.StudentDetail(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("report: student %d: %w", s.ID, err)
		}
		g := detail.StudentGrades
		count := len(g.MathGradeResults) + len(g.ScienceGradeResults) + len(g.HistoryGradeResults)

		table.Append([]string{
			strconv.FormatInt(s.ID, 10),
			s.Firstname + " " + s.Lastname,
			s.EmailAddress,
			formatAverage(g.MathGradeAverage, len(g.MathGradeResults)),
			formatAverage(g.ScienceGradeAverage, len(g.ScienceGradeResults)),
			formatAverage(g.HistoryGradeAverage, len(g.HistoryGradeResults)),
			strconv.Itoa(count),
		})
	}

	table.Render()
	return nil
}

func formatAverage(avg float64, n int) string {
	if n == 0 {
		return "-"
	}
	return strconv.FormatFloat(avg, 'f', 2, 64)
}
