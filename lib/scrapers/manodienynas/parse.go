package manodienynas

import (
	"context"
	"fmt"
	"strings"

	"hwscraper-backend/lib/tableparse"

	"github.com/PuerkitoBio/goquery"
)

// Homework is one row of the classhomework table. Column order on the
// portal: lesson date, subject, teacher, description, due date, entered
// date, attached files. The description cell wraps its real text in a
// <p> next to icon markup.
type Homework struct {
	LessonDate  string
	Subject     string
	Teacher     string
	Description string
	DueDateText string
	Completed   bool
}

func homeworkTableOptions() tableparse.Options {
	return tableparse.Options{
		Selector:        "table.classhomework",
		NoiseClasses:    []string{"banner", "reklama", "skelbim"},
		RichTextColumns: map[int]string{3: "p"},
		MinCells:        5,
	}
}

func ParseHomework(ctx context.Context, html string) ([]Homework, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	rows, err := tableparse.ParseTable(ctx, doc, homeworkTableOptions())
	if err != nil {
		return nil, fmt.Errorf("homework table: %w", err)
	}

	var out []Homework
	for _, row := range rows {
		hw := Homework{
			LessonDate:  row.Cells[0],
			Subject:     row.Cells[1],
			Teacher:     row.Cells[2],
			Description: row.Cells[3],
			Completed:   row.Completed,
		}
		if len(row.Cells) > 4 {
			hw.DueDateText = row.Cells[4]
		}
		// rows without a description are table filler
		if strings.TrimSpace(hw.Description) == "" {
			continue
		}
		out = append(out, hw)
	}
	return out, nil
}

// Exam is one row of the cWorksListTable. Column order: running number,
// date, assessment type, group/subject, topic, entered date.
type Exam struct {
	DateText string
	Kind     string
	Group    string
	Topic    string
}

func examTableOptions() tableparse.Options {
	return tableparse.Options{
		Selector: "table#cWorksListTable",
		MinCells: 6,
	}
}

func ParseExams(ctx context.Context, html string) ([]Exam, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	rows, err := tableparse.ParseTable(ctx, doc, examTableOptions())
	if err != nil {
		return nil, fmt.Errorf("exam table: %w", err)
	}

	var out []Exam
	for _, row := range rows {
		exam := Exam{
			DateText: row.Cells[1],
			Kind:     row.Cells[2],
			Group:    row.Cells[3],
			Topic:    row.Cells[4],
		}
		if exam.DateText == "" || exam.Group == "" || exam.Topic == "" {
			continue
		}
		out = append(out, exam)
	}
	return out, nil
}
