package manodienynas

import (
	"context"
	"testing"

	"hwscraper-backend/lib/tableparse"
	"hwscraper-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const homeworkFixture = `
<html><body>
<div class="header">Mano dienynas</div>
<table class="classhomework">
  <tr>
    <th>Pamokos data</th><th>Pamoka</th><th>Mokytojas</th>
    <th>Namų darbas</th><th>Atlikti iki</th><th>Įvesta</th><th>Prikabinti failai</th>
  </tr>
  <tr>
    <td>2025-10-10</td>
    <td>Matematika</td>
    <td>J. Jonaitienė</td>
    <td><span class="hw-icon"></span><p>Išspręsti 12-15 uždavinius</p></td>
    <td>2025-10-15</td>
    <td>2025-10-10</td>
    <td></td>
  </tr>
  <tr class="completed">
    <td>2025-10-09</td>
    <td>Lietuvių kalba ir literatūra</td>
    <td>P. Petraitis</td>
    <td><p>Perskaityti 3 skyrių</p></td>
    <td>2025-10-14</td>
    <td>2025-10-09</td>
    <td></td>
  </tr>
  <tr class="banner-row"><td colspan="7">Reklama</td></tr>
  <tr>
    <td>2025-10-08</td>
    <td>Fizika</td>
    <td>A. Kazlauskas</td>
    <td><p></p></td>
    <td></td>
    <td>2025-10-08</td>
    <td></td>
  </tr>
</table>
</body></html>`

func TestParseHomework(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/manodienynas")
	defer cleanup()

	items, err := ParseHomework(context.Background(), homeworkFixture)
	require.NoError(t, err)
	require.Len(t, items, 2, "header, ad and empty-description rows are dropped")

	require.Equal(t, Homework{
		LessonDate:  "2025-10-10",
		Subject:     "Matematika",
		Teacher:     "J. Jonaitienė",
		Description: "Išspręsti 12-15 uždavinius",
		DueDateText: "2025-10-15",
		Completed:   false,
	}, items[0])

	require.True(t, items[1].Completed)
	require.Equal(t, "Lietuvių kalba ir literatūra", items[1].Subject)
}

const examsFixture = `
<html><body>
<table id="cWorksListTable">
  <tr><th>Eil. Nr.</th><th>Data</th><th>Tipas</th><th>Grupė</th><th>Tema</th><th>Įvesta</th></tr>
  <tr>
    <td>1</td><td>2025-11-20</td><td>Kontrolinis darbas</td>
    <td>Matematika 9a</td><td>Kvadratinės lygtys</td><td>2025-11-01</td>
  </tr>
  <tr>
    <td>2</td><td></td><td>Testas</td><td>Istorija 9a</td><td>LDK</td><td>2025-11-02</td>
  </tr>
</table>
</body></html>`

func TestParseExams(t *testing.T) {
	exams, err := ParseExams(context.Background(), examsFixture)
	require.NoError(t, err)
	require.Len(t, exams, 1, "rows missing a date are dropped")

	require.Equal(t, Exam{
		DateText: "2025-11-20",
		Kind:     "Kontrolinis darbas",
		Group:    "Matematika 9a",
		Topic:    "Kvadratinės lygtys",
	}, exams[0])
}

func TestParseHomeworkNoTable(t *testing.T) {
	_, err := ParseHomework(context.Background(), "<html><body>prisijunkite</body></html>")
	require.ErrorIs(t, err, tableparse.ErrTableNotFound)
}
