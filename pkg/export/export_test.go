package export

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-committee-api/internal/models"
)

func TestProposalCSVRendersRows(t *testing.T) {
	doc, err := NewProposalCSV()
	require.NoError(t, err)

	dean := models.RoleDean
	updated := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, doc.Append(models.Proposal{
		ID:          "p-1",
		Status:      models.ProposalStatusCancelled,
		Exam:        models.ExamInfo{Degree: "BSc", Level: "1", Semester: "2", Year: "2026"},
		Course:      models.CourseInfo{CourseCode: "CSE-101", CourseTitle: "Programming, Intro", ExamType: "Theory", Credit: "3"},
		Committee:   models.CommitteeInfo{Chairman: "Dr. Rahim"},
		ExamRelated: models.StringList{"Question setter", "Scrutinizer"},
		External:    models.ExternalInfo{Name: "Prof. Ahmed"},
		Signatures:  models.Signatures{Chairman: "sig-c", Dean: " "},
		CancelledBy: &dean,
		UpdatedAt:   updated,
	}))
	require.NoError(t, doc.Append(models.Proposal{ID: "p-2", Status: models.ProposalStatusDraft, UpdatedAt: updated}))
	assert.Equal(t, 2, doc.Rows())

	out, err := doc.Bytes()
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(ProposalCSVHeaders, ","), lines[0])
	assert.Equal(t, `p-1,cancelled,BSc,1,2,2026,CSE-101,"Programming, Intro",Theory,3,Dr. Rahim,Question setter; Scrutinizer,Prof. Ahmed,chairman,dean,2026-02-01T09:30:00Z`, lines[1])
	assert.Equal(t, "p-2,draft,,,,,,,,,,,,,,2026-02-01T09:30:00Z", lines[2])
}

func TestProposalCSVHeaderOnly(t *testing.T) {
	doc, err := NewProposalCSV()
	require.NoError(t, err)
	out, err := doc.Bytes()
	require.NoError(t, err)
	assert.Equal(t, strings.Join(ProposalCSVHeaders, ",")+"\n", string(out))
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(Document{
		Title:    "Exam committee proposal",
		Subtitle: "B.Sc. CSE",
		Sections: []Section{{
			Heading: "Exam",
			Fields:  []Field{{Label: "Degree", Value: "CSE"}},
		}},
		Footer: "approved",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestPDFExporterRequiresSections(t *testing.T) {
	_, err := NewPDFExporter().Render(Document{Title: "empty"})
	assert.Error(t, err)
}

func TestPDFExporterEmbedsImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(1, 1, color.Black)
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))

	out, err := NewPDFExporter().Render(Document{
		Title: "Signatures",
		Sections: []Section{{
			Heading: "Signatures",
			Fields: []Field{
				{Label: "Chairman", Value: "signed", Image: &Image{Data: buf.Bytes(), Type: "png"}},
				{Label: "Dean", Value: "signed", Image: &Image{Data: []byte("not an image"), Type: "png"}},
				{Label: "VC", Value: "pending"},
			},
		}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
