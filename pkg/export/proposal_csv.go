package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/exam-committee-api/internal/models"
)

// ProposalCSVHeaders is the column order of a proposal queue export.
var ProposalCSVHeaders = []string{
	"ID", "Status", "Degree", "Level", "Semester", "Year",
	"Course Code", "Course Title", "Exam Type", "Credit",
	"Committee Chairman", "Exam Related", "External Examiner",
	"Signed By", "Cancelled By", "Updated At",
}

// ProposalCSV accumulates proposals into a CSV document, one row per proposal.
type ProposalCSV struct {
	buf    bytes.Buffer
	writer *csv.Writer
	rows   int
}

// NewProposalCSV starts a document with the header row written.
func NewProposalCSV() (*ProposalCSV, error) {
	doc := &ProposalCSV{}
	doc.writer = csv.NewWriter(&doc.buf)
	if err := doc.writer.Write(ProposalCSVHeaders); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	return doc, nil
}

// Append writes one proposal row.
func (d *ProposalCSV) Append(p models.Proposal) error {
	if err := d.writer.Write(proposalRecord(p)); err != nil {
		return fmt.Errorf("write csv row %s: %w", p.ID, err)
	}
	d.rows++
	return nil
}

// Rows reports how many proposals were appended.
func (d *ProposalCSV) Rows() int { return d.rows }

// Bytes flushes and returns the encoded document.
func (d *ProposalCSV) Bytes() ([]byte, error) {
	d.writer.Flush()
	if err := d.writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return d.buf.Bytes(), nil
}

func proposalRecord(p models.Proposal) []string {
	cancelledBy := ""
	if p.CancelledBy != nil {
		cancelledBy = string(*p.CancelledBy)
	}
	return []string{
		p.ID,
		string(p.Status),
		p.Exam.Degree,
		p.Exam.Level,
		p.Exam.Semester,
		p.Exam.Year,
		p.Course.CourseCode,
		p.Course.CourseTitle,
		p.Course.ExamType,
		p.Course.Credit,
		p.Committee.Chairman,
		strings.Join(p.ExamRelated, "; "),
		p.External.Name,
		signedBy(p.Signatures),
		cancelledBy,
		p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// signedBy lists the roles whose signature slot is filled, in approval order.
func signedBy(s models.Signatures) string {
	roles := []models.UserRole{models.RoleChairman, models.RoleDean, models.RoleVC, models.RoleController}
	signed := make([]string, 0, len(roles))
	for _, role := range roles {
		if strings.TrimSpace(s.Slot(role)) != "" {
			signed = append(signed, string(role))
		}
	}
	return strings.Join(signed, " ")
}
