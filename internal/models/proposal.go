package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ProposalStatus is the lifecycle state of an exam committee proposal.
type ProposalStatus string

const (
	ProposalStatusDraft             ProposalStatus = "draft"
	ProposalStatusPendingDean       ProposalStatus = "pending_dean"
	ProposalStatusPendingVC         ProposalStatus = "pending_vc"
	ProposalStatusPendingController ProposalStatus = "pending_controller"
	ProposalStatusApproved          ProposalStatus = "approved"
	ProposalStatusCancelled         ProposalStatus = "cancelled"
)

// Valid reports whether the status is a known lifecycle state.
func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalStatusDraft, ProposalStatusPendingDean, ProposalStatusPendingVC,
		ProposalStatusPendingController, ProposalStatusApproved, ProposalStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s ProposalStatus) Terminal() bool {
	switch s {
	case ProposalStatusApproved, ProposalStatusCancelled:
		return true
	default:
		return false
	}
}

// ExamInfo identifies the examination a committee is proposed for.
type ExamInfo struct {
	Degree   string `json:"degree"`
	Level    string `json:"level"`
	Semester string `json:"semester"`
	Year     string `json:"year"`
}

// CourseInfo describes the examined course.
type CourseInfo struct {
	Name        string `json:"name"`
	CourseCode  string `json:"courseCode"`
	CourseTitle string `json:"courseTitle"`
	ExamType    string `json:"examType"`
	Credit      string `json:"credit"`
}

// CommitteeInfo lists the committee members and their designations.
type CommitteeInfo struct {
	Chairman            string `json:"chairman"`
	ChairmanDesignation string `json:"chairmanDesignation"`
	Member1             string `json:"member1"`
	Member1Designation  string `json:"member1Designation"`
	Member2             string `json:"member2"`
	Member2Designation  string `json:"member2Designation"`
}

// ExternalInfo describes the external examiner.
type ExternalInfo struct {
	Name        string `json:"name"`
	Designation string `json:"designation"`
	Dept        string `json:"dept"`
	Uni         string `json:"uni"`
}

// StringList is an ordered list of strings persisted as a JSONB array.
type StringList []string

// Signatures holds one opaque signature per approval stage. Blank means unsigned.
type Signatures struct {
	Chairman   string `json:"chairman"`
	Dean       string `json:"dean"`
	VC         string `json:"vc"`
	Controller string `json:"controller"`
}

// Slot returns the signature stored for a role.
func (s Signatures) Slot(role UserRole) string {
	switch role {
	case RoleChairman:
		return s.Chairman
	case RoleDean:
		return s.Dean
	case RoleVC:
		return s.VC
	case RoleController:
		return s.Controller
	default:
		return ""
	}
}

// WithSlot returns a copy with the role's slot replaced.
func (s Signatures) WithSlot(role UserRole, value string) Signatures {
	switch role {
	case RoleChairman:
		s.Chairman = value
	case RoleDean:
		s.Dean = value
	case RoleVC:
		s.VC = value
	case RoleController:
		s.Controller = value
	}
	return s
}

// Proposal is an exam committee proposal routed for signatures.
type Proposal struct {
	ID          string         `db:"id" json:"id"`
	OwnerID     string         `db:"owner_id" json:"owner_id"`
	Status      ProposalStatus `db:"status" json:"status"`
	Exam        ExamInfo       `db:"exam" json:"exam"`
	Course      CourseInfo     `db:"course" json:"course"`
	Committee   CommitteeInfo  `db:"committee" json:"committee"`
	ExamRelated StringList     `db:"exam_related" json:"examRelated"`
	External    ExternalInfo   `db:"external" json:"external"`
	Signatures  Signatures     `db:"signatures" json:"signatures"`
	CancelledAt *time.Time     `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy *UserRole      `db:"cancelled_by" json:"cancelled_by,omitempty"`
	SummaryFile *string        `db:"summary_file" json:"-"`
	Version     int            `db:"version" json:"version"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// SummaryReady reports whether the approval summary has been rendered.
func (p *Proposal) SummaryReady() bool {
	return p.SummaryFile != nil && *p.SummaryFile != ""
}

// ProposalFilter narrows list queries.
type ProposalFilter struct {
	OwnerID  string
	Statuses []ProposalStatus
	Limit    int
	Offset   int
}

// Value marshals exam info to JSON for persistence.
func (e ExamInfo) Value() (driver.Value, error) { return jsonValue(e, "exam") }

// Scan unmarshals JSON payloads into exam info.
func (e *ExamInfo) Scan(value interface{}) error { return jsonScan(value, e, "exam") }

// Value marshals course info to JSON for persistence.
func (c CourseInfo) Value() (driver.Value, error) { return jsonValue(c, "course") }

// Scan unmarshals JSON payloads into course info.
func (c *CourseInfo) Scan(value interface{}) error { return jsonScan(value, c, "course") }

// Value marshals committee info to JSON for persistence.
func (c CommitteeInfo) Value() (driver.Value, error) { return jsonValue(c, "committee") }

// Scan unmarshals JSON payloads into committee info.
func (c *CommitteeInfo) Scan(value interface{}) error { return jsonScan(value, c, "committee") }

// Value marshals external examiner info to JSON for persistence.
func (e ExternalInfo) Value() (driver.Value, error) { return jsonValue(e, "external") }

// Scan unmarshals JSON payloads into external examiner info.
func (e *ExternalInfo) Scan(value interface{}) error { return jsonScan(value, e, "external") }

// Value marshals signatures to JSON for persistence.
func (s Signatures) Value() (driver.Value, error) { return jsonValue(s, "signatures") }

// Scan unmarshals JSON payloads into signatures.
func (s *Signatures) Scan(value interface{}) error { return jsonScan(value, s, "signatures") }

// Value marshals the list to a JSON array; nil becomes [].
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return jsonValue([]string(l), "string list")
}

// Scan unmarshals a JSON array.
func (l *StringList) Scan(value interface{}) error {
	var out []string
	if err := jsonScan(value, &out, "string list"); err != nil {
		return err
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

func jsonValue(v interface{}, name string) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", name, err)
	}
	return data, nil
}

func jsonScan(value interface{}, dst interface{}, name string) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported %s type %T", name, value)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}
