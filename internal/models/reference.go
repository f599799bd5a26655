package models

// Teacher is a faculty member who may sit on a committee.
type Teacher struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Designation string `db:"designation" json:"designation"`
	Department  string `db:"department" json:"department"`
	University  string `db:"university" json:"university"`
}

// Course is a catalog entry offered at a given level and semester.
type Course struct {
	ID          string `db:"id" json:"id"`
	CourseCode  string `db:"course_code" json:"courseCode"`
	CourseTitle string `db:"course_title" json:"courseTitle"`
	ExamType    string `db:"exam_type" json:"examType"`
	Credit      string `db:"credit" json:"credit"`
	Level       string `db:"level" json:"level"`
	Semester    string `db:"semester" json:"semester"`
}

// ExternalExaminer is an examiner from another institution.
type ExternalExaminer struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Designation string `db:"designation" json:"designation"`
	Dept        string `db:"dept" json:"dept"`
	Uni         string `db:"uni" json:"uni"`
}
