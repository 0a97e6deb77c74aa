// Package types holds all shared data structures (models) used across
// the application. Handlers, storage, service and utils all import
// types; types imports none of them.
package types

// Student represents a student record in the gradebook.
//
// The json tags are the wire names clients already rely on
// ("firstname", "emailAddress"), so they are not snake_case.
type Student struct {
	ID           int64  `json:"id"`
	Firstname    string `json:"firstname"    validate:"required,max=100"`
	Lastname     string `json:"lastname"     validate:"required,max=100"`
	EmailAddress string `json:"emailAddress" validate:"required,emailaddr,max=254"`
}

// GradeType identifies which subject a grade belongs to.
type GradeType string

const (
	GradeMath    GradeType = "math"
	GradeScience GradeType = "science"
	GradeHistory GradeType = "history"
)

// GradeTypes lists every subject in display order.
var GradeTypes = []GradeType{GradeMath, GradeScience, GradeHistory}

// ParseGradeType reports whether s names a known subject.
func ParseGradeType(s string) (GradeType, bool) {
	switch GradeType(s) {
	case GradeMath, GradeScience, GradeHistory:
		return GradeType(s), true
	}
	return "", false
}

// Table returns the relational table holding grades of this type.
// Callers must only pass values obtained from ParseGradeType or the
// exported constants; the result is interpolated into SQL.
func (g GradeType) Table() string {
	return string(g) + "_grade"
}

// Grade is a single subject grade for one student.
type Grade struct {
	ID        int64   `json:"id"`
	StudentID int64   `json:"studentId"`
	Grade     float64 `json:"grade"`
}

// StudentGrades groups a student's grades per subject together with the
// rounded average of each collection.
type StudentGrades struct {
	MathGradeResults    []Grade `json:"mathGradeResults"`
	ScienceGradeResults []Grade `json:"scienceGradeResults"`
	HistoryGradeResults []Grade `json:"historyGradeResults"`

	MathGradeAverage    float64 `json:"mathGradeAverage"`
	ScienceGradeAverage float64 `json:"scienceGradeAverage"`
	HistoryGradeAverage float64 `json:"historyGradeAverage"`
}

// GradebookStudent is the student detail view returned by
// GET /studentInformation/{id} and by grade mutations.
type GradebookStudent struct {
	Student
	StudentGrades StudentGrades `json:"studentGrades"`
}

// GradeRequest is the decoded form of POST /grades.
type GradeRequest struct {
	StudentID int64   `validate:"gt=0"`
	GradeType string  `validate:"oneof=math science history"`
	Grade     float64 `validate:"gte=0,lte=100"`
}
