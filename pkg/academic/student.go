package academic

import "time"

// Identity is the core identity of a student.
type Identity struct {
	ID        string `json:"id"`
	Number    string `json:"number"` // matricule
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
}

// Enrollment ties a student to a program for one academic year.
type Enrollment struct {
	ID        string `json:"id"`
	ProgramID string `json:"program_id"`
	YearID    string `json:"year_id"`
	Level     int    `json:"level"`
}

// AcademicProfile is the grading-owned field group of a student.
type AcademicProfile struct {
	Enrollments []Enrollment `json:"enrollments"`
}

// SchedulingProfile is the timetable-owned field group of a student.
type SchedulingProfile struct {
	GroupIDs []string `json:"group_ids"`
}

// Student is composed of field groups owned by different engines. Each
// engine reads only its own group.
type Student struct {
	Identity
	Academic   AcademicProfile   `json:"academic"`
	Scheduling SchedulingProfile `json:"scheduling"`
	CreatedAt  time.Time         `json:"created_at"`
}

// FullName returns "Last First".
func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	if s.FirstName == "" {
		return s.LastName
	}
	return s.LastName + " " + s.FirstName
}

// EnrollmentFor returns the student's enrollment for a year, if any.
func (s Student) EnrollmentFor(yearID string) (Enrollment, bool) {
	for _, e := range s.Academic.Enrollments {
		if e.YearID == yearID {
			return e, true
		}
	}
	return Enrollment{}, false
}
