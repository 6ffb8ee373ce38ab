package analytics

import (
	"math"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
)

// DefaultAttendanceRate is assumed for the realistic forecast when a subject
// has no classes yet.
const DefaultAttendanceRate = 0.75

// Unlimited is returned by AffordableAbsences when the threshold is 0.
const Unlimited = -1

// Unreachable is returned by ClassesToReachThreshold when no number of
// future classes can reach the threshold.
const Unreachable = -1

// PredictSemesterEnd projects the attendance percentage after remaining more
// classes. Optimistic assumes every one is attended; realistic assumes the
// current rate, rounded half away from zero to whole classes.
func PredictSemesterEnd(s *attendance.Subject, remaining int, optimistic bool) float64 {
	if remaining <= 0 {
		return s.AttendancePercent()
	}

	var futurePresent int
	if optimistic {
		futurePresent = remaining
	} else {
		rate := DefaultAttendanceRate
		if s.TotalCount > 0 {
			rate = float64(s.PresentCount) / float64(s.TotalCount)
		}
		futurePresent = int(math.Round(float64(remaining) * rate))
	}

	return float64(s.PresentCount+futurePresent) / float64(s.TotalCount+remaining) * 100
}

// ClassesToReachThreshold returns how many consecutive classes must be
// attended to reach the subject's required percentage. 0 means the subject
// already meets it.
func ClassesToReachThreshold(s *attendance.Subject) int {
	required := s.RequiredAttendance
	deficit := required*s.TotalCount - 100*s.PresentCount
	if deficit <= 0 {
		return 0
	}
	if required >= 100 {
		return Unreachable
	}
	step := 100 - required
	return (deficit + step - 1) / step
}

// AffordableAbsences returns how many classes can be missed in a row while
// staying at or above the required percentage.
func AffordableAbsences(s *attendance.Subject) int {
	required := s.RequiredAttendance
	if required <= 0 {
		return Unlimited
	}
	slack := 100*s.PresentCount - required*s.TotalCount
	if slack <= 0 {
		return 0
	}
	return slack / required
}
