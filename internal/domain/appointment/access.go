package appointment

import (
	"github.com/carebook/carebook/internal/platform/auth"
)

// canView reports whether actor may see a. Patients see their own
// appointments, doctors those booked with their profile, admins all.
func canView(actor Actor, a *Appointment) bool {
	switch actor.Role {
	case auth.RoleAdmin:
		return true
	case auth.RolePatient:
		return a.PatientID == actor.UserID
	case auth.RoleDoctor:
		return actor.DoctorID != nil && *actor.DoctorID == a.DoctorID
	}
	return false
}

// scope restricts f to the rows actor may list. ok is false when the actor
// can see nothing at all.
func scope(actor Actor, f ListFilter) (ListFilter, bool) {
	switch actor.Role {
	case auth.RoleAdmin:
		return f, true
	case auth.RolePatient:
		uid := actor.UserID
		f.PatientID = &uid
		return f, true
	case auth.RoleDoctor:
		if actor.DoctorID == nil {
			return f, false
		}
		f.DoctorID = actor.DoctorID
		return f, true
	}
	return f, false
}
