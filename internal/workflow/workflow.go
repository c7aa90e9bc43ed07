// Package workflow holds the legal status transitions for every entity with a
// lifecycle and the roles allowed to trigger each of them.
package workflow

import (
	"fmt"

	"github.com/noah-isme/sccms-api/internal/models"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
)

// Entity names a workflow-bearing resource.
type Entity string

const (
	EntityCourse               Entity = "course"
	EntityApplication          Entity = "application"
	EntityReport               Entity = "report"
	EntityNightShiftAssignment Entity = "nightShiftAssignment"
)

// Transition is one legal edge of an entity's status graph.
type Transition struct {
	From  string
	To    string
	Roles []models.UserRole
}

var (
	managers   = []models.UserRole{models.RoleAdmin, models.RoleManager}
	processors = []models.UserRole{models.RoleAdmin, models.RoleManager, models.RoleSecretary}
	fieldStaff = []models.UserRole{models.RoleAdmin, models.RoleManager, models.RoleStaff}
)

func edges(from []string, to string, roles []models.UserRole) []Transition {
	out := make([]Transition, len(from))
	for i, f := range from {
		out[i] = Transition{From: f, To: to, Roles: roles}
	}
	return out
}

func concat(groups ...[]Transition) []Transition {
	var out []Transition
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Statuses lists the known status values per entity.
var Statuses = map[Entity][]string{
	EntityCourse: {
		string(models.CourseStatusNotStarted), string(models.CourseStatusRecruiting),
		string(models.CourseStatusInProgress), string(models.CourseStatusClosed),
		string(models.CourseStatusDeleted),
	},
	EntityApplication: {
		string(models.ApplicationStatusPending), string(models.ApplicationStatusApproved),
		string(models.ApplicationStatusRejected), string(models.ApplicationStatusEnrolled),
		string(models.ApplicationStatusDropOut), string(models.ApplicationStatusGraduated),
		string(models.ApplicationStatusDeleted),
	},
	EntityReport: {
		string(models.ReportStatusNotYet), string(models.ReportStatusAttending),
		string(models.ReportStatusAttended), string(models.ReportStatusLate),
		string(models.ReportStatusRead), string(models.ReportStatusReopened),
	},
	EntityNightShiftAssignment: {
		string(models.AssignmentStatusAssigned), string(models.AssignmentStatusRejected),
		string(models.AssignmentStatusReassigned),
	},
}

// Table is the transition table, in the order AllowedNext reports it.
var Table = map[Entity][]Transition{
	EntityCourse: concat(
		[]Transition{
			{From: string(models.CourseStatusNotStarted), To: string(models.CourseStatusRecruiting), Roles: managers},
			{From: string(models.CourseStatusRecruiting), To: string(models.CourseStatusInProgress), Roles: managers},
			{From: string(models.CourseStatusInProgress), To: string(models.CourseStatusClosed), Roles: managers},
		},
		edges([]string{
			string(models.CourseStatusNotStarted), string(models.CourseStatusRecruiting),
			string(models.CourseStatusInProgress), string(models.CourseStatusClosed),
		}, string(models.CourseStatusDeleted), managers),
	),
	EntityApplication: concat(
		[]Transition{
			{From: string(models.ApplicationStatusPending), To: string(models.ApplicationStatusApproved), Roles: processors},
			{From: string(models.ApplicationStatusPending), To: string(models.ApplicationStatusRejected), Roles: processors},
			{From: string(models.ApplicationStatusApproved), To: string(models.ApplicationStatusEnrolled), Roles: processors},
			{From: string(models.ApplicationStatusApproved), To: string(models.ApplicationStatusDropOut), Roles: processors},
			{From: string(models.ApplicationStatusEnrolled), To: string(models.ApplicationStatusGraduated), Roles: managers},
			{From: string(models.ApplicationStatusEnrolled), To: string(models.ApplicationStatusDropOut), Roles: processors},
		},
		edges([]string{
			string(models.ApplicationStatusPending), string(models.ApplicationStatusApproved),
			string(models.ApplicationStatusRejected), string(models.ApplicationStatusEnrolled),
			string(models.ApplicationStatusDropOut), string(models.ApplicationStatusGraduated),
		}, string(models.ApplicationStatusDeleted), managers),
	),
	EntityReport: concat(
		[]Transition{
			{From: string(models.ReportStatusNotYet), To: string(models.ReportStatusAttending), Roles: fieldStaff},
		},
		edges([]string{string(models.ReportStatusAttending), string(models.ReportStatusReopened)}, string(models.ReportStatusAttended), fieldStaff),
		edges([]string{string(models.ReportStatusAttending), string(models.ReportStatusReopened)}, string(models.ReportStatusLate), fieldStaff),
		edges([]string{string(models.ReportStatusAttended), string(models.ReportStatusLate)}, string(models.ReportStatusRead), processors),
		edges([]string{
			string(models.ReportStatusAttended), string(models.ReportStatusLate), string(models.ReportStatusRead),
		}, string(models.ReportStatusReopened), managers),
	),
	EntityNightShiftAssignment: {
		{From: string(models.AssignmentStatusAssigned), To: string(models.AssignmentStatusRejected), Roles: fieldStaff},
		{From: string(models.AssignmentStatusRejected), To: string(models.AssignmentStatusReassigned), Roles: managers},
	},
}

// ParseEntity validates an entity name coming from a URL.
func ParseEntity(raw string) (Entity, error) {
	e := Entity(raw)
	if _, ok := Table[e]; !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown workflow entity %q", raw))
	}
	return e, nil
}

// KnownStatus reports whether status is a value of entity's enum.
func KnownStatus(entity Entity, status string) bool {
	for _, s := range Statuses[entity] {
		if s == status {
			return true
		}
	}
	return false
}

func find(entity Entity, from, to string) (Transition, bool) {
	for _, t := range Table[entity] {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return Transition{}, false
}

func (t Transition) allows(role models.UserRole) bool {
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanTransition reports whether role may move entity from one status to another.
func CanTransition(entity Entity, role models.UserRole, from, to string) bool {
	t, ok := find(entity, from, to)
	return ok && t.allows(role)
}

// Check explains why a transition is refused: VALIDATION_ERROR for unknown
// statuses, INVALID_TRANSITION for edges not in the table and FORBIDDEN when
// the edge exists but the role may not take it.
func Check(entity Entity, role models.UserRole, from, to string) error {
	if _, ok := Table[entity]; !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown workflow entity %q", entity))
	}
	for _, s := range []string{from, to} {
		if !KnownStatus(entity, s) {
			return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "unknown status"),
				fmt.Sprintf("%q is not a valid %s status", s, entity))
		}
	}
	t, ok := find(entity, from, to)
	if !ok {
		return appErrors.WithDetails(appErrors.ErrInvalidTransition,
			fmt.Sprintf("%s cannot move from %s to %s", entity, from, to))
	}
	if !t.allows(role) {
		return appErrors.WithDetails(appErrors.ErrForbidden,
			fmt.Sprintf("role %s may not move %s from %s to %s", role, entity, from, to))
	}
	return nil
}

// AllowedNext lists the statuses role may move entity to from the given status.
func AllowedNext(entity Entity, role models.UserRole, from string) []string {
	next := make([]string, 0)
	for _, t := range Table[entity] {
		if t.From == from && t.allows(role) {
			next = append(next, t.To)
		}
	}
	return next
}
