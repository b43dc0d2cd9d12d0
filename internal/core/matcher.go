package core

import "strings"

// Resolution is what the DuplicateMatcher learned about one candidate.
type Resolution struct {
	DepartmentSpecified bool
	FoundDepartment     *Department
	NewDepartment       *Department // to be created; nil when found or unspecified

	GroupSpecified bool
	FoundGroup     *Group

	DuplicatingUser *User

	// Errors holds record-level errors found during resolution.
	Errors []ErrorDetail
}

// DuplicateMatcher resolves a candidate's references against an
// OrganizationContext.
type DuplicateMatcher struct{}

// NewDuplicateMatcher returns a DuplicateMatcher.
func NewDuplicateMatcher() *DuplicateMatcher {
	return &DuplicateMatcher{}
}

// Resolve looks up the department and group named by the row and checks
// whether user already exists. An unknown group is reported in Errors; an
// unknown department yields a NewDepartment to be created.
func (m *DuplicateMatcher) Resolve(octx *OrganizationContext, user *User, departmentName, groupName string) Resolution {
	var res Resolution

	if name := strings.TrimSpace(departmentName); name != "" {
		res.DepartmentSpecified = true
		if d := octx.FindDepartmentByName(name); d != nil {
			res.FoundDepartment = d
		} else {
			res.NewDepartment = &Department{
				EntityID: octx.Entity().ID,
				Name:     name,
			}
		}
	}

	if name := strings.TrimSpace(groupName); name != "" {
		res.GroupSpecified = true
		if g := octx.FindGroupByName(name); g != nil {
			res.FoundGroup = g
		} else {
			res.Errors = append(res.Errors, groupNotFoundError(name))
		}
	}

	if u := octx.FindUserByFullName(user.FullName()); u != nil {
		res.DuplicatingUser = u
	}

	return res
}
