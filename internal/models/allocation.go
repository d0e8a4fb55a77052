// internal/models/allocation.go
package models

// Person is a facilitator or manager as seen by the engine.
type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Allocation is a read-only snapshot of a facilitator teaching a
// module/class/cohort combination. Manager is nil when the facilitator has no
// managing manager.
type Allocation struct {
	ID          string  `json:"id"`
	ModuleName  string  `json:"moduleName"`
	CohortName  string  `json:"cohortName"`
	ClassName   string  `json:"className"`
	Facilitator Person  `json:"facilitator"`
	Manager     *Person `json:"manager,omitempty"`
	GraceWeeks  *int    `json:"graceWeeks,omitempty"`
	IsActive    bool    `json:"isActive"`
}

// GraceThreshold returns the allocation override or def.
func (a *Allocation) GraceThreshold(def int) int {
	if a.GraceWeeks != nil {
		return *a.GraceWeeks
	}
	return def
}
