package orders

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleManager  Role = "manager"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleManager:
		return true
	}
	return false
}

// Actor is the identity resolved upstream and passed in with each request.
type Actor struct {
	ID   string
	Role Role
}

// CanSee reports whether a may read o: customers their own orders, staff the
// ones assigned to them, managers everything.
func (a Actor) CanSee(o Order) bool {
	switch a.Role {
	case RoleManager:
		return true
	case RoleStaff:
		return o.AssignedStaffID == a.ID
	case RoleCustomer:
		return o.CustomerID == a.ID
	}
	return false
}
