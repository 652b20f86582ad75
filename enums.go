package tomikal

import (
	"tomikal/sacco"
)

type Role int

const (
	RoleMember Role = iota
	RoleSecretary
	RoleTreasurer
	RoleAdmin
)

func (r Role) String() string {
	return [...]string{"Member", "Secretary", "Treasurer", "Admin"}[r]
}

// RolesOf lists every role the user holds. Everyone is a member.
func RolesOf(u sacco.User) []Role {
	roles := []Role{RoleMember}
	if u.IsSecretary {
		roles = append(roles, RoleSecretary)
	}
	if u.IsTreasurer {
		roles = append(roles, RoleTreasurer)
	}
	if u.IsAdmin {
		roles = append(roles, RoleAdmin)
	}

	return roles
}

// PrimaryRole is the role shown in headers: the most privileged one the user holds.
func PrimaryRole(u sacco.User) Role {
	roles := RolesOf(u)
	return roles[len(roles)-1]
}

type Permission int

const (
	ViewAllTransactions Permission = iota
	CaptureTransactions
	ApproveTransactions
	ApproveMembers
	ViewMemberLoans
	RequestLoanForOthers
	ApproveLoans
	RecordRepayments
	ApproveRepayments
)

func (p Permission) String() string {
	return [...]string{
		"ViewAllTransactions",
		"CaptureTransactions",
		"ApproveTransactions",
		"ApproveMembers",
		"ViewMemberLoans",
		"RequestLoanForOthers",
		"ApproveLoans",
		"RecordRepayments",
		"ApproveRepayments",
	}[p]
}

var permissionRoles = map[Permission][]Role{
	ViewAllTransactions:  {RoleAdmin},
	CaptureTransactions:  {RoleSecretary},
	ApproveTransactions:  {RoleTreasurer},
	ApproveMembers:       {RoleSecretary},
	ViewMemberLoans:      {RoleSecretary, RoleTreasurer},
	RequestLoanForOthers: {RoleSecretary},
	ApproveLoans:         {RoleTreasurer},
	RecordRepayments:     {RoleSecretary},
	ApproveRepayments:    {RoleTreasurer},
}

// Can is the one place role flags are turned into permissions.
func Can(u sacco.User, p Permission) bool {
	for _, held := range RolesOf(u) {
		for _, allowed := range permissionRoles[p] {
			if held == allowed {
				return true
			}
		}
	}

	return false
}

func permit(u sacco.User, p Permission, message string) error {
	if Can(u, p) {
		return nil
	}

	return &PermissionError{Permission: p, Message: message}
}
