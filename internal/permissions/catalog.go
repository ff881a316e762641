package permissions

import (
	"fmt"
	"slices"
)

// Permission codes use the "resource:action" form.
const (
	ClientsView   = "clients:view"
	ClientsCreate = "clients:create"
	ClientsUpdate = "clients:update"
	ClientsDelete = "clients:delete"

	ProductsView   = "products:view"
	ProductsCreate = "products:create"
	ProductsUpdate = "products:update"
	ProductsDelete = "products:delete"

	QuotesView    = "quotes:view"
	QuotesCreate  = "quotes:create"
	QuotesUpdate  = "quotes:update"
	QuotesDelete  = "quotes:delete"
	QuotesSend    = "quotes:send"
	QuotesApprove = "quotes:approve"

	OrganizationsUpdate = "organizations:update"

	MembersView   = "members:view"
	MembersCreate = "members:create"
	MembersUpdate = "members:update"
	MembersDelete = "members:delete"
)

// Role names stored on memberships.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleSeller = "seller"
	RoleViewer = "viewer"
)

// All lists every known permission code.
func All() []string {
	return []string{
		ClientsView, ClientsCreate, ClientsUpdate, ClientsDelete,
		ProductsView, ProductsCreate, ProductsUpdate, ProductsDelete,
		QuotesView, QuotesCreate, QuotesUpdate, QuotesDelete, QuotesSend, QuotesApprove,
		OrganizationsUpdate,
		MembersView, MembersCreate, MembersUpdate, MembersDelete,
	}
}

var roleDefaults = map[string][]string{
	RoleOwner: nil,
	RoleAdmin: All(),
	RoleSeller: {
		ClientsView, ClientsCreate, ClientsUpdate,
		ProductsView,
		QuotesView, QuotesCreate, QuotesUpdate, QuotesSend,
	},
	RoleViewer: {
		ClientsView,
		ProductsView,
		QuotesView,
	},
}

// Roles returns the known role names.
func Roles() []string {
	return []string{RoleOwner, RoleAdmin, RoleSeller, RoleViewer}
}

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	_, ok := roleDefaults[role]
	return ok
}

// Valid reports whether p is a known permission code.
func Valid(p string) bool {
	return slices.Contains(All(), p)
}

// ForRole merges the default permissions of role with extra grants,
// sorted and without duplicates. Owners get an empty list; their access comes
// from the owner override.
func ForRole(role string, extra []string) ([]string, error) {
	defaults, ok := roleDefaults[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if role == RoleOwner {
		return []string{}, nil
	}

	out := make([]string, 0, len(defaults)+len(extra))
	out = append(out, defaults...)
	out = append(out, extra...)
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Apply loads a membership into r, replacing its previous state in one
// step. An unknown role leaves r empty.
func Apply(r *Resolver, role string, extra []string) error {
	if role == RoleOwner {
		r.Replace(true, nil)
		return nil
	}
	list, err := ForRole(role, extra)
	if err != nil {
		r.Reset()
		return err
	}
	r.Replace(false, list)
	return nil
}
