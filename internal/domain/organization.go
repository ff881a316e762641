package domain

// User is an account that can belong to several organizations.
type User struct {
	ID           int64  `db:"id" json:"id"`
	Email        string `db:"email" json:"email"`
	Name         string `db:"name" json:"name"`
	PasswordHash string `db:"password_hash" json:"-"`
	CreatedAt    string `db:"created_at" json:"created_at"`
}

// Organization is a tenant scoping clients, products and quotes.
type Organization struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// Membership is an organization as seen by one of its members.
type Membership struct {
	OrganizationID   int64  `db:"organization_id" json:"organization_id"`
	OrganizationName string `db:"organization_name" json:"organization_name"`
	Role             string `db:"role" json:"role"`
}

// Member is a user's role inside an organization.
type Member struct {
	UserID      int64    `db:"user_id" json:"user_id"`
	Email       string   `db:"email" json:"email"`
	Name        string   `db:"name" json:"name"`
	Role        string   `db:"role" json:"role"`
	Permissions []string `db:"-" json:"permissions"`
	CreatedAt   string   `db:"created_at" json:"created_at"`
}
