package domain

type Client struct {
	ID             int64  `db:"id" json:"id"`
	OrganizationID int64  `db:"organization_id" json:"organization_id"`
	Name           string `db:"name" json:"name"`
	Email          string `db:"email" json:"email"`
	Phone          string `db:"phone" json:"phone"`
	TaxID          string `db:"tax_id" json:"tax_id"`
	Address        string `db:"address" json:"address"`
	CreatedAt      string `db:"created_at" json:"created_at"`
	UpdatedAt      string `db:"updated_at" json:"updated_at"`
}

type Product struct {
	ID             int64   `db:"id" json:"id"`
	OrganizationID int64   `db:"organization_id" json:"organization_id"`
	Name           string  `db:"name" json:"name"`
	SKU            string  `db:"sku" json:"sku"`
	UnitPrice      float64 `db:"unit_price" json:"unit_price"`
	TaxRate        float64 `db:"tax_rate" json:"tax_rate"`
	Active         bool    `db:"active" json:"active"`
	CreatedAt      string  `db:"created_at" json:"created_at"`
	UpdatedAt      string  `db:"updated_at" json:"updated_at"`
}
