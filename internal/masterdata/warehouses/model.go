package warehouses

import (
	"time"
)

// Warehouse represents a warehouse entity. Every warehouse has a primary
// stock location used as the default destination for receipts and transfers.
type Warehouse struct {
	ID                int64     `json:"id"`
	CompanyID         int64     `json:"company_id"`
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	PrimaryLocationID int64     `json:"primary_location_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// LocationUsage describes what a stock location is used for.
type LocationUsage string

const (
	// UsageInternal marks storage locations owned by the company.
	UsageInternal LocationUsage = "INTERNAL"
	// UsageCustomer marks delivery destinations (consumption).
	UsageCustomer LocationUsage = "CUSTOMER"
	// UsageProduction marks locations consumed by manufacturing.
	UsageProduction LocationUsage = "PRODUCTION"
	// UsageSupplier marks inbound origin locations.
	UsageSupplier LocationUsage = "SUPPLIER"
)

// Location represents a stock location inside a warehouse.
type Location struct {
	ID          int64         `json:"id"`
	WarehouseID int64         `json:"warehouse_id"`
	Code        string        `json:"code"`
	Name        string        `json:"name"`
	Usage       LocationUsage `json:"usage"`
}
