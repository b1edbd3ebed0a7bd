package types

// Address is the shipping destination snapshot stored on orders and
// shipments. It is frozen at checkout time and never re-resolved.
type Address struct {
	Name       string  `json:"name"`
	Phone      string  `json:"phone,omitempty"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
	Country    string  `json:"country"`
}
