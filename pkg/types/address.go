package types

import "strings"

// Address is the shipping or billing snapshot stored on an order.
type Address struct {
	FullName   string  `json:"full_name" validate:"required,max=120"`
	Line1      string  `json:"line1" validate:"required,max=200"`
	Line2      *string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string  `json:"city" validate:"required,max=100"`
	State      string  `json:"state" validate:"required,max=100"`
	PostalCode string  `json:"postal_code" validate:"required,max=20"`
	Country    string  `json:"country" validate:"required,len=2"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// Normalized trims every field and upper-cases the country code.
func (a Address) Normalized() Address {
	out := Address{
		FullName:   strings.TrimSpace(a.FullName),
		Line1:      strings.TrimSpace(a.Line1),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
	}
	if a.Line2 != nil {
		if v := strings.TrimSpace(*a.Line2); v != "" {
			out.Line2 = &v
		}
	}
	if a.Phone != nil {
		if v := strings.TrimSpace(*a.Phone); v != "" {
			out.Phone = &v
		}
	}
	return out
}
