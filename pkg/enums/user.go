package enums

import "fmt"

// Gender is stored on user profiles.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

var validGenders = []Gender{GenderMale, GenderFemale, GenderOther}

// IsValid reports whether the value is a known Gender.
func (g Gender) IsValid() bool {
	for _, candidate := range validGenders {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGender converts raw input into a Gender.
func ParseGender(value string) (Gender, error) {
	for _, candidate := range validGenders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gender %q", value)
}

// InvoiceDelivery selects how invoices reach the customer.
type InvoiceDelivery string

const (
	InvoiceDeliveryElectronic InvoiceDelivery = "electronic"
	InvoiceDeliveryPaper      InvoiceDelivery = "paper"
)

// IsValid reports whether the value is a known InvoiceDelivery.
func (d InvoiceDelivery) IsValid() bool {
	return d == InvoiceDeliveryElectronic || d == InvoiceDeliveryPaper
}
