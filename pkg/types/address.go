package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Address is a postal address snapshot stored on users and orders as JSON.
type Address struct {
	FirstName   string  `json:"firstName" validate:"required"`
	LastName    string  `json:"lastName" validate:"required"`
	PhoneNumber string  `json:"phoneNumber" validate:"required"`
	Street      string  `json:"street" validate:"required,notblank"`
	City        string  `json:"city" validate:"required,notblank"`
	HomeNumber  string  `json:"homeNumber" validate:"required"`
	PostCode    int     `json:"postCode" validate:"required,gt=0"`
	AddInfo     *string `json:"addInfo,omitempty"`
}

// Validate reports the first missing required field.
func (a Address) Validate() error {
	required := map[string]string{
		"firstName":   a.FirstName,
		"lastName":    a.LastName,
		"phoneNumber": a.PhoneNumber,
		"street":      a.Street,
		"city":        a.City,
		"homeNumber":  a.HomeNumber,
	}
	for _, field := range []string{"firstName", "lastName", "phoneNumber", "street", "city", "homeNumber"} {
		if strings.TrimSpace(required[field]) == "" {
			return fmt.Errorf("address: missing %s", field)
		}
	}
	if a.PostCode <= 0 {
		return fmt.Errorf("address: missing postCode")
	}
	return nil
}

// Value marshals Address into a JSON column.
func (a Address) Value() (driver.Value, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes the JSON column.
func (a *Address) Scan(value interface{}) error {
	return scanJSON(value, a)
}

// AddressList is the user's saved delivery addresses plus the selected index.
type AddressList struct {
	List     []Address `json:"list"`
	Selected int       `json:"selected"`
}

// Current returns the selected delivery address, falling back to the first entry.
func (l AddressList) Current() (*Address, bool) {
	if len(l.List) == 0 {
		return nil, false
	}
	idx := l.Selected
	if idx < 0 || idx >= len(l.List) {
		idx = 0
	}
	addr := l.List[idx]
	return &addr, true
}

// Value marshals the list into a JSON column.
func (l AddressList) Value() (driver.Value, error) {
	if l.List == nil {
		l.List = []Address{}
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes the JSON column.
func (l *AddressList) Scan(value interface{}) error {
	if value == nil {
		*l = AddressList{List: []Address{}}
		return nil
	}
	return scanJSON(value, l)
}

func scanJSON(value interface{}, dest any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("json column: unsupported Scan type %T", value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
