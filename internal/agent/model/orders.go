package model

import "fmt"

type OrderRecord struct {
	OrderID   string `json:"orderId"`
	OrderItem string `json:"orderItem"`
	Status    string `json:"status"`
	Location  string `json:"location"`
}

// String renders the record as a single prompt context line.
func (r OrderRecord) String() string {
	return fmt.Sprintf("Item: %s | ID: %s | Status: %s | Loc: %s", r.OrderItem, r.OrderID, r.Status, r.Location)
}
