package fulfill

// CancelPayload is the fixed cancellation request payload. Construction is
// pure and independently callable: in dry-run the payload is shown to the
// operator but never sent.
type CancelPayload struct {
	Operation                string `json:"operation"`
	SellerFulfillmentOrderID string `json:"sellerFulfillmentOrderId"`
	ReasonCode               string `json:"reasonCode"`
	Comment                  string `json:"comment"`
}

// BuildCancelPayload constructs the cancellation payload for an order.
func BuildCancelPayload(orderID string) CancelPayload {
	return CancelPayload{
		Operation:                "cancel_fulfillment_order",
		SellerFulfillmentOrderID: orderID,
		ReasonCode:               "CustomerRequest",
		Comment:                  "Automated cancellation request",
	}
}
