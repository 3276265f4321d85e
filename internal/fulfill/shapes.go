package fulfill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// callShape is a pure adapter from canonical cancel arguments to the
// concrete request a particular API revision accepts. Shapes are tried in
// order; a shape rejection advances to the next, and only exhaustion is
// surfaced as an error.
type callShape struct {
	name  string
	build func(baseURL, orderID string) (*http.Request, error)
}

// cancelPath is the Fulfillment Outbound cancel operation path.
func cancelPath(baseURL, orderID string) string {
	return fmt.Sprintf("%s/fba/outbound/2020-07-01/fulfillmentOrders/%s/cancel", baseURL, orderID)
}

// cancelShapes lists the supported call shapes, newest first: the current
// snake_case body, the legacy camelCase body, and the positional path-only
// form older revisions accept.
var cancelShapes = []callShape{
	{
		name: "snake_case",
		build: func(baseURL, orderID string) (*http.Request, error) {
			body, err := json.Marshal(map[string]string{"seller_fulfillment_order_id": orderID})
			if err != nil {
				return nil, err
			}
			req, err := http.NewRequest(http.MethodPut, cancelPath(baseURL, orderID), bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		},
	},
	{
		name: "camelCase",
		build: func(baseURL, orderID string) (*http.Request, error) {
			body, err := json.Marshal(map[string]string{"sellerFulfillmentOrderId": orderID})
			if err != nil {
				return nil, err
			}
			req, err := http.NewRequest(http.MethodPut, cancelPath(baseURL, orderID), bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		},
	},
	{
		name: "positional",
		build: func(baseURL, orderID string) (*http.Request, error) {
			return http.NewRequest(http.MethodPut, cancelPath(baseURL, orderID), nil)
		},
	},
}
