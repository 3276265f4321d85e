package fulfill

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cancelbot/internal/config"
)

func testCreds() *config.FulfillmentConfig {
	return &config.FulfillmentConfig{
		RefreshToken:    "rt",
		LWAAppID:        "app",
		LWAClientSecret: "secret",
		AWSAccessKey:    "ak",
		AWSSecretKey:    "sk",
		Sandbox:         true,
		Timeout:         "5s",
	}
}

// newTestAdapter wires an adapter against an httptest server that issues
// tokens and handles the cancel endpoint with the given handler.
func newTestAdapter(t *testing.T, cancelHandler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/o2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/fba/outbound/2020-07-01/fulfillmentOrders/", cancelHandler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	adapter, err := NewAdapter(testCreds(), 5*time.Second)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	adapter.baseURL = srv.URL
	adapter.tokenURL = srv.URL + "/auth/o2/token"
	return adapter, srv
}

func TestBuildCancelPayload(t *testing.T) {
	p := BuildCancelPayload("Shopify #91057.1")

	if p.Operation != "cancel_fulfillment_order" {
		t.Errorf("Operation = %q", p.Operation)
	}
	if p.SellerFulfillmentOrderID != "Shopify #91057.1" {
		t.Errorf("SellerFulfillmentOrderID = %q", p.SellerFulfillmentOrderID)
	}
	if p.ReasonCode != "CustomerRequest" {
		t.Errorf("ReasonCode = %q", p.ReasonCode)
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"operation"`, `"sellerFulfillmentOrderId"`, `"reasonCode"`, `"comment"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("payload JSON missing key %s: %s", key, data)
		}
	}
}

func TestNewAdapterMissingCredentials(t *testing.T) {
	cfg := testCreds()
	cfg.RefreshToken = ""
	cfg.AWSSecretKey = ""

	_, err := NewAdapter(cfg, time.Second)
	if !errors.Is(err, ErrSetup) {
		t.Fatalf("err = %v, want ErrSetup", err)
	}
	if !strings.Contains(err.Error(), "refresh_token") || !strings.Contains(err.Error(), "aws_secret_key") {
		t.Errorf("error should name the missing credentials: %v", err)
	}
}

func TestCancelSuccessFirstShape(t *testing.T) {
	var gotBodies []string
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBodies = append(gotBodies, string(body))
		if r.Header.Get("x-amz-access-token") != "tok" {
			t.Errorf("missing access token header")
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"payload":{"status":"CANCELLED"}}`)
	})

	out := adapter.Cancel(context.Background(), "Shopify #91057.1")
	if !out.OK {
		t.Fatalf("Cancel failed: %v", out.Err)
	}
	if !strings.Contains(string(out.Payload), "CANCELLED") {
		t.Errorf("Payload = %s", out.Payload)
	}
	if len(gotBodies) != 1 || !strings.Contains(gotBodies[0], "seller_fulfillment_order_id") {
		t.Errorf("expected one snake_case attempt, got %v", gotBodies)
	}
}

func TestCancelFallsBackThroughShapes(t *testing.T) {
	attempt := 0
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		attempt++
		if attempt < 3 {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"errors":[{"code":"InvalidInput","message":"unknown parameter"}]}`)
			return
		}
		io.WriteString(w, `{"payload":{"status":"CANCELLED"}}`)
	})

	out := adapter.Cancel(context.Background(), "Shopify #1.1")
	if !out.OK {
		t.Fatalf("Cancel failed: %v", out.Err)
	}
	if attempt != 3 {
		t.Errorf("expected 3 shape attempts, got %d", attempt)
	}
}

func TestCancelAllShapesRejected(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"errors":[{"code":"InvalidInput","message":"unknown parameter"}]}`)
	})

	out := adapter.Cancel(context.Background(), "Shopify #1.1")
	if out.OK {
		t.Fatal("Cancel should have failed")
	}
	if !errors.Is(out.Err, ErrSignature) {
		t.Errorf("err = %v, want ErrSignature", out.Err)
	}
}

func TestCancelProviderBusinessError(t *testing.T) {
	attempt := 0
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		attempt++
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"errors":[{"code":"OrderNotCancellable","message":"already shipped"}]}`)
	})

	out := adapter.Cancel(context.Background(), "Shopify #2.1")
	if out.OK {
		t.Fatal("Cancel should have failed")
	}
	if !errors.Is(out.Err, ErrProvider) {
		t.Errorf("err = %v, want ErrProvider", out.Err)
	}
	if attempt != 1 {
		t.Errorf("business errors must not be retried across shapes, attempts=%d", attempt)
	}
}

func TestCancelTokenExchangeFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/o2/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"invalid_grant"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter, err := NewAdapter(testCreds(), 5*time.Second)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	adapter.baseURL = srv.URL
	adapter.tokenURL = srv.URL + "/auth/o2/token"

	out := adapter.Cancel(context.Background(), "Shopify #3.1")
	if out.OK || !errors.Is(out.Err, ErrSetup) {
		t.Errorf("err = %v, want ErrSetup", out.Err)
	}
}
