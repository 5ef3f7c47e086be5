package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

func postJSON(t *testing.T, handlerFunc http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	handlerFunc(rr, req)
	return rr
}

func TestStartPaymentHandlerConvertsMajorUnits(t *testing.T) {
	f := newReconcileFixture(t)
	handler := NewHandler(f.service, 50000, logging.Default())
	appt := f.bookAppointment(t)

	rr := postJSON(t, handler.StartPayment, "/payment/start-payment", map[string]any{
		"amount":         500,
		"email":          "ada@example.com",
		"full_name":      "Ada Obi",
		"appointment_id": appt.ID.String(),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp StartPaymentResult
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.AuthorizationURL == "" {
		t.Fatal("missing authorization url")
	}
	if f.gateway.lastInitiate.AmountMinor != 50000 {
		t.Fatalf("minor units = %d, want 50000", f.gateway.lastInitiate.AmountMinor)
	}
}

func TestStartPaymentHandlerDefaultsToConsultationFee(t *testing.T) {
	f := newReconcileFixture(t)
	handler := NewHandler(f.service, 50000, logging.Default())
	appt := f.bookAppointment(t)

	rr := postJSON(t, handler.StartPayment, "/payment/start-payment", map[string]any{
		"email":          "ada@example.com",
		"appointment_id": appt.ID.String(),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if f.gateway.lastInitiate.AmountMinor != 50000 {
		t.Fatalf("minor units = %d, want the configured consultation fee", f.gateway.lastInitiate.AmountMinor)
	}
}

func TestStartPaymentHandlerErrors(t *testing.T) {
	f := newReconcileFixture(t)
	handler := NewHandler(f.service, 50000, logging.Default())
	appt := f.bookAppointment(t)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"malformed id", map[string]any{"amount": 500, "email": "a@b.c", "appointment_id": "not-a-uuid"}, http.StatusBadRequest},
		{"missing email", map[string]any{"amount": 500, "appointment_id": appt.ID.String()}, http.StatusBadRequest},
		{"negative amount", map[string]any{"amount": -5, "email": "a@b.c", "appointment_id": appt.ID.String()}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postJSON(t, handler.StartPayment, "/payment/start-payment", tc.body)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestCreatePaymentHandlerSettles(t *testing.T) {
	f := newReconcileFixture(t)
	handler := NewHandler(f.service, 50000, logging.Default())
	appt := f.bookAppointment(t)
	started, err := f.service.StartPayment(context.Background(), StartPaymentParams{
		AppointmentID: appt.ID,
		AmountMinor:   50000,
		Email:         "ada@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}

	rr := postJSON(t, handler.CreatePayment, "/payment/create-payment", map[string]any{"reference": started.Reference})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var rec PaymentRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Reference != started.Reference {
		t.Fatalf("reference = %q", rec.Reference)
	}
	if got := f.status(t, appt.ID); got != appointments.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", got)
	}
}

func TestCreatePaymentHandlerFailureStatuses(t *testing.T) {
	f := newReconcileFixture(t)
	handler := NewHandler(f.service, 50000, logging.Default())
	appt := f.bookAppointment(t)
	started, err := f.service.StartPayment(context.Background(), StartPaymentParams{
		AppointmentID: appt.ID,
		AmountMinor:   50000,
		Email:         "ada@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.gateway.failVerification(started.Reference)

	rr := postJSON(t, handler.CreatePayment, "/payment/create-payment", map[string]any{"reference": started.Reference})
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("failed payment status = %d", rr.Code)
	}

	rr = postJSON(t, handler.CreatePayment, "/payment/create-payment", map[string]any{"reference": ""})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty reference status = %d", rr.Code)
	}

	rr = postJSON(t, handler.CreatePayment, "/payment/create-payment", map[string]any{"reference": "ref-unknown"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown reference status = %d", rr.Code)
	}
}
