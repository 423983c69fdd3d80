package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheck_PlainHTTPIsNil(t *testing.T) {
	if cs := Check(context.Background(), "http://pi.hole/admin/api.php", false); cs != nil {
		t.Errorf("Check(http) = %+v, want nil", cs)
	}
}

func TestCheck_SelfSignedCert(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	cs := Check(context.Background(), srv.URL+"/admin/api.php", true)
	if cs == nil {
		t.Fatal("Check returned nil for https")
	}
	// httptest's certificate is valid until 2084.
	if cs.Status != StatusValid {
		t.Errorf("Status = %q, want %q", cs.Status, StatusValid)
	}
	if cs.DaysLeft <= expiringDays {
		t.Errorf("DaysLeft = %d", cs.DaysLeft)
	}
	if cs.NotAfter.IsZero() {
		t.Error("NotAfter not set")
	}
}

func TestCheck_VerificationFailureIsUnreachable(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	cs := Check(context.Background(), srv.URL, false)
	if cs == nil || cs.Status != StatusUnreachable {
		t.Errorf("Check without skip-verify = %+v, want unreachable", cs)
	}
}

func TestWatch_ReportsUntilCancelled(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	reports := make(chan *CertStatus, 8)
	done := make(chan struct{})
	go func() {
		Watch(ctx, srv.URL, true, 10*time.Millisecond, func(cs *CertStatus) {
			select {
			case reports <- cs:
			default:
			}
		})
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case cs := <-reports:
			if cs.Status != StatusValid {
				t.Errorf("report %d: Status = %q", i, cs.Status)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no report within 5s")
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
