package arrow_client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"

	"github.com/23skdu/longbow-attnmock/internal/attention"
	"github.com/23skdu/longbow-attnmock/internal/fixture"
	"github.com/23skdu/longbow-attnmock/internal/tokens"
)

// captureServer records what DoPut receives.
type captureServer struct {
	flight.BaseFlightServer

	mu    sync.Mutex
	path  []string
	rows  int64
	heads map[int32]bool
}

func (s *captureServer) DoPut(stream flight.FlightService_DoPutServer) error {
	rdr, err := flight.NewRecordReader(stream)
	if err != nil {
		return err
	}
	defer rdr.Release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if desc := rdr.LatestFlightDescriptor(); desc != nil {
		s.path = desc.Path
	}
	for rdr.Next() {
		rec := rdr.Record()
		s.rows += rec.NumRows()
		hc := rec.Column(0).(*array.Int32)
		for i := 0; i < hc.Len(); i++ {
			s.heads[hc.Value(i)] = true
		}
	}
	if err := rdr.Err(); err != nil {
		return err
	}
	return stream.Send(&flight.PutResult{})
}

func startServer(t *testing.T) (*captureServer, string) {
	t.Helper()
	svc := &captureServer{heads: make(map[int32]bool)}
	srv := flight.NewServerWithMiddleware(nil)
	if err := srv.Init("localhost:0"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	srv.RegisterFlightService(svc)
	go srv.Serve()
	t.Cleanup(srv.Shutdown)
	return svc, srv.Addr().String()
}

func testRecord(t *testing.T, heads int) *fixture.Record {
	t.Helper()
	seq, err := tokens.Build(tokens.Spec{Rows: 2, Cols: 2, ClassToken: "[CLS]", Trailing: []string{" hi"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	set, err := (&attention.Generator{Tokens: seq.Len(), Dense: seq.DenseRange(), Heads: heads, Precision: 3}).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return fixture.NewRecord(seq, set, "")
}

func TestNewFlightClient(t *testing.T) {
	client, err := NewFlightClient("localhost", 0)
	if err != nil {
		t.Fatalf("Failed to create FlightClient: %v", err)
	}
	if client.addr != "localhost:8815" {
		t.Errorf("expected default port, got %q", client.addr)
	}
	if client.timeout != 30*time.Second {
		t.Errorf("expected default timeout, got %v", client.timeout)
	}

	if _, err := NewFlightClient("", time.Second); err == nil {
		t.Error("expected error for empty address")
	}
	if _, err := NewFlightClient("localhost:notaport", time.Second); err == nil {
		t.Error("expected error for bad port")
	}
}

func TestDoPutReturnsErrorWhenNotConnected(t *testing.T) {
	client, _ := NewFlightClient("localhost:8815", time.Second)

	err := client.DoPut(context.Background(), "mock", testRecord(t, 1))
	if err == nil {
		t.Fatal("Expected error when client not connected")
	}
	if !strings.Contains(err.Error(), "not connected") {
		t.Errorf("Expected 'not connected' error, got: %v", err)
	}
}

func TestDoPutRoundTrip(t *testing.T) {
	svc, addr := startServer(t)

	client, err := NewFlightClient(addr, 5*time.Second)
	if err != nil {
		t.Fatalf("NewFlightClient: %v", err)
	}
	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	rec := testRecord(t, 3)
	if err := client.DoPut(ctx, "attention/mock", rec); err != nil {
		t.Fatalf("DoPut: %v", err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.path) != 1 || svc.path[0] != "attention/mock" {
		t.Errorf("descriptor path = %v", svc.path)
	}
	if want := int64(3 * len(rec.Tokens)); svc.rows != want {
		t.Errorf("rows = %d, want %d", svc.rows, want)
	}
	if len(svc.heads) != 3 {
		t.Errorf("heads seen = %v", svc.heads)
	}
}

func TestMockFlightClient(t *testing.T) {
	m := NewMockFlightClient()
	ctx := context.Background()
	rec := testRecord(t, 1)

	if err := m.DoPut(ctx, "a", rec); err == nil {
		t.Error("expected error before Connect")
	}
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := m.DoPut(ctx, "a", rec); err != nil {
		t.Fatalf("DoPut: %v", err)
	}
	if got := m.GetStoredData()["a"]; got != rec {
		t.Error("stored record mismatch")
	}

	boom := errors.New("unavailable")
	m.FailPuts(boom)
	if err := m.DoPut(ctx, "b", rec); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
	m.Close()
}

var _ Publisher = (*FlightClient)(nil)
var _ Publisher = (*MockFlightClient)(nil)
