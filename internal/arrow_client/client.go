package arrow_client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/longbow-attnmock/internal/fixture"
	"github.com/23skdu/longbow-attnmock/internal/logger"
)

// DefaultPort is the conventional Arrow Flight port
const DefaultPort = 8815

// Publisher sends fixtures to a Flight endpoint
type Publisher interface {
	Connect(ctx context.Context) error
	DoPut(ctx context.Context, path string, rec *fixture.Record) error
	Close() error
}

// FlightClient wraps Apache Arrow Flight for fixture transport
type FlightClient struct {
	client  flight.Client
	addr    string
	timeout time.Duration
	mem     memory.Allocator
}

// NewFlightClient creates a client for addr ("host:port" or "host")
func NewFlightClient(addr string, timeout time.Duration) (*FlightClient, error) {
	if addr == "" {
		return nil, errors.New("flight address must not be empty")
	}
	if err := validateAddr(addr); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FlightClient{
		addr:    normalizeAddr(addr),
		timeout: timeout,
		mem:     memory.NewGoAllocator(),
	}, nil
}

// Connect establishes connection to Flight server
func (fc *FlightClient) Connect(ctx context.Context) error {
	client, err := flight.NewClientWithMiddleware(fc.addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create Flight client: %w", err)
	}
	fc.client = client
	return nil
}

// Close disconnects from Flight server
func (fc *FlightClient) Close() error {
	if fc.client != nil {
		err := fc.client.Close()
		fc.client = nil
		return err
	}
	return nil
}

// DoPut streams rec as one record batch per head under a path descriptor
func (fc *FlightClient) DoPut(ctx context.Context, path string, rec *fixture.Record) error {
	if fc.client == nil {
		return fmt.Errorf("client not connected, call Connect() first")
	}
	if len(rec.Attention) == 0 {
		return fmt.Errorf("no attention heads to send")
	}

	ctx, cancel := context.WithTimeout(ctx, fc.timeout)
	defer cancel()

	schema, recs, err := fixture.Records(fc.mem, rec)
	if err != nil {
		return fmt.Errorf("failed to encode fixture: %w", err)
	}
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()

	stream, err := fc.client.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("failed to open DoPut stream: %w", err)
	}

	w := flight.NewRecordWriter(stream, ipc.WithSchema(schema), ipc.WithAllocator(fc.mem))
	w.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{path},
	})
	for i, r := range recs {
		if err := w.Write(r); err != nil {
			w.Close()
			return fmt.Errorf("failed to write head %d: %w", i, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close send: %w", err)
	}

	// Drain acknowledgements until the server ends the stream.
	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("flight put failed: %w", err)
		}
	}

	logger.Log.Debug("Fixture sent over Flight", "addr", fc.addr, "path", path, "heads", len(recs))
	return nil
}

func validateAddr(addr string) error {
	_, port, err := net.SplitHostPort(normalizeAddr(addr))
	if err != nil {
		return fmt.Errorf("invalid flight address %q: %w", addr, err)
	}
	if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("invalid flight port %q in %q", port, addr)
	}
	return nil
}

// normalizeAddr appends DefaultPort when addr carries no port.
func normalizeAddr(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
}
