package searcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls a remote searcher. It satisfies worker.QueryHandler.
type Client struct {
	conn grpc.ClientConnInterface
	// closer is nil when the connection is owned by the caller.
	closer func() error
}

// DefaultDialOptions returns plaintext options with client-side tracing.
func DefaultDialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// Dial creates a client for target. Connection is lazy; the first call dials.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(target, append(DefaultDialOptions(), opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial searcher %s: %w", target, err)
	}
	return &Client{conn: conn, closer: conn.Close}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Search returns the content the searcher holds for id.
func (c *Client) Search(ctx context.Context, id int32) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, searchMethod, wrapperspb.Int32(id), out); err != nil {
		return "", fmt.Errorf("search %d: %w", id, err)
	}
	return out.GetValue(), nil
}

// Close releases the connection if Dial created it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
