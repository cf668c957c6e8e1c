package transport

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/jsoncodec"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
)

func init() {
	encoding.RegisterCodec(jsoncodec.Codec{})
}

// reverseCallDesc describes every reverse call method: one bidirectional stream.
var reverseCallDesc = grpc.StreamDesc{
	ClientStreams: true,
	ServerStreams: true,
}

// DialRuntime creates a client connection to the Runtime at target. The
// connection is plaintext and uses the JSON codec unless opts say otherwise.
// No I/O happens until the first stream is opened.
func DialRuntime(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	defaults := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsoncodec.Name)),
	}
	conn, err := grpc.NewClient(target, append(defaults, opts...)...)
	if err != nil {
		return nil, &errpkg.CouldNotConnectError{Target: target, Err: err}
	}
	return conn, nil
}

// GRPCCaller opens reverse call streams over a gRPC connection.
type GRPCCaller struct {
	conn   grpc.ClientConnInterface
	target string
}

// NewGRPCCaller wraps conn. Close closes conn when it is closable.
func NewGRPCCaller(conn grpc.ClientConnInterface) *GRPCCaller {
	target := "runtime"
	if cc, ok := conn.(*grpc.ClientConn); ok {
		target = cc.Target()
	}
	return &GRPCCaller{conn: conn, target: target}
}

var _ reversecall.MethodCaller = (*GRPCCaller)(nil)

// Call opens a bidirectional stream for method.
func (c *GRPCCaller) Call(ctx context.Context, method string) (reversecall.RawStream, error) {
	stream, err := c.conn.NewStream(ctx, &reverseCallDesc, method, grpc.CallContentSubtype(jsoncodec.Name))
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			return nil, &errpkg.CouldNotConnectError{Target: c.target, Err: err}
		}
		return nil, err
	}
	return stream, nil
}

// Close closes the underlying connection.
func (c *GRPCCaller) Close() error {
	if closer, ok := c.conn.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
