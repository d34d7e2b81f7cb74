package tracing

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HTTPMiddleware opens one span per request. The trace ID is taken from
// the request header when present and echoed on the response.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if given := c.GetHeader(Header); given != "" {
			ctx = WithTrace(ctx, TraceID(given))
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+route)
		c.Request = c.Request.WithContext(ctx)
		c.Header(Header, string(span.TraceID))

		c.Next()

		span.Status = c.Writer.Status()
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		tracer.Submit(span)
	}
}

// UnaryClientInterceptor times CLI daemon calls and forwards the trace ID
// as request metadata.
func UnaryClientInterceptor(tracer *Tracer) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		span, ctx := tracer.StartSpan(ctx, method)
		span.SetTag("rpc.kind", "unary")

		ctx = metadata.AppendToOutgoingContext(ctx, metadataKey, string(span.TraceID))
		err := invoker(ctx, method, req, reply, cc, opts...)
		if err != nil {
			span.SetError(err)
			span.SetTag("rpc.code", status.Code(err).String())
		}
		tracer.Submit(span)
		return err
	}
}

// StreamClientInterceptor times server-streaming daemon calls from open
// until the stream ends.
func StreamClientInterceptor(tracer *Tracer) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		span, ctx := tracer.StartSpan(ctx, method)
		span.SetTag("rpc.kind", "stream")

		ctx = metadata.AppendToOutgoingContext(ctx, metadataKey, string(span.TraceID))
		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			span.SetError(err)
			tracer.Submit(span)
			return nil, err
		}
		return &tracedClientStream{ClientStream: cs, tracer: tracer, span: span}, nil
	}
}

// tracedClientStream submits its span when the stream ends
type tracedClientStream struct {
	grpc.ClientStream
	tracer *Tracer
	span   *Span
	once   sync.Once
}

func (s *tracedClientStream) RecvMsg(m any) error {
	err := s.ClientStream.RecvMsg(m)
	if err != nil {
		s.once.Do(func() {
			if !errors.Is(err, io.EOF) {
				s.span.SetError(err)
			}
			s.tracer.Submit(s.span)
		})
	}
	return err
}
