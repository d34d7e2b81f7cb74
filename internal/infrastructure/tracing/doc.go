/*
Package tracing correlates HTTP requests with the CLI daemon calls made on
their behalf.

Every request gets a trace ID (taken from the X-Request-ID header or
generated) that is echoed on the response and forwarded to the daemon as
x-request-id metadata. Spans are collected off the request path and
written to the log: failures at warn level, everything else at debug.

# Usage

	tracer := tracing.New(logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	client, err := cli.New(addr, cli.WithDialOptions(
		grpc.WithChainUnaryInterceptor(tracing.UnaryClientInterceptor(tracer)),
		grpc.WithChainStreamInterceptor(tracing.StreamClientInterceptor(tracer)),
	))
*/
package tracing
