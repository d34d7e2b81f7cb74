package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"

	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
)

var serverStream = &grpc.StreamDesc{ServerStreams: true}

// newStream opens a server-streaming call and sends its only request
func (c *Client) newStream(ctx context.Context, method string, req any) (grpc.ClientStream, error) {
	stream, err := c.conn.NewStream(ctx, serverStream, method)
	if err != nil {
		c.record(method, err)
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		c.record(method, err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		c.record(method, err)
		return nil, fmt.Errorf("failed to close send: %w", err)
	}
	return stream, nil
}

func (c *Client) openStream(ctx context.Context, method string, req any) (types.ProgressStream, error) {
	stream, err := c.newStream(ctx, method, req)
	if err != nil {
		return nil, err
	}
	return &progressStream{stream: stream, method: method, client: c}, nil
}

// progressStream adapts a gRPC stream to types.ProgressStream
type progressStream struct {
	stream grpc.ClientStream
	method string
	client *Client
	done   bool
}

func (s *progressStream) Recv() (*types.ProgressChunk, error) {
	chunk := new(types.ProgressChunk)
	err := s.stream.RecvMsg(chunk)
	if err != nil {
		if !s.done {
			s.done = true
			if isEOF(err) {
				s.client.record(s.method, nil)
			} else {
				s.client.record(s.method, err)
			}
		}
		return nil, err
	}
	return chunk, nil
}

// BoardStream is a blocking iterator over discovery events
type BoardStream interface {
	Recv() (*BoardEvent, error)
}

type boardStream struct {
	stream grpc.ClientStream
}

func (s *boardStream) Recv() (*BoardEvent, error) {
	ev := new(BoardEvent)
	if err := s.stream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
