package server

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nupi-ai/whisper-runtime/internal/whisper"
)

// Client calls a remote Transcriber.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens a plaintext connection to addr that speaks the JSON codec by default.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	return grpc.NewClient(addr, append(base, opts...)...)
}

// Info calls Transcriber/Info.
func (c *Client) Info(ctx context.Context, opts ...grpc.CallOption) (*InfoResponse, error) {
	out := new(InfoResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Info", &InfoRequest{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Transcribe sends req and calls onSegment, which may be nil, for every streamed
// segment. It returns the final response.
func (c *Client) Transcribe(ctx context.Context, req *TranscribeRequest, onSegment func(whisper.Segment), opts ...grpc.CallOption) (*TranscribeResponse, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Transcribe", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	for {
		resp := new(TranscribeResponse)
		if err := stream.RecvMsg(resp); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("server: stream ended without a final response")
			}
			return nil, err
		}
		if resp.Final {
			return resp, nil
		}
		if resp.Segment != nil && onSegment != nil {
			onSegment(*resp.Segment)
		}
	}
}
