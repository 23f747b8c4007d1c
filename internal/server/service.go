package server

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "whisper.v1.Transcriber"

// TranscriberServer is the server API for the Transcriber service.
type TranscriberServer interface {
	Info(context.Context, *InfoRequest) (*InfoResponse, error)
	Transcribe(*TranscribeRequest, TranscribeStream) error
}

// TranscribeStream is the server side of Transcriber/Transcribe.
type TranscribeStream interface {
	Send(*TranscribeResponse) error
	grpc.ServerStream
}

type transcribeStream struct {
	grpc.ServerStream
}

func (s *transcribeStream) Send(m *TranscribeResponse) error {
	return s.ServerStream.SendMsg(m)
}

func infoHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TranscriberServer).Info(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/Info",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TranscriberServer).Info(ctx, req.(*InfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func transcribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(TranscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TranscriberServer).Transcribe(in, &transcribeStream{stream})
}

// ServiceDesc describes the Transcriber service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TranscriberServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Info", Handler: infoHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Transcribe", Handler: transcribeHandler, ServerStreams: true},
	},
	Metadata: "whisper/v1/transcriber.json",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv TranscriberServer) {
	s.RegisterService(&ServiceDesc, srv)
}
