// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package classifier

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server exposes a Loader over the same gRPC contract RemoteLoader speaks.
// It lets a host with a model runtime serve classifiers to pipelines on
// other devices.
type Server struct {
	loader Loader

	mu       sync.Mutex
	prepared map[preparedKey]Classifier
}

type preparedKey struct {
	model       string
	accelerator Accelerator
}

type classifyService interface {
	prepare(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	classify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*classifyService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Prepare", Handler: unaryHandler(prepareMethod, classifyService.prepare)},
		{MethodName: "Classify", Handler: unaryHandler(classifyMethod, classifyService.classify)},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterServer registers a Server backed by loader on s.
func RegisterServer(s grpc.ServiceRegistrar, loader Loader) *Server {
	srv := &Server{loader: loader, prepared: map[preparedKey]Classifier{}}
	s.RegisterService(&serviceDesc, srv)
	return srv
}

func unaryHandler(
	fullMethod string,
	call func(classifyService, context.Context, *structpb.Struct) (*structpb.Struct, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(classifyService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(classifyService), ctx, req.(*structpb.Struct))
		})
	}
}

func (s *Server) prepare(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := keyOf(req)
	if err != nil {
		return nil, err
	}
	c, err := s.loader.Load(ctx, key.model, key.accelerator)
	if err != nil {
		return nil, toStatus(err)
	}
	s.mu.Lock()
	s.prepared[key] = c
	s.mu.Unlock()
	return &structpb.Struct{}, nil
}

func (s *Server) classify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := keyOf(req)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	c, ok := s.prepared[key]
	s.mu.Unlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "model %q not prepared on %s", key.model, key.accelerator)
	}

	fields := req.GetFields()
	rows := int(fields["rows"].GetNumberValue())
	cols := int(fields["cols"].GetNumberValue())
	values := fields["features"].GetListValue().GetValues()
	if rows <= 0 || cols <= 0 || len(values) != rows*cols {
		return nil, status.Errorf(codes.InvalidArgument, "%d features for a %dx%d matrix", len(values), rows, cols)
	}
	data := make([]float64, len(values))
	for i, v := range values {
		data[i] = v.GetNumberValue()
	}

	preds, err := c.Classify(ctx, mat.NewDense(rows, cols, data))
	if err != nil {
		return nil, toStatus(err)
	}

	scores := make([]*structpb.Value, len(Classes))
	for i := range scores {
		scores[i] = structpb.NewNumberValue(0)
	}
	for _, p := range preds {
		if p.Label >= 0 && int(p.Label) < len(scores) {
			scores[p.Label] = structpb.NewNumberValue(p.Confidence)
		}
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"scores": structpb.NewListValue(&structpb.ListValue{Values: scores}),
	}}, nil
}

func keyOf(req *structpb.Struct) (preparedKey, error) {
	fields := req.GetFields()
	model := fields["model"].GetStringValue()
	if model == "" {
		return preparedKey{}, status.Error(codes.InvalidArgument, "missing model")
	}
	acc, err := ParseAccelerator(fields["accelerator"].GetStringValue())
	if err != nil {
		return preparedKey{}, status.Error(codes.InvalidArgument, fmt.Sprint(err))
	}
	return preparedKey{model: model, accelerator: acc}, nil
}
