// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package classifier

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// The inference service speaks plain protobuf well-known types so neither
// side needs generated stubs.
//
//	Prepare  {model, accelerator, rows, cols}           -> {}
//	Classify {model, accelerator, rows, cols, features} -> {scores}
//
// features is the row-major (rows x cols) matrix; scores follow Classes order.
const (
	serviceName    = "relabs.activity.v1.Classifier"
	prepareMethod  = "/" + serviceName + "/Prepare"
	classifyMethod = "/" + serviceName + "/Classify"
)

// RemoteLoader loads classifiers hosted by a remote inference service.
type RemoteLoader struct {
	conn   grpc.ClientConnInterface
	closer io.Closer
	rows   int
	cols   int
}

// Dial connects to the inference service at addr. rows and cols are the
// feature matrix shape the model expects.
func Dial(addr string, rows, cols int) (*RemoteLoader, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	l := NewRemoteLoader(conn, rows, cols)
	l.closer = conn
	return l, nil
}

// NewRemoteLoader wraps an existing connection. Used by tests and callers
// that manage their own connection.
func NewRemoteLoader(conn grpc.ClientConnInterface, rows, cols int) *RemoteLoader {
	return &RemoteLoader{conn: conn, rows: rows, cols: cols}
}

// Close shuts down the connection if Dial opened it.
func (l *RemoteLoader) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Load asks the service to prepare model on accelerator.
func (l *RemoteLoader) Load(ctx context.Context, model string, accelerator Accelerator) (Classifier, error) {
	req, err := structpb.NewStruct(map[string]any{
		"model":       model,
		"accelerator": string(accelerator),
		"rows":        l.rows,
		"cols":        l.cols,
	})
	if err != nil {
		return nil, fmt.Errorf("classifier: encode prepare request: %w", err)
	}
	if err := l.conn.Invoke(ctx, prepareMethod, req, new(structpb.Struct)); err != nil {
		return nil, fromStatus(err)
	}
	return &remoteClassifier{
		conn:        l.conn,
		model:       model,
		accelerator: accelerator,
		rows:        l.rows,
		cols:        l.cols,
	}, nil
}

type remoteClassifier struct {
	conn        grpc.ClientConnInterface
	model       string
	accelerator Accelerator
	rows        int
	cols        int
}

func (c *remoteClassifier) Classify(ctx context.Context, features *mat.Dense) ([]Prediction, error) {
	if err := CheckShape(features, c.rows, c.cols); err != nil {
		return nil, err
	}

	values := make([]*structpb.Value, 0, c.rows*c.cols)
	for i := 0; i < c.rows; i++ {
		for _, v := range features.RawRowView(i) {
			values = append(values, structpb.NewNumberValue(v))
		}
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"model":       structpb.NewStringValue(c.model),
		"accelerator": structpb.NewStringValue(string(c.accelerator)),
		"rows":        structpb.NewNumberValue(float64(c.rows)),
		"cols":        structpb.NewNumberValue(float64(c.cols)),
		"features":    structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, classifyMethod, req, resp); err != nil {
		return nil, fromStatus(err)
	}

	list := resp.GetFields()["scores"].GetListValue()
	if list == nil {
		return nil, errors.New("classifier: response has no scores")
	}
	scores := make([]float64, len(list.GetValues()))
	for i, v := range list.GetValues() {
		scores[i] = v.GetNumberValue()
	}
	return Rank(scores)
}

// fromStatus maps service status codes back onto the package sentinels.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("classifier: remote: %w", err)
	}
	switch st.Code() {
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", ErrAcceleratorUnavailable, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrModelNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrErroneousInputShape, st.Message())
	default:
		return fmt.Errorf("classifier: remote: %w", err)
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, ErrAcceleratorUnavailable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrModelNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrErroneousInputShape):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
