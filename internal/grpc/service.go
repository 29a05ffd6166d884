// Package grpc serves and consumes remote S-box analysis over gRPC. Requests
// and responses are google.protobuf.Struct messages, so no generated code is
// needed: the request carries "table" (list of integers) and "metrics" (list
// of names), the response is the JSON form of analysis.Report.
package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/sbox"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "sboxanalyzer.v1.Analyzer"
	// AnalyzeMethod is the full method path of the unary Analyze call.
	AnalyzeMethod = "/" + ServiceName + "/Analyze"
)

// AnalyzerServer is implemented by Server.
type AnalyzerServer interface {
	Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the Analyzer service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalyzerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Analyze",
			Handler:    analyzeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sboxanalyzer/v1/analyzer.proto",
}

func analyzeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: AnalyzeMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServer).Analyze(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// EncodeRequest builds the Analyze request message.
func EncodeRequest(raw []int, selected []analysis.Metric) (*structpb.Struct, error) {
	table := make([]any, len(raw))
	for i, v := range raw {
		table[i] = v
	}
	names := make([]any, len(selected))
	for i, m := range selected {
		names[i] = string(m)
	}

	req, err := structpb.NewStruct(map[string]any{
		"table":   table,
		"metrics": names,
	})
	if err != nil {
		return nil, fmt.Errorf("grpc: encode request: %w", err)
	}
	return req, nil
}

// DecodeRequest extracts the table and metric names from req. Malformed
// requests return an error wrapping sbox.ErrInvalidInput.
func DecodeRequest(req *structpb.Struct) ([]int, []string, error) {
	fields := req.GetFields()

	tableValue, ok := fields["table"]
	if !ok {
		return nil, nil, fmt.Errorf("%w: request has no table", sbox.ErrInvalidInput)
	}
	list := tableValue.GetListValue()
	if list == nil {
		return nil, nil, fmt.Errorf("%w: table must be a list", sbox.ErrInvalidInput)
	}

	raw := make([]int, len(list.GetValues()))
	for i, v := range list.GetValues() {
		number, isNumber := v.GetKind().(*structpb.Value_NumberValue)
		if !isNumber || number.NumberValue != math.Trunc(number.NumberValue) {
			return nil, nil, fmt.Errorf("%w: table entry %d is not an integer", sbox.ErrInvalidInput, i)
		}
		raw[i] = int(number.NumberValue)
	}

	var names []string
	if metricsValue, ok := fields["metrics"]; ok {
		for i, v := range metricsValue.GetListValue().GetValues() {
			name, isString := v.GetKind().(*structpb.Value_StringValue)
			if !isString {
				return nil, nil, fmt.Errorf("%w: metric %d is not a string", analysis.ErrUnknownMetric, i)
			}
			names = append(names, name.StringValue)
		}
	}
	return raw, names, nil
}

// EncodeReport converts a report into its Struct form.
func EncodeReport(r analysis.Report) (*structpb.Struct, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("grpc: encode report: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("grpc: encode report: %w", err)
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("grpc: encode report: %w", err)
	}
	return out, nil
}

// DecodeReport converts a Struct response back into a report.
func DecodeReport(s *structpb.Struct) (analysis.Report, error) {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return analysis.Report{}, fmt.Errorf("grpc: decode report: %w", err)
	}
	var r analysis.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return analysis.Report{}, fmt.Errorf("grpc: decode report: %w", err)
	}
	return r, nil
}
