package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/fleetpulse/fleetpulse/pkg/types"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "fleetpulse.v1.ReportService"

	// SendReportMethod is the full method name of the SendReport RPC.
	SendReportMethod = "/" + ServiceName + "/SendReport"
)

// SendResponse acknowledges one shipped report.
type SendResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// ReportServiceServer is implemented by the server-side receiver.
type ReportServiceServer interface {
	SendReport(context.Context, *types.Report) (*SendResponse, error)
}

// RegisterReportServiceServer attaches srv to a gRPC server.
func RegisterReportServiceServer(s grpc.ServiceRegistrar, srv ReportServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendReport", Handler: sendReportHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fleetpulse/v1/report",
}

func sendReportHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(types.Report)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportServiceServer).SendReport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SendReportMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReportServiceServer).SendReport(ctx, req.(*types.Report))
	}
	return interceptor(ctx, in, info, handler)
}

// ReportServiceClient calls ReportService over an established connection.
type ReportServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewReportServiceClient wraps cc.
func NewReportServiceClient(cc grpc.ClientConnInterface) *ReportServiceClient {
	return &ReportServiceClient{cc: cc}
}

// SendReport ships one report and returns the server's acknowledgement.
func (c *ReportServiceClient) SendReport(ctx context.Context, in *types.Report, opts ...grpc.CallOption) (*SendResponse, error) {
	out := new(SendResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, SendReportMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
