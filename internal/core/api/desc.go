package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sogebot.events.v1.Admin"

// AdminServer is the admin API. Requests and responses are well-known
// protobuf messages so no generated code is needed.
type AdminServer interface {
	Fire(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TestFire(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	ListEventKinds(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOperations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRules(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteRule(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// AdminServiceDesc registers an AdminServer on a grpc.Server.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		method("Fire", AdminServer.Fire),
		method("Reset", AdminServer.Reset),
		method("TestFire", AdminServer.TestFire),
		method("ListEventKinds", AdminServer.ListEventKinds),
		method("ListOperations", AdminServer.ListOperations),
		method("ListRules", AdminServer.ListRules),
		method("GetRule", AdminServer.GetRule),
		method("SaveRule", AdminServer.SaveRule),
		method("DeleteRule", AdminServer.DeleteRule),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sogebot/events/v1/admin.proto",
}

func method[Resp proto.Message](name string, call func(AdminServer, context.Context, *structpb.Struct) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AdminServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(AdminServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// AdminClient calls the admin API over a client connection.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient creates a client.
func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

// Call invokes name with req and decodes the reply into out.
func (c *AdminClient) Call(ctx context.Context, name string, req *structpb.Struct, out proto.Message, opts ...grpc.CallOption) error {
	if req == nil {
		req = &structpb.Struct{}
	}
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+name, req, out, opts...)
}
