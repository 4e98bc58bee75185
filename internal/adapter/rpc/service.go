package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "stock.inventory.v1.InventoryService"

	FullMethodGetInventory     = "/" + ServiceName + "/GetInventory"
	FullMethodUpdateInventory  = "/" + ServiceName + "/UpdateInventory"
	FullMethodReleaseInventory = "/" + ServiceName + "/ReleaseInventory"
)

type InventoryServer interface {
	GetInventory(ctx context.Context, req *GetInventoryRequest) (*InventoryMessage, error)
	UpdateInventory(ctx context.Context, req *UpdateInventoryRequest) (*UpdateInventoryResponse, error)
	ReleaseInventory(ctx context.Context, req *ReleaseInventoryRequest) (*ReleaseInventoryResponse, error)
}

func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&InventoryServiceDesc, srv)
}

var InventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetInventory", Handler: getInventoryHandler},
		{MethodName: "UpdateInventory", Handler: updateInventoryHandler},
		{MethodName: "ReleaseInventory", Handler: releaseInventoryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stock/inventory/v1",
}

func getInventoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetInventoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServer).GetInventory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethodGetInventory}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServer).GetInventory(ctx, req.(*GetInventoryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func updateInventoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdateInventoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServer).UpdateInventory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethodUpdateInventory}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServer).UpdateInventory(ctx, req.(*UpdateInventoryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func releaseInventoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReleaseInventoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServer).ReleaseInventory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethodReleaseInventory}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServer).ReleaseInventory(ctx, req.(*ReleaseInventoryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// InventoryServiceClient calls the inventory service with the JSON codec.
type InventoryServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryServiceClient(cc grpc.ClientConnInterface) *InventoryServiceClient {
	return &InventoryServiceClient{cc: cc}
}

func (c *InventoryServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *InventoryServiceClient) GetInventory(ctx context.Context, in *GetInventoryRequest, opts ...grpc.CallOption) (*InventoryMessage, error) {
	out := new(InventoryMessage)
	if err := c.invoke(ctx, FullMethodGetInventory, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryServiceClient) UpdateInventory(ctx context.Context, in *UpdateInventoryRequest, opts ...grpc.CallOption) (*UpdateInventoryResponse, error) {
	out := new(UpdateInventoryResponse)
	if err := c.invoke(ctx, FullMethodUpdateInventory, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryServiceClient) ReleaseInventory(ctx context.Context, in *ReleaseInventoryRequest, opts ...grpc.CallOption) (*ReleaseInventoryResponse, error) {
	out := new(ReleaseInventoryResponse)
	if err := c.invoke(ctx, FullMethodReleaseInventory, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
