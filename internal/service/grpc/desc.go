package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	OrderServiceName   = "erp.v1.OrderService"
	CatalogServiceName = "erp.v1.CatalogService"

	MethodCreateOrder       = "/" + OrderServiceName + "/CreateOrder"
	MethodGetOrder          = "/" + OrderServiceName + "/GetOrder"
	MethodListOrders        = "/" + OrderServiceName + "/ListOrders"
	MethodUpdateOrderStatus = "/" + OrderServiceName + "/UpdateOrderStatus"
	MethodCancelOrder       = "/" + OrderServiceName + "/CancelOrder"

	MethodCreateProduct = "/" + CatalogServiceName + "/CreateProduct"
	MethodGetProduct    = "/" + CatalogServiceName + "/GetProduct"
	MethodUpdateProduct = "/" + CatalogServiceName + "/UpdateProduct"
	MethodAdjustStock   = "/" + CatalogServiceName + "/AdjustStock"
)

// OrderServiceServer: серверная часть erp.v1.OrderService.
type OrderServiceServer interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderResponse, error)
}

// CatalogServiceServer: серверная часть erp.v1.CatalogService.
type CatalogServiceServer interface {
	CreateProduct(context.Context, *CreateProductRequest) (*ProductResponse, error)
	GetProduct(context.Context, *GetProductRequest) (*ProductResponse, error)
	UpdateProduct(context.Context, *UpdateProductRequest) (*ProductResponse, error)
	AdjustStock(context.Context, *AdjustStockRequest) (*ProductResponse, error)
}

// unaryHandler строит grpc.MethodHandler, декодирующий запрос типа Req.
func unaryHandler[S any, Req any, Resp any](fullMethod string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OrderServiceDesc описывает erp.v1.OrderService для grpc.Server.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler(MethodCreateOrder, OrderServiceServer.CreateOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler(MethodGetOrder, OrderServiceServer.GetOrder)},
		{MethodName: "ListOrders", Handler: unaryHandler(MethodListOrders, OrderServiceServer.ListOrders)},
		{MethodName: "UpdateOrderStatus", Handler: unaryHandler(MethodUpdateOrderStatus, OrderServiceServer.UpdateOrderStatus)},
		{MethodName: "CancelOrder", Handler: unaryHandler(MethodCancelOrder, OrderServiceServer.CancelOrder)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "erp/v1/orders",
}

// CatalogServiceDesc описывает erp.v1.CatalogService для grpc.Server.
var CatalogServiceDesc = grpc.ServiceDesc{
	ServiceName: CatalogServiceName,
	HandlerType: (*CatalogServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateProduct", Handler: unaryHandler(MethodCreateProduct, CatalogServiceServer.CreateProduct)},
		{MethodName: "GetProduct", Handler: unaryHandler(MethodGetProduct, CatalogServiceServer.GetProduct)},
		{MethodName: "UpdateProduct", Handler: unaryHandler(MethodUpdateProduct, CatalogServiceServer.UpdateProduct)},
		{MethodName: "AdjustStock", Handler: unaryHandler(MethodAdjustStock, CatalogServiceServer.AdjustStock)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "erp/v1/catalog",
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

func RegisterCatalogServiceServer(s grpc.ServiceRegistrar, srv CatalogServiceServer) {
	s.RegisterService(&CatalogServiceDesc, srv)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

// OrderServiceClient: клиент erp.v1.OrderService с JSON-кодеком.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*CreateOrderResponse, error) {
	return invoke[CreateOrderResponse](ctx, c.cc, MethodCreateOrder, in, opts)
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c.cc, MethodGetOrder, in, opts)
}

func (c *OrderServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, MethodListOrders, in, opts)
}

func (c *OrderServiceClient) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*UpdateOrderStatusResponse, error) {
	return invoke[UpdateOrderStatusResponse](ctx, c.cc, MethodUpdateOrderStatus, in, opts)
}

func (c *OrderServiceClient) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderResponse, error) {
	return invoke[CancelOrderResponse](ctx, c.cc, MethodCancelOrder, in, opts)
}

// CatalogServiceClient: клиент erp.v1.CatalogService с JSON-кодеком.
type CatalogServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogServiceClient(cc grpc.ClientConnInterface) *CatalogServiceClient {
	return &CatalogServiceClient{cc: cc}
}

func (c *CatalogServiceClient) CreateProduct(ctx context.Context, in *CreateProductRequest, opts ...grpc.CallOption) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c.cc, MethodCreateProduct, in, opts)
}

func (c *CatalogServiceClient) GetProduct(ctx context.Context, in *GetProductRequest, opts ...grpc.CallOption) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c.cc, MethodGetProduct, in, opts)
}

func (c *CatalogServiceClient) UpdateProduct(ctx context.Context, in *UpdateProductRequest, opts ...grpc.CallOption) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c.cc, MethodUpdateProduct, in, opts)
}

func (c *CatalogServiceClient) AdjustStock(ctx context.Context, in *AdjustStockRequest, opts ...grpc.CallOption) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c.cc, MethodAdjustStock, in, opts)
}
