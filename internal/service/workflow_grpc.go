// internal/service/workflow_grpc.go
package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// WorkflowServiceName is the fully qualified gRPC service name.
const WorkflowServiceName = "taskflow.v1.WorkflowService"

// Method names on the workflow service.
const (
	MethodCreateTask                        = "CreateTask"
	MethodGetTask                           = "GetTask"
	MethodListTasks                         = "ListTasks"
	MethodDeleteTask                        = "DeleteTask"
	MethodStartProgress                     = "StartProgress"
	MethodMarkDone                          = "MarkDone"
	MethodSendForApproval                   = "SendForApproval"
	MethodRequestTaskReview                 = "RequestTaskReview"
	MethodApprove                           = "Approve"
	MethodApproveTaskCompletion             = "ApproveTaskCompletion"
	MethodReject                            = "Reject"
	MethodRejectTask                        = "RejectTask"
	MethodRejectTaskByManager               = "RejectTaskByManager"
	MethodRequestModifications              = "RequestModifications"
	MethodRequestTaskModifications          = "RequestTaskModifications"
	MethodRequestTaskModificationsByManager = "RequestTaskModificationsByManager"
	MethodReopenTask                        = "ReopenTask"
	MethodUpdateTaskStatus                  = "UpdateTaskStatus"
	MethodCloseTask                         = "CloseTask"
)

// WorkflowServiceServer is the server API. Requests and responses are
// protobuf Structs; field names are documented on WorkflowService.
type WorkflowServiceServer interface {
	CreateTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTasks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartProgress(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkDone(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendForApproval(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestTaskReview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Approve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApproveTaskCompletion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reject(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectTaskByManager(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestModifications(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestTaskModifications(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestTaskModificationsByManager(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReopenTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateTaskStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(WorkflowServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call structMethod) grpc.MethodDesc {
	fullMethod := "/" + WorkflowServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(WorkflowServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(WorkflowServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// WorkflowService_ServiceDesc is the grpc.ServiceDesc for the workflow service.
var WorkflowService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: WorkflowServiceName,
	HandlerType: (*WorkflowServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodCreateTask, WorkflowServiceServer.CreateTask),
		unaryMethod(MethodGetTask, WorkflowServiceServer.GetTask),
		unaryMethod(MethodListTasks, WorkflowServiceServer.ListTasks),
		unaryMethod(MethodDeleteTask, WorkflowServiceServer.DeleteTask),
		unaryMethod(MethodStartProgress, WorkflowServiceServer.StartProgress),
		unaryMethod(MethodMarkDone, WorkflowServiceServer.MarkDone),
		unaryMethod(MethodSendForApproval, WorkflowServiceServer.SendForApproval),
		unaryMethod(MethodRequestTaskReview, WorkflowServiceServer.RequestTaskReview),
		unaryMethod(MethodApprove, WorkflowServiceServer.Approve),
		unaryMethod(MethodApproveTaskCompletion, WorkflowServiceServer.ApproveTaskCompletion),
		unaryMethod(MethodReject, WorkflowServiceServer.Reject),
		unaryMethod(MethodRejectTask, WorkflowServiceServer.RejectTask),
		unaryMethod(MethodRejectTaskByManager, WorkflowServiceServer.RejectTaskByManager),
		unaryMethod(MethodRequestModifications, WorkflowServiceServer.RequestModifications),
		unaryMethod(MethodRequestTaskModifications, WorkflowServiceServer.RequestTaskModifications),
		unaryMethod(MethodRequestTaskModificationsByManager, WorkflowServiceServer.RequestTaskModificationsByManager),
		unaryMethod(MethodReopenTask, WorkflowServiceServer.ReopenTask),
		unaryMethod(MethodUpdateTaskStatus, WorkflowServiceServer.UpdateTaskStatus),
		unaryMethod(MethodCloseTask, WorkflowServiceServer.CloseTask),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "taskflow/v1/workflow.proto",
}

func RegisterWorkflowServiceServer(s grpc.ServiceRegistrar, srv WorkflowServiceServer) {
	s.RegisterService(&WorkflowService_ServiceDesc, srv)
}

// WorkflowServiceClient calls the workflow service.
type WorkflowServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewWorkflowServiceClient(cc grpc.ClientConnInterface) *WorkflowServiceClient {
	return &WorkflowServiceClient{cc: cc}
}

// Call invokes method with the given request fields.
func (c *WorkflowServiceClient) Call(ctx context.Context, method string, fields map[string]interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+WorkflowServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Transition is shorthand for the single-task transition methods.
func (c *WorkflowServiceClient) Transition(ctx context.Context, method, taskID string, extra map[string]interface{}, opts ...grpc.CallOption) (*Reply, error) {
	fields := map[string]interface{}{"task_id": taskID}
	for k, v := range extra {
		fields[k] = v
	}
	out, err := c.Call(ctx, method, fields, opts...)
	if err != nil {
		return nil, err
	}
	return DecodeReply(out)
}
