package adapter

import (
	"net/http"

	"github.com/akolanti/docsync/internal/api"
	"github.com/akolanti/docsync/internal/domain/taskModel"
)

func ToAPIResponse(task taskModel.Task) api.TaskResponse {
	var errorPtr *api.TaskOutgoingError
	if task.Error.Message != "" || task.Error.Code != "" {
		errorPtr = &api.TaskOutgoingError{
			Code:    task.Error.Code,
			Message: task.Error.Message,
			Retry:   task.Error.Retry,
		}
	}

	return api.TaskResponse{
		Id:          task.Id,
		TraceId:     task.TraceId,
		Collection:  task.Message.Collection,
		DocumentId:  task.Message.DocumentId,
		Operation:   string(task.Message.Operation),
		Attempt:     task.Attempt,
		MaxAttempts: task.MaxAttempts,
		StartTime:   task.CreatedTime,
		EndTime:     task.EndTime,
		Error:       errorPtr,
		Result: api.Result{
			Status:     string(task.Status),
			Step:       string(task.CurrentStep),
			ChunkCount: task.ChunkCount,
		},
	}
}

func BadRequest(id string, error string, code int) api.TaskResponse {
	return api.TaskResponse{
		Id:     id,
		Result: api.Result{Status: string(api.TaskStatusError)},
		Error: &api.TaskOutgoingError{
			Code:    http.StatusText(code),
			Message: error,
			Retry:   code == http.StatusTooManyRequests,
		},
	}
}
