package adapter

import (
	"net/http"
	"testing"

	"github.com/akolanti/docsync/internal/domain/changeModel"
	"github.com/akolanti/docsync/internal/domain/taskModel"
)

func TestToAPIResponse(t *testing.T) {
	task := taskModel.Task{
		Id:          "t-1",
		TraceId:     "tr-1",
		Message:     changeModel.ChangeMessage{Operation: changeModel.OperationUpdate, Collection: "giao-duc", DocumentId: "d-9"},
		Attempt:     2,
		MaxAttempts: 5,
		Status:      taskModel.TaskStatusComplete,
		CurrentStep: taskModel.Done,
		ChunkCount:  4,
	}

	res := ToAPIResponse(task)
	if res.Error != nil {
		t.Errorf("completed task should carry no error, got %+v", res.Error)
	}
	if res.Result.Status != "COMPLETE" || res.Result.Step != "Done" || res.Result.ChunkCount != 4 {
		t.Errorf("result = %+v", res.Result)
	}
	if res.DocumentId != "d-9" || res.Operation != "update" {
		t.Errorf("response = %+v", res)
	}

	task.Status = taskModel.TaskStatusError
	task.Error = taskModel.TaskError{Code: "EMBEDDING_FAILURE", Message: "quota", Retry: true}
	if res := ToAPIResponse(task); res.Error == nil || res.Error.Code != "EMBEDDING_FAILURE" || !res.Error.Retry {
		t.Errorf("error = %+v", res.Error)
	}
}

func TestBadRequest(t *testing.T) {
	res := BadRequest("x", "Task not found", http.StatusNotFound)
	if res.Result.Status != "Error" || res.Error.Code != "Not Found" || res.Error.Retry {
		t.Errorf("response = %+v", res)
	}
}
