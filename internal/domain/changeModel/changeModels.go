package changeModel

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Operation string

const (
	OperationInsert  Operation = "insert"
	OperationUpdate  Operation = "update"
	OperationDelete  Operation = "delete"
	OperationReplace Operation = "replace"
)

var (
	ErrMissingDocumentId = errors.New("change message has no documentId")
	ErrMissingCollection = errors.New("change message has no collection")
	ErrUnknownOperation  = errors.New("unknown change operation")
)

// ParseOperation only accepts the four operations the pipeline knows how to apply.
func ParseOperation(raw string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(raw))); op {
	case OperationInsert, OperationUpdate, OperationDelete, OperationReplace:
		return op, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, raw)
	}
}

// ChangeMessage is the wire format published to the durable queue, one JSON object per message.
type ChangeMessage struct {
	Timestamp     time.Time      `json:"timestamp"`
	Operation     Operation      `json:"operation"`
	Collection    string         `json:"collection"`
	DocumentId    string         `json:"documentId"`
	Document      map[string]any `json:"document,omitempty"`
	UpdatedFields map[string]any `json:"updatedFields,omitempty"`
	RemovedFields []string       `json:"removedFields,omitempty"`
	FullDocument  map[string]any `json:"fullDocument,omitempty"`
	TraceId       string         `json:"traceId,omitempty"`
}

func (m ChangeMessage) Validate() error {
	if strings.TrimSpace(m.DocumentId) == "" {
		return ErrMissingDocumentId
	}
	if strings.TrimSpace(m.Collection) == "" {
		return ErrMissingCollection
	}
	if _, err := ParseOperation(string(m.Operation)); err != nil {
		return err
	}
	return nil
}

// Payload returns the document body carried by the message for the operations that may use it.
func (m ChangeMessage) Payload() (map[string]any, bool) {
	switch m.Operation {
	case OperationInsert:
		return m.Document, len(m.Document) > 0
	case OperationReplace:
		return m.FullDocument, len(m.FullDocument) > 0
	default:
		return nil, false
	}
}

// ChangeEvent is the raw change stream event as decoded from the source store.
type ChangeEvent struct {
	OperationType     string             `bson:"operationType"`
	FullDocument      map[string]any     `bson:"fullDocument,omitempty"`
	DocumentKey       map[string]any     `bson:"documentKey,omitempty"`
	UpdateDescription *UpdateDescription `bson:"updateDescription,omitempty"`
}

type UpdateDescription struct {
	UpdatedFields map[string]any `bson:"updatedFields,omitempty"`
	RemovedFields []string       `bson:"removedFields,omitempty"`
}
