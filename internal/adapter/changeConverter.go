package adapter

import (
	"fmt"
	"time"

	"github.com/akolanti/docsync/internal/adapter/utils"
	"github.com/akolanti/docsync/internal/domain/changeModel"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ToChangeMessage normalizes a raw change stream event. ok is false for events the
// pipeline does not handle, those are skipped by the watcher.
func ToChangeMessage(event changeModel.ChangeEvent, collection string, now time.Time) (changeModel.ChangeMessage, bool, error) {
	op, err := changeModel.ParseOperation(event.OperationType)
	if err != nil {
		return changeModel.ChangeMessage{}, false, nil
	}

	message := changeModel.ChangeMessage{
		Timestamp:  now.UTC(),
		Operation:  op,
		Collection: collection,
		TraceId:    utils.GetNewUUID(),
	}

	switch op {
	case changeModel.OperationInsert:
		message.DocumentId = DocumentIdString(event.FullDocument["_id"])
		if message.DocumentId == "" {
			message.DocumentId = DocumentIdString(event.DocumentKey["_id"])
		}
		message.Document = withoutId(event.FullDocument)

	case changeModel.OperationUpdate:
		message.DocumentId = DocumentIdString(event.DocumentKey["_id"])
		if event.UpdateDescription != nil {
			message.UpdatedFields = NormalizeMap(event.UpdateDescription.UpdatedFields)
			if message.UpdatedFields == nil {
				message.UpdatedFields = map[string]any{}
			}
			message.RemovedFields = event.UpdateDescription.RemovedFields
			if message.RemovedFields == nil {
				message.RemovedFields = []string{}
			}
		}
		// present when the stream was opened with update lookup
		message.FullDocument = withoutId(event.FullDocument)

	case changeModel.OperationDelete:
		message.DocumentId = DocumentIdString(event.DocumentKey["_id"])

	case changeModel.OperationReplace:
		message.DocumentId = DocumentIdString(event.DocumentKey["_id"])
		message.FullDocument = withoutId(event.FullDocument)
	}

	if message.DocumentId == "" {
		return message, true, changeModel.ErrMissingDocumentId
	}
	return message, true, nil
}

// DocumentIdString renders an _id the way it is referenced downstream. ObjectIDs become hex.
func DocumentIdString(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func withoutId(doc map[string]any) map[string]any {
	if len(doc) == 0 {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		out[k] = NormalizeValue(v)
	}
	return out
}

func NormalizeMap(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = NormalizeValue(v)
	}
	return out
}

// NormalizeValue turns driver specific bson values into plain JSON friendly values.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	case primitive.Decimal128:
		return val.String()
	case primitive.M:
		return NormalizeMap(val)
	case map[string]any:
		return NormalizeMap(val)
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = NormalizeValue(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeValue(item)
		}
		return out
	default:
		return v
	}
}
