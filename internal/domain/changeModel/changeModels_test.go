package changeModel

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseOperation(t *testing.T) {
	tests := []struct {
		raw     string
		want    Operation
		wantErr bool
	}{
		{"insert", OperationInsert, false},
		{" UPDATE ", OperationUpdate, false},
		{"delete", OperationDelete, false},
		{"replace", OperationReplace, false},
		{"drop", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOperation(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownOperation) {
				t.Errorf("ParseOperation(%q) err = %v, want ErrUnknownOperation", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseOperation(%q) = %v, %v; want %v", tt.raw, got, err, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := ChangeMessage{Operation: OperationUpdate, Collection: "the-gioi", DocumentId: "abc"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}

	noId := valid
	noId.DocumentId = "  "
	if err := noId.Validate(); !errors.Is(err, ErrMissingDocumentId) {
		t.Errorf("expected ErrMissingDocumentId, got %v", err)
	}

	noCollection := valid
	noCollection.Collection = ""
	if err := noCollection.Validate(); !errors.Is(err, ErrMissingCollection) {
		t.Errorf("expected ErrMissingCollection, got %v", err)
	}

	badOp := valid
	badOp.Operation = "truncate"
	if err := badOp.Validate(); !errors.Is(err, ErrUnknownOperation) {
		t.Errorf("expected ErrUnknownOperation, got %v", err)
	}
}

func TestChangeMessage_WireFieldNames(t *testing.T) {
	msg := ChangeMessage{
		Timestamp:     time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
		Operation:     OperationUpdate,
		Collection:    "cong-nghe",
		DocumentId:    "665f1c2e9b1e8a0012345678",
		UpdatedFields: map[string]any{"title": "new"},
		RemovedFields: []string{"tags"},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"timestamp", "operation", "collection", "documentId", "updatedFields", "removedFields"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("wire message is missing %q: %s", key, data)
		}
	}
	for _, key := range []string{"document", "fullDocument"} {
		if _, ok := raw[key]; ok {
			t.Errorf("wire message should omit empty %q: %s", key, data)
		}
	}
}

func TestPayload(t *testing.T) {
	insert := ChangeMessage{Operation: OperationInsert, Document: map[string]any{"title": "x"}}
	if p, ok := insert.Payload(); !ok || p["title"] != "x" {
		t.Errorf("insert payload = %v, %v", p, ok)
	}

	replace := ChangeMessage{Operation: OperationReplace, FullDocument: map[string]any{"title": "y"}}
	if p, ok := replace.Payload(); !ok || p["title"] != "y" {
		t.Errorf("replace payload = %v, %v", p, ok)
	}

	update := ChangeMessage{Operation: OperationUpdate, FullDocument: map[string]any{"title": "z"}}
	if _, ok := update.Payload(); ok {
		t.Error("update must never use an embedded payload")
	}

	emptyInsert := ChangeMessage{Operation: OperationInsert}
	if _, ok := emptyInsert.Payload(); ok {
		t.Error("insert without document should report no payload")
	}
}
