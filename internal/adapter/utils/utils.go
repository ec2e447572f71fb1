package utils

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func GetNewUUID() string {
	return uuid.New().String()
}

func GetChiURLParam(request *http.Request, key string) string {
	return chi.URLParam(request, key)
}

// ChunkKey is the human readable chunk identifier stored in the payload.
func ChunkKey(documentId string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentId, chunkIndex)
}

// ChunkId is the point id of a chunk. It is a name based UUID (SHA-1, DNS namespace)
// of ChunkKey so reprocessing a document always produces the same ids.
func ChunkId(documentId string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(ChunkKey(documentId, chunkIndex))).String()
}
