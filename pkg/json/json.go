package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes bounds request bodies; manual translations carry whole VTT files.
const maxBodyBytes = 8 << 20

func ParseJSON(r *http.Request, model any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}

	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(model)
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("missing request body")
	}
	return err
}

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(v)
}

// WriteVTT writes subtitle content with the WebVTT media type.
func WriteVTT(w http.ResponseWriter, status int, content string) error {
	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	w.WriteHeader(status)

	_, err := io.WriteString(w, content)
	return err
}

func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}
