package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// MaxCallbackBody bounds how much of a callback body is read.
const MaxCallbackBody = 64 << 10

// ParseCallbackRequest normalises a provider callback. Query parameters,
// url-encoded form fields and top-level JSON scalars all land in Fields, so a
// GET redirect and a POST carrying the same data look identical to adapters.
func ParseCallbackRequest(r *http.Request) (CallbackPayload, error) {
	payload := CallbackPayload{
		Method: r.Method,
		Fields: url.Values{},
	}
	for k, vs := range r.URL.Query() {
		payload.Fields[k] = append([]string(nil), vs...)
	}

	if r.Body == nil || r.Method == http.MethodGet {
		return payload, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxCallbackBody))
	if err != nil {
		return payload, fmt.Errorf("failed to read callback body: %w", err)
	}
	payload.Body = body

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	payload.ContentType = mediaType

	switch {
	case mediaType == "application/x-www-form-urlencoded":
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return payload, fmt.Errorf("failed to parse callback form: %w", err)
		}
		for k, vs := range form {
			payload.Fields[k] = vs
		}
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var doc map[string]any
		if err := json.Unmarshal(body, &doc); err != nil {
			return payload, fmt.Errorf("failed to parse callback json: %w", err)
		}
		for k, v := range doc {
			switch val := v.(type) {
			case string:
				payload.Fields.Set(k, val)
			case float64, bool:
				payload.Fields.Set(k, fmt.Sprint(val))
			}
		}
	}
	return payload, nil
}
