package prompt

import (
	"encoding/json"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// DefaultSchema describes the span table generated queries run against.
const DefaultSchema = `Table traces (one row per span):
- trace_id String
- span_id String
- parent_span_id String: empty for root spans
- service_name LowCardinality(String)
- operation_name LowCardinality(String)
- span_kind LowCardinality(String): SERVER, CLIENT, INTERNAL, PRODUCER or CONSUMER
- start_time DateTime64(9)
- duration_ns UInt64: span duration in nanoseconds
- status_code LowCardinality(String): OK, ERROR or UNSET
- http_status_code UInt16: 0 when not an HTTP span
- attributes Map(String, String)`

// Response is the structured answer general-purpose models are asked to return.
type Response struct {
	SQL             string            `json:"sql" jsonschema:"a single read-only ClickHouse SELECT statement"`
	Description     string            `json:"description" jsonschema:"one sentence on what the query shows"`
	ExpectedColumns map[string]string `json:"expectedColumns" jsonschema:"result column name to ClickHouse type"`
	Reasoning       string            `json:"reasoning" jsonschema:"how the query answers the goal"`
}

var responseSchema = sync.OnceValue(func() string {
	s, err := jsonschema.For[Response](nil)
	if err != nil {
		panic("prompt: response schema: " + err.Error())
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		panic("prompt: encode response schema: " + err.Error())
	}
	return string(data)
})

// ResponseSchema returns the JSON Schema of Response.
func ResponseSchema() string {
	return responseSchema()
}
