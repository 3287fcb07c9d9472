package prompt

import (
	"strings"

	"github.com/malbeclabs/pathsql/pkg/criticalpath"
)

// Example is a worked query shown to the model.
type Example struct {
	Title string
	SQL   string
}

// servicesToken is replaced with the escaped service list.
const servicesToken = "$SERVICES"

var examples = map[criticalpath.GoalType][]Example{
	criticalpath.GoalLatency: {
		{
			Title: "Latency percentiles per service on the path",
			SQL: `SELECT
    service_name,
    count() AS request_count,
    quantile(0.50)(duration_ns) / 1e6 AS p50_ms,
    quantile(0.95)(duration_ns) / 1e6 AS p95_ms,
    quantile(0.99)(duration_ns) / 1e6 AS p99_ms
FROM traces
WHERE service_name IN ($SERVICES)
  AND start_time >= now() - INTERVAL 1 HOUR
GROUP BY service_name
ORDER BY p95_ms DESC`,
		},
	},
	criticalpath.GoalErrors: {
		{
			Title: "Error rate per service on the path",
			SQL: `SELECT
    service_name,
    count() AS request_count,
    countIf(status_code = 'ERROR') AS error_count,
    error_count / request_count AS error_rate
FROM traces
WHERE service_name IN ($SERVICES)
  AND start_time >= now() - INTERVAL 1 HOUR
GROUP BY service_name
HAVING request_count > 0
ORDER BY error_rate DESC`,
		},
	},
	criticalpath.GoalBottlenecks: {
		{
			Title: "Operations with the largest share of time on the path",
			SQL: `SELECT
    service_name,
    operation_name,
    count() AS calls,
    sum(duration_ns) / 1e6 AS total_ms,
    quantile(0.95)(duration_ns) / 1e6 AS p95_ms
FROM traces
WHERE service_name IN ($SERVICES)
  AND start_time >= now() - INTERVAL 1 HOUR
GROUP BY service_name, operation_name
HAVING calls > 10
ORDER BY total_ms DESC
LIMIT 20`,
		},
	},
	criticalpath.GoalThroughput: {
		{
			Title: "Requests per minute per service on the path",
			SQL: `SELECT
    toStartOfMinute(start_time) AS minute,
    service_name,
    count() AS requests
FROM traces
WHERE service_name IN ($SERVICES)
  AND span_kind = 'SERVER'
  AND start_time >= now() - INTERVAL 1 HOUR
GROUP BY minute, service_name
ORDER BY minute, service_name`,
		},
	},
	criticalpath.GoalComparison: {
		{
			Title: "Last hour against the hour before, per service",
			SQL: `SELECT
    service_name,
    quantileIf(0.95)(duration_ns, start_time >= now() - INTERVAL 1 HOUR) / 1e6 AS p95_ms_current,
    quantileIf(0.95)(duration_ns, start_time < now() - INTERVAL 1 HOUR) / 1e6 AS p95_ms_previous,
    countIf(start_time >= now() - INTERVAL 1 HOUR) AS requests_current,
    countIf(start_time < now() - INTERVAL 1 HOUR) AS requests_previous
FROM traces
WHERE service_name IN ($SERVICES)
  AND start_time >= now() - INTERVAL 2 HOUR
GROUP BY service_name
ORDER BY service_name`,
		},
	},
}

// generic is shown for custom goals and appended for every other goal.
var generic = Example{
	Title: "Latency and errors per service on the path",
	SQL: `SELECT
    service_name,
    count() AS request_count,
    avg(duration_ns) / 1e6 AS avg_ms,
    countIf(status_code = 'ERROR') / count() AS error_rate
FROM traces
WHERE service_name IN ($SERVICES)
  AND start_time >= now() - INTERVAL 1 HOUR
GROUP BY service_name
ORDER BY avg_ms DESC`,
}

// ExamplesFor returns the worked examples for a goal type, with serviceList substituted.
func ExamplesFor(goal criticalpath.GoalType, serviceList string) []Example {
	picked := append([]Example{}, examples[goal]...)
	picked = append(picked, generic)
	out := make([]Example, len(picked))
	for i, ex := range picked {
		out[i] = Example{Title: ex.Title, SQL: strings.ReplaceAll(ex.SQL, servicesToken, serviceList)}
	}
	return out
}
