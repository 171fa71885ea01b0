package instrumentation

import "strings"

// Label values that keep metric cardinality bounded.

// LinkPhone outcomes.
const (
	LinkResultLinked        = "linked"
	LinkResultEmailInUse    = "email_in_use"
	LinkResultPhoneInUse    = "phone_in_use"
	LinkResultConflict      = "conflict"
	LinkResultTokensMissing = "tokens_missing"
	LinkResultError         = "error"
)

// CurrentEvent outcomes.
const (
	TriggerResultTriggered    = "triggered"
	TriggerResultNotTriggered = "not_triggered"
	TriggerResultError        = "error"
)

// Calendar API operations.
const (
	OperationList   = "list"
	OperationInsert = "insert"
	OperationPatch  = "patch"
	OperationDelete = "delete"

	OperationExchange = "exchange"
	OperationRefresh  = "refresh"
)

// RouteLabel normalizes an HTTP route for use as a label. Requests that
// matched no route share one series.
func RouteLabel(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return "unmatched"
	}
	return route
}
