// Package scheduler keeps the document store warm.
//
// A Scheduler owns one background loop. After a startup delay it runs a
// refresh cycle: discover endpoints, partition them into groups, aggregate
// each group (at most MaxParallelism at a time) and store every successful
// result. A group whose aggregation fails keeps its previously stored
// document. Between cycles the loop waits for the refresh interval or for a
// wake-up from TriggerRefresh, whichever comes first. Configuration changes
// delivered on Config.Changes trigger a wake-up.
//
// Lifecycle:
//
//	Stopped -> Starting -> Running(Waiting | Refreshing) -> Stopping -> Stopped
//
// Stop is cooperative: group aggregations already in flight finish and no
// new groups are started.
package scheduler
