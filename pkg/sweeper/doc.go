// Package sweeper periodically deletes lapsed role assignments.
//
// Expired assignments already grant nothing. Sweeping only keeps stores from
// accumulating dead rows.
package sweeper
