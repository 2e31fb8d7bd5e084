/*
Task Engine runs wallet routes. A route is a wallet and the ordered list of
tasks it still has to do. Every route runs in its own goroutine, launches are
spaced by a random pause and inside a route every task is followed by a
random pause whatever its outcome.

Progress lives in badgerdb, see core/progress:

	w:<address>          -> planned route {address, proxy, tasks, created_at}
	c:<address>:<task>   -> completion time in unix millis
	r:runs               -> number of processing runs

Completion keys are append only so a finished task is never handed to a
handler again.
*/
package taskengine
