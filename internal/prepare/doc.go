// Package prepare resolves the lyrics and instrumental of queued songs in
// the background. Each queue slot gets at most one cancellable task; results
// of a cancelled task, or of a task whose slot left the queue, are dropped.
package prepare
