package queue

import "go.uber.org/fx"

// Module wires the TaskQueue singleton into the fx graph.
var Module = fx.Module("queue", fx.Provide(
	fx.Annotate(NewStoreQueue, fx.As(new(TaskQueue))),
))
