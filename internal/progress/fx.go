package progress

import "go.uber.org/fx"

// Module wires the Broker singleton into the fx graph.
var Module = fx.Module("progress", fx.Provide(NewBroker))
