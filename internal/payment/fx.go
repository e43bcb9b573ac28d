package payment

import "go.uber.org/fx"

// Module wires the Gateway singleton into the fx graph.
var Module = fx.Module("payment", fx.Provide(NewGateway))
