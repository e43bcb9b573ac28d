package reddit

import "go.uber.org/fx"

// Module wires the Client and Validator singletons into the fx graph.
var Module = fx.Module("reddit", fx.Provide(NewClient, NewValidator))
