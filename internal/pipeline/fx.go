package pipeline

import "go.uber.org/fx"

// Module wires the PipelineEngine and its LLM/image adapters into the fx
// graph. Worker is not provided here (each worker needs a distinct
// lease-owner token), and cmd/service does not construct one either.
var Module = fx.Module("pipeline", fx.Provide(NewEngine, NewDesignDeviser, NewImageGenerator))
