package agents

import "go.uber.org/fx"

// Module wires the shared Advisor into the fx graph. CommunityAgent and
// PromoterAgent are constructed explicitly by cmd/service, since each CLI
// invocation runs exactly one of them with its own CLI flags.
var Module = fx.Module("agents", fx.Provide(NewAdvisor))
