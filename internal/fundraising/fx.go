package fundraising

import "go.uber.org/fx"

// Module wires the Ledger singleton into the fx graph.
var Module = fx.Module("fundraising", fx.Provide(NewLedger))
