package tosdr

import (
	"toslinks/lib/restyutil"
	"toslinks/lib/telemetry"
)

var tracer = telemetry.Tracer("toslinks.lib.scrapers.tosdr")
var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput turns on raw HTTP transcript dumps for
// clients created after the call.
func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}
