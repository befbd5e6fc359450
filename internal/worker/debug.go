package worker

import (
	"log"
	"os"
	"strings"
)

// CHATBRIDGE_DEBUG=1 logs every dispatch decision.
var dispatchDebug = func() bool {
	v := strings.TrimSpace(os.Getenv("CHATBRIDGE_DEBUG"))
	return v == "1" || strings.EqualFold(v, "true")
}()

func debugLog(format string, args ...interface{}) {
	if dispatchDebug {
		log.Printf(format, args...)
	}
}
