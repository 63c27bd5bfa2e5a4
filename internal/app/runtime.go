package app

import (
	"os"
	"strconv"
)

// TestModeEnv makes the binaries return before dialing Postgres, Redis or
// Kafka when it parses as true.
const TestModeEnv = "LEDGER_TEST_MODE"

// InTestMode reports whether TestModeEnv is set. The variable is read on every
// call so tests can flip it with t.Setenv.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
