// triagewatch classifies physical-security events, applies standard
// operating procedures, and correlates access anomalies with badge activity.
package main

import "github.com/ppiankov/triagewatch/internal/cli"

func main() {
	cli.Execute()
}
