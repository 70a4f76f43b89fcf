// Command mdbox builds event workspaces from CSV files and inspects saved
// ones.
//
//	mdbox ingest --config qlab.yaml --input events.csv --store ./boxes
//	mdbox stats --config qlab.yaml --store ./boxes [id...]
//	mdbox rm --store ./boxes id...
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mdbox:", err)
		os.Exit(1)
	}
}
