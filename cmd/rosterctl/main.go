// Command rosterctl imports roster files into the record store and exports
// the stored records, using the same configuration as the web server.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(defaultApp()).Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}
