// Command taxifare prepares the NYC taxi fares data, trains the fare
// regression model and evaluates a finished run.
package main

import (
	"os"

	"github.com/Noofbiz/taxiFare/logger"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.New("main").Errorf("%v", err)
		os.Exit(1)
	}
}
