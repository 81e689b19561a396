// Command engine runs the trading engine as a single process.
//
// The concrete brokerage and market-data wire transport are out of scope
// for this engine: this entrypoint wires internal/mock's in-process
// fakes in their place. A real deployment replaces mockBroker/mockMarketData
// with an adaptor implementing core.Broker/core.MarketDataPort and otherwise
// calls bootstrap.NewApp unchanged.
package main

import (
	"flag"
	"os"

	"market_maker/internal/bootstrap"
	"market_maker/internal/mock"
)

var configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	mockBroker := mock.NewBroker()
	mockMarketData := mock.NewMarketData()

	app, err := bootstrap.NewApp(*configFile, mockBroker, mockMarketData)
	if err != nil {
		os.Stderr.WriteString("bootstrap: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer app.Shutdown(bootstrap.ShutdownTimeout)

	if err := app.Run(); err != nil {
		app.Logger.Error("engine exited with error", "error", err.Error())
		os.Exit(1)
	}
}
