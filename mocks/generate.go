package mocks

//go:generate mockgen -destination=./mock_broker.go -package=mocks github.com/meridian-lab/meridian-trading/internal/broker Client
//go:generate mockgen -destination=./mock_signal_provider.go -package=mocks github.com/meridian-lab/meridian-trading/internal/strategy SignalProvider
//go:generate mockgen -destination=./mock_oracle.go -package=mocks github.com/meridian-lab/meridian-trading/internal/margin Oracle
//go:generate mockgen -destination=./mock_collector.go -package=mocks github.com/meridian-lab/meridian-trading/internal/trading/engine CandleCollector
