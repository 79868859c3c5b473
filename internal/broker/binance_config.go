package broker

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

const (
	// DefaultSettlementAsset is the margin asset balances are read in.
	DefaultSettlementAsset = "USDT"

	// Conservative defaults well under the Binance futures request
	// weight limits.
	DefaultRequestsPerSecond = 8.0
	DefaultRequestBurst      = 16
)

// BinanceFuturesConfig contains configuration for the Binance USD-M
// futures adapter.
type BinanceFuturesConfig struct {
	ApiKey    string `json:"apiKey" jsonschema:"title=API Key,description=Binance API key" validate:"required"`
	SecretKey string `json:"secretKey" jsonschema:"title=Secret Key,description=Binance API secret key" validate:"required"`
	BaseURL   string `json:"baseUrl,omitempty" jsonschema:"title=Base URL,description=Override the API base URL"`
	Asset     string `json:"asset,omitempty" jsonschema:"title=Settlement Asset,description=Margin asset to report balances in,default=USDT"`

	// LotSizes maps an instrument to the contract quantity of one lot.
	// Instruments without an entry trade one quantity unit per lot.
	LotSizes map[string]float64 `json:"lotSizes,omitempty" jsonschema:"title=Lot Sizes,description=Contract quantity per lot keyed by instrument"`

	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty" jsonschema:"title=Requests Per Second,description=Client side API rate limit" validate:"omitempty,gt=0"`
	RequestBurst      int     `json:"requestBurst,omitempty" jsonschema:"title=Request Burst,description=Rate limiter burst size" validate:"omitempty,gt=0"`
}

func (c *BinanceFuturesConfig) applyDefaults() {
	if c.Asset == "" {
		c.Asset = DefaultSettlementAsset
	}

	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}

	if c.RequestBurst == 0 {
		c.RequestBurst = DefaultRequestBurst
	}
}

// Validate validates the BinanceFuturesConfig struct.
func (c *BinanceFuturesConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid binance futures config", err)
	}

	return nil
}

// parseBinanceFuturesConfig parses a JSON configuration string into a
// BinanceFuturesConfig.
func parseBinanceFuturesConfig(jsonConfig string) (*BinanceFuturesConfig, error) {
	var config BinanceFuturesConfig
	if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse binance futures config", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LotSize returns the contract quantity of one lot for the instrument.
func (c *BinanceFuturesConfig) LotSize(instrument string) float64 {
	if size, ok := c.LotSizes[instrument]; ok && size > 0 {
		return size
	}

	return 1
}
