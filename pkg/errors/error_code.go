package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidSignal        ErrorCode = 102
	ErrCodeMissingStopLoss      ErrorCode = 103
	ErrCodeMissingTakeProfit    ErrorCode = 104
	ErrCodeInvalidInstrument    ErrorCode = 105
	ErrCodeInsufficientData     ErrorCode = 106
	ErrCodeInvalidType          ErrorCode = 107
	ErrCodeInvalidPeriod        ErrorCode = 108
	ErrCodeMissingParameter     ErrorCode = 109
	ErrCodeInvalidInterval      ErrorCode = 110
	ErrCodeInvalidThreshold     ErrorCode = 111
	ErrCodeSchemaIncompatible   ErrorCode = 112

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound        ErrorCode = 200
	ErrCodeSnapshotUnavailable ErrorCode = 201
	ErrCodeQueryFailed         ErrorCode = 202
	ErrCodeHistoryFetchFailed  ErrorCode = 203
	ErrCodeNoDataFound         ErrorCode = 204
	ErrCodeJournalUnavailable  ErrorCode = 205

	// Margin errors (300-399)
	ErrCodeMarginUnavailable ErrorCode = 300
	ErrCodeMarginInvalid     ErrorCode = 301

	// Signal-source errors (400-499)
	ErrCodeProviderNotSet      ErrorCode = 400
	ErrCodeProviderFailed      ErrorCode = 401
	ErrCodeFusionConfigError   ErrorCode = 402
	ErrCodeUnsupportedProvider ErrorCode = 403

	// Trading errors (500-599)
	ErrCodeOrderFailed        ErrorCode = 500
	ErrCodePositionNotFound   ErrorCode = 501
	ErrCodeOrderNotConfirmed  ErrorCode = 502
	ErrCodeInsufficientMargin ErrorCode = 503
	ErrCodeSizingRejected     ErrorCode = 504
	ErrCodePositionExists     ErrorCode = 505
	ErrCodeCooldownActive     ErrorCode = 506
	ErrCodeBrokerTimeout      ErrorCode = 507
	ErrCodeBrokerUnavailable  ErrorCode = 508
	ErrCodeReconcileConflict  ErrorCode = 509
	ErrCodeInstrumentLimit    ErrorCode = 510

	// Replay errors (600-699)
	ErrCodeReplayStateNil     ErrorCode = 600
	ErrCodeReplayInitFailed   ErrorCode = 601
	ErrCodeReplayConfigError  ErrorCode = 602
	ErrCodeReplayNoData       ErrorCode = 603
	ErrCodeReplayNoProvider   ErrorCode = 604
	ErrCodeReplayNoResultsDir ErrorCode = 605

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed ErrorCode = 700
	ErrCodeMarketDataWriteFailed ErrorCode = 701
	ErrCodeMarketDataParseFailed ErrorCode = 702
	ErrCodeInvalidTimespan       ErrorCode = 703
	ErrCodeInvalidDataProvider   ErrorCode = 704

	// Callback errors (800-899)
	ErrCodeCallbackFailed ErrorCode = 800
)
