// Package testhelper provides adapters that point the trading stack's
// network seams at an in-process mock venue.
package testhelper

import (
	"fmt"
	"strings"

	binance "github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"
)

// WsStreamer implements the provider's KlineStreamer seam by dialing a
// MockFuturesServer websocket instead of the Binance combined stream.
type WsStreamer struct {
	baseURL string

	// OnEvent observes every decoded event before the handler runs.
	// Tests use it to count finals without touching the store.
	OnEvent func(*binance.WsKlineEvent)
}

// NewWsStreamer returns a streamer dialing the given ws:// base URL.
func NewWsStreamer(baseURL string) *WsStreamer {
	return &WsStreamer{baseURL: baseURL}
}

func (s *WsStreamer) WsKlineServe(symbol string, interval string, handler binance.WsKlineHandler, errHandler binance.ErrHandler) (chan struct{}, chan struct{}, error) {
	streamURL := fmt.Sprintf("%s/ws/%s@kline_%s", s.baseURL, strings.ToLower(symbol), interval)

	conn, _, err := websocket.DefaultDialer.Dial(streamURL, nil)
	if err != nil {
		return nil, nil, err
	}

	doneC := make(chan struct{})
	stopC := make(chan struct{})

	go func() {
		select {
		case <-stopC:
		case <-doneC:
		}

		conn.Close()
	}()

	go func() {
		defer close(doneC)

		for {
			event := new(binance.WsKlineEvent)
			if err := conn.ReadJSON(event); err != nil {
				select {
				case <-stopC:
					// Stopped by the caller; not an error.
				default:
					if errHandler != nil {
						errHandler(err)
					}
				}

				return
			}

			if s.OnEvent != nil {
				s.OnEvent(event)
			}

			handler(event)
		}
	}()

	return doneC, stopC, nil
}
