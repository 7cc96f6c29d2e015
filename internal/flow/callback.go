package flow

import (
	"fmt"
	"strings"
)

// Callback actions understood by the state handlers.
const (
	actionProduct   = "product"
	actionAddToCart = "add_to_cart"
	actionBack      = "back"
	actionCart      = "cart"
	actionDelete    = "delete"
	actionCheckout  = "checkout"
	actionMenu      = "menu"
	actionPickup    = "pickup"
	actionDelivery  = "delivery"
	actionPay       = "pay"
)

const (
	callbackDataSeparator  = ":"
	callbackDataLimitBytes = 64 // Telegram's callback_data limit
)

// encodeCallback packs an action and its argument into callback data.
func encodeCallback(action, arg string) string {
	if arg == "" {
		return action
	}

	payload := action + callbackDataSeparator + arg
	if len(payload) > callbackDataLimitBytes {
		// Backend identifiers fit comfortably; anything longer is a bug worth
		// surfacing at development time rather than truncating silently.
		panic(fmt.Sprintf("callback data exceeds %d byte limit: %q", callbackDataLimitBytes, payload))
	}

	return payload
}

// decodeCallback splits callback data back into action and argument.
func decodeCallback(payload string) (action, arg string) {
	idx := strings.Index(payload, callbackDataSeparator)
	if idx == -1 {
		return payload, ""
	}

	return payload[:idx], payload[idx+len(callbackDataSeparator):]
}
