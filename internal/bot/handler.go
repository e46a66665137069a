// Package bot provides the handler interface and event processing for
// LINE bot modules. Each module (mops, watchlist, bookbuilding,
// stockinfo, usage) implements the Handler interface.
package bot

import (
	"context"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Handler defines the interface that all bot modules implement.
type Handler interface {
	// Name returns the unique module identifier (e.g. "mops").
	Name() string

	// PostbackPrefix returns the prefix that routes postback data to
	// this handler, usually "<name>:". Empty disables postback routing.
	PostbackPrefix() string

	// CanHandle checks if this handler recognizes the given text message.
	CanHandle(text string) bool

	// HandleMessage processes a text message and returns LINE replies.
	// The chat owner ID is available via ctxutil.GetOwnerID.
	// Returns at most 5 messages per LINE reply limit.
	HandleMessage(ctx context.Context, text string) []messaging_api.MessageInterface

	// HandlePostback processes a postback payload with the module
	// prefix already stripped.
	//
	// Postback format convention: "module:action$param1$param2" using
	// $ as delimiter, max 300 bytes per LINE API. There is no escaping
	// for $, so parameter values must avoid it.
	HandlePostback(ctx context.Context, data string) []messaging_api.MessageInterface
}
