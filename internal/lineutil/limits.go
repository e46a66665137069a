package lineutil

// LINE API limits (rune counts).
// Reference: https://developers.line.biz/en/reference/messaging-api/
const (
	MaxTextMessageLength = 5000 // Text message max content length
	MaxAltTextLength     = 400  // Template/Flex message alt text length
	MaxPostbackData      = 300  // Postback action data length
	MaxReplyMessages     = 5    // Max messages per reply token

	MaxTemplateTitleLength  = 40 // Buttons/Carousel template title
	MaxCarouselColumnCount  = 10 // Max columns in a carousel
	MaxTemplateActionCount  = 4  // Max actions per template column
	MaxCarouselTemplateText = 60 // Carousel template column text

	MaxQuickReplyItemCount = 13 // Max items in a quick reply
	MaxQuickReplyLabel     = 20 // Max label length for quick reply item
)

// TextListSafeBuffer is used when building long announcement lists to
// leave room for headers and footers instead of hitting the 5000 char
// limit precisely.
const TextListSafeBuffer = 4900
