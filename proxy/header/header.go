// Package header provides header handling for the azrelay gateway.
//
// The gateway sits between a client and an Azure OpenAI deployment like so:
//
//	Client <--> azrelay <--> Azure OpenAI
//
// and each leg carries its own credentials and framing headers. Nothing is
// copied verbatim from one leg to the other.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	// Authorization carries the caller token, optionally as a bearer token.
	Authorization = "Authorization"

	// APIKey is the Azure credential header. Callers may use it in place of
	// Authorization and the gateway always uses it upstream.
	APIKey = "api-key"

	// RequestID tags every response with the id used in logs and events.
	RequestID = "X-Request-ID"
)

const bearerPrefix = "Bearer "

// Token returns the caller token for the request. Authorization takes
// precedence over api-key and a leading "Bearer " is stripped. An empty
// string means the caller sent no usable token.
func Token(c *fiber.Ctx) string {
	if token := strings.TrimPrefix(c.Get(Authorization), bearerPrefix); token != "" {
		return token
	}
	return c.Get(APIKey)
}

// SetUpstreamRequestHeaders sets the headers of an outgoing provider request.
// The caller token is forwarded as the Azure api-key.
func SetUpstreamRequestHeaders(req *http.Request, token string) {
	req.Header.Set(APIKey, token)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
}

// SetStreamHeaders sets the headers of a streamed chat completion response.
func SetStreamHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set(fiber.HeaderTransferEncoding, "chunked")
}
