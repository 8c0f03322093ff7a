package webclient

import "time"

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

// Config selects and tunes a WebClient backend.
type Config struct {
	Client Client

	// Timeout bounds a single exchange. Zero means 30s.
	Timeout time.Duration

	// HTTP2 forces an HTTP/2 capable transport for the nethttp backend.
	HTTP2 bool

	// UserAgent is sent with every nethttp request when non-empty.
	UserAgent string

	// IdleAfter is how long the chromedp backend waits for network silence
	// before capturing the DOM. Zero means 2s.
	IdleAfter time.Duration

	// ShowBrowser disables headless mode for the chromedp backend.
	ShowBrowser bool
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

func (c Config) idleAfter() time.Duration {
	if c.IdleAfter <= 0 {
		return 2 * time.Second
	}
	return c.IdleAfter
}
