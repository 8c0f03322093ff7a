package server

import (
	"github.com/dspace-go/dsfront/internal/app"
	"github.com/dspace-go/dsfront/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address of the UI server.
	ListenAddr string

	// App is the wired application the handlers run against.
	App *app.Application

	Logger logging.Logger
}
