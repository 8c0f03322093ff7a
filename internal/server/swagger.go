package server

//go:generate swag init -g internal/server/server.go -o internal/server/docs

// @title DSpace Front API
// @version 0.1
// @description Server-rendered pages and job API for the DSpace change submitter flow.
// @contact.name dsfront maintainers
// @contact.url https://github.com/dspace-go/dsfront
// @BasePath /
