//go:build tools

// Package tools lists the developer tools used on this repository. They are installed with
// go install and deliberately kept out of go.mod.
//
//	mockgen (go.uber.org/mock/mockgen@v0.6.0) regenerates internal/mocks from the ports in
//	internal/core: go generate ./internal/mocks
//
//	air (github.com/air-verse/air@v1.63.0) reloads ./cmd/dataport on change during development.
package tools
