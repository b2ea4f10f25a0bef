// Package connectors holds clients for external highlight sources.
// Each connector implements the HighlightSource port for one upstream
// service; readwise is currently the only one.
package connectors
