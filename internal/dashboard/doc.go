// Package dashboard turns an accumulated match analysis into display sections
// and renders them as terminal tables or as the daemon's HTML pages.
//
// Everything here is stateless: callers pass the current analysis, or a status
// line while analysis is still running, and get a rendering back.
package dashboard
